package imageingest

import "strconv"

// FormatType returns the diagnostic type descriptor for a depth and channel
// count: the depth code, "C", then the channel count in decimal.
//
//	FormatType(Depth8U, 3)  == "8UC3"
//	FormatType(Depth32F, 1) == "32FC1"
//	FormatType(Depth16U, 12) == "16UC12"
//
// Depths outside the enumeration render as "UNKNOWN".
func FormatType(depth Depth, channels int) string {
	return depth.String() + "C" + strconv.Itoa(channels)
}
