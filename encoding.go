package imageingest

import (
	"strconv"
	"strings"
)

// ChannelOrder describes what the channels of an encoding mean.
type ChannelOrder int

const (
	// OrderGeneric carries no color semantics (OpenCV style tags like "8UC3",
	// bayer mosaics, packed yuv)
	OrderGeneric ChannelOrder = iota
	OrderMono
	OrderRGB
	OrderBGR
	OrderRGBA
	OrderBGRA
)

// EncodingInfo is the decoded meaning of an encoding tag.
type EncodingInfo struct {
	Tag      string
	Depth    Depth
	Channels int
	Order    ChannelOrder
}

// BytesPerPixel returns Channels * Depth.Size().
func (i EncodingInfo) BytesPerPixel() int {
	return i.Channels * i.Depth.Size()
}

// IsColor reports whether the encoding has named red, green and blue channels.
func (i EncodingInfo) IsColor() bool {
	switch i.Order {
	case OrderRGB, OrderBGR, OrderRGBA, OrderBGRA:
		return true
	}
	return false
}

// HasAlpha reports whether the fourth channel is alpha.
func (i EncodingInfo) HasAlpha() bool {
	return i.Order == OrderRGBA || i.Order == OrderBGRA
}

// maxChannels matches OpenCV's CV_CN_MAX.
const maxChannels = 512

var namedEncodings = map[string]EncodingInfo{
	"mono8":  {Depth: Depth8U, Channels: 1, Order: OrderMono},
	"mono16": {Depth: Depth16U, Channels: 1, Order: OrderMono},
	"rgb8":   {Depth: Depth8U, Channels: 3, Order: OrderRGB},
	"bgr8":   {Depth: Depth8U, Channels: 3, Order: OrderBGR},
	"rgba8":  {Depth: Depth8U, Channels: 4, Order: OrderRGBA},
	"bgra8":  {Depth: Depth8U, Channels: 4, Order: OrderBGRA},
	"rgb16":  {Depth: Depth16U, Channels: 3, Order: OrderRGB},
	"bgr16":  {Depth: Depth16U, Channels: 3, Order: OrderBGR},
	"rgba16": {Depth: Depth16U, Channels: 4, Order: OrderRGBA},
	"bgra16": {Depth: Depth16U, Channels: 4, Order: OrderBGRA},

	"bayer_rggb8":  {Depth: Depth8U, Channels: 1},
	"bayer_bggr8":  {Depth: Depth8U, Channels: 1},
	"bayer_gbrg8":  {Depth: Depth8U, Channels: 1},
	"bayer_grbg8":  {Depth: Depth8U, Channels: 1},
	"bayer_rggb16": {Depth: Depth16U, Channels: 1},
	"bayer_bggr16": {Depth: Depth16U, Channels: 1},
	"bayer_gbrg16": {Depth: Depth16U, Channels: 1},
	"bayer_grbg16": {Depth: Depth16U, Channels: 1},
	"yuv422":       {Depth: Depth8U, Channels: 2},
}

var depthCodes = []struct {
	code  string
	depth Depth
}{
	{"16U", Depth16U}, {"16S", Depth16S}, {"32S", Depth32S},
	{"32F", Depth32F}, {"64F", Depth64F}, {"8U", Depth8U}, {"8S", Depth8S},
}

// LookupEncoding resolves an encoding tag.
//
// Named tags follow sensor_msgs/image_encodings. Generic tags are
// "<depth>" or "<depth>C<n>" with depth one of 8U 8S 16U 16S 32S 32F 64F,
// e.g. "32FC1" or "16U" (one channel).
func LookupEncoding(tag string) (EncodingInfo, bool) {
	if info, ok := namedEncodings[tag]; ok {
		info.Tag = tag
		return info, true
	}
	for _, dc := range depthCodes {
		rest, ok := strings.CutPrefix(tag, dc.code)
		if !ok {
			continue
		}
		channels := 1
		if rest != "" {
			n, ok := strings.CutPrefix(rest, "C")
			if !ok || n == "" {
				return EncodingInfo{}, false
			}
			v, err := strconv.Atoi(n)
			if err != nil || v < 1 || v > maxChannels || strconv.Itoa(v) != n {
				return EncodingInfo{}, false
			}
			channels = v
		}
		return EncodingInfo{Tag: tag, Depth: dc.depth, Channels: channels, Order: OrderGeneric}, true
	}
	return EncodingInfo{}, false
}

// BytesPerPixel returns the pixel size of an encoding tag.
func BytesPerPixel(tag string) (int, bool) {
	info, ok := LookupEncoding(tag)
	if !ok {
		return 0, false
	}
	return info.BytesPerPixel(), true
}

// monoTag returns the encoding produced when a buffer of the given depth is
// reduced to one channel.
func monoTag(d Depth) string {
	switch d {
	case Depth8U:
		return "mono8"
	case Depth16U:
		return "mono16"
	default:
		return FormatType(d, 1)
	}
}

// swappedTag returns the tag with red and blue exchanged.
func swappedTag(info EncodingInfo) string {
	t := info.Tag
	switch {
	case strings.HasPrefix(t, "rgb"):
		return "bgr" + strings.TrimPrefix(t, "rgb")
	case strings.HasPrefix(t, "bgr"):
		return "rgb" + strings.TrimPrefix(t, "bgr")
	}
	return t
}
