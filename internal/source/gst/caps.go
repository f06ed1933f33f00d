package gst

import (
	"fmt"
	"strconv"
	"strings"
)

// VideoFormat is the subset of negotiated caps needed to describe a frame.
type VideoFormat struct {
	Media     string // video/x-raw, video/x-bayer
	Format    string // GStreamer format name, e.g. BGR
	Width     int
	Height    int
	Encoding  string // image encoding tag
	BigEndian bool
}

// formatEncodings maps GStreamer raw video formats to image encodings.
// Padded formats (RGBx, BGRx) are reported with their alpha equivalent.
var formatEncodings = map[string]struct {
	encoding  string
	bigEndian bool
}{
	"RGB":       {"rgb8", false},
	"BGR":       {"bgr8", false},
	"RGBA":      {"rgba8", false},
	"RGBx":      {"rgba8", false},
	"BGRA":      {"bgra8", false},
	"BGRx":      {"bgra8", false},
	"GRAY8":     {"mono8", false},
	"GRAY16_LE": {"mono16", false},
	"GRAY16_BE": {"mono16", true},
	"UYVY":      {"yuv422", false},
}

// ParseCaps reads the first structure of a caps string such as
//
//	video/x-raw, format=(string)BGR, width=(int)640, height=(int)480
func ParseCaps(caps string) (VideoFormat, error) {
	// Only the first structure matters for a fixed caps
	if i := strings.Index(caps, ";"); i >= 0 {
		caps = caps[:i]
	}
	fields := strings.Split(caps, ",")
	vf := VideoFormat{Media: strings.TrimSpace(fields[0])}
	if vf.Media == "" {
		return vf, fmt.Errorf("gst: empty caps")
	}

	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		value = stripTypeTag(strings.TrimSpace(value))
		switch strings.TrimSpace(key) {
		case "format":
			vf.Format = strings.Trim(value, `"`)
		case "width":
			n, err := strconv.Atoi(value)
			if err != nil {
				return vf, fmt.Errorf("gst: bad width %q in caps", value)
			}
			vf.Width = n
		case "height":
			n, err := strconv.Atoi(value)
			if err != nil {
				return vf, fmt.Errorf("gst: bad height %q in caps", value)
			}
			vf.Height = n
		}
	}

	vf.Encoding, vf.BigEndian = capsEncoding(vf.Media, vf.Format)
	return vf, nil
}

// stripTypeTag removes a leading "(type)" annotation.
func stripTypeTag(v string) string {
	if strings.HasPrefix(v, "(") {
		if i := strings.Index(v, ")"); i > 0 {
			return v[i+1:]
		}
	}
	return v
}

func capsEncoding(media, format string) (string, bool) {
	if media == "video/x-bayer" {
		// bggr, rggb, gbrg, grbg
		return "bayer_" + strings.ToLower(format) + "8", false
	}
	if e, ok := formatEncodings[format]; ok {
		return e.encoding, e.bigEndian
	}
	// Unknown formats pass through so the decoder can reject them by name
	return strings.ToLower(format), false
}

// packRows removes GStreamer's row padding. Rows of packed video formats are
// aligned to 4 bytes, so a 3-byte-per-pixel frame with an odd width carries
// extra bytes at the end of every row. Data that is already tight, or that
// does not match the padded layout, is returned unchanged.
func packRows(data []byte, width, height, bytesPerPixel int) []byte {
	row := width * bytesPerPixel
	stride := (row + 3) &^ 3
	if row <= 0 || height <= 0 || stride == row || len(data) == row*height {
		return data
	}
	if len(data) < stride*(height-1)+row {
		return data
	}
	out := make([]byte, row*height)
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return out
}
