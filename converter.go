package imageingest

import (
	"fmt"
	"strings"
)

// PixelSemantic names a conversion applied to a decoded buffer.
type PixelSemantic int

const (
	// Grayscale reduces a 3-channel color buffer to one luma channel
	Grayscale PixelSemantic = iota
	// SwapRB exchanges the first and third channel of a 3 or 4 channel buffer
	SwapRB
	// Downsample halves width and height with a 2x2 box filter
	Downsample
)

var semanticNames = map[PixelSemantic]string{
	Grayscale:  "grayscale",
	SwapRB:     "swap-rb",
	Downsample: "downsample",
}

func (s PixelSemantic) String() string {
	if name, ok := semanticNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PixelSemantic(%d)", int(s))
}

// ParsePixelSemantic parses the names returned by PixelSemantic.String.
// Matching is case-insensitive and "gray" is accepted for Grayscale.
func ParsePixelSemantic(name string) (PixelSemantic, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "gray" {
		return Grayscale, nil
	}
	for s, n := range semanticNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("image-ingest: unknown pixel semantic %q", name)
}

// Convert applies target to buf and returns a new buffer. buf is not modified.
//
// Grayscale requires exactly 3 channels and computes
//
//	Y = 0.299 R + 0.587 G + 0.114 B
//
// Integer depths use the fixed-point form (4899 R + 9617 G + 1868 B + 8192) >> 14,
// which matches cv::cvtColor with COLOR_BGR2GRAY bit for bit on 8-bit data.
// Channel order is read from buf.Encoding: rgb tags are red first, everything
// else (bgr tags and generic "8UC3" style tags) is blue first.
//
// Failures are *ConvertError values wrapping ErrUnsupportedChannelLayout or
// ErrUnsupportedGeometry.
func Convert(buf *ImageBuffer, target PixelSemantic) (*ImageBuffer, error) {
	if buf == nil {
		return nil, &ConvertError{Kind: ErrUnsupportedGeometry, Semantic: target, Type: "nil", Detail: "no buffer"}
	}
	switch target {
	case Grayscale:
		return grayscale(buf)
	case SwapRB:
		return swapRB(buf)
	case Downsample:
		return downsample(buf)
	}
	return nil, fmt.Errorf("image-ingest: unknown pixel semantic %d", int(target))
}

func grayscale(buf *ImageBuffer) (*ImageBuffer, error) {
	if buf.Channels != 3 {
		return nil, &ConvertError{
			Kind:     ErrUnsupportedChannelLayout,
			Semantic: Grayscale,
			Type:     buf.Type(),
			Detail:   fmt.Sprintf("need 3 channels, have %d", buf.Channels),
		}
	}
	info, _ := LookupEncoding(buf.Encoding)
	roles := rolesOf(OrderBGR)
	if info.Order == OrderRGB {
		roles = rolesOf(OrderRGB)
	}
	enc := FormatType(buf.Depth, 1)
	if info.IsColor() {
		enc = monoTag(buf.Depth)
	}

	d := buf.Depth
	n := buf.PixelCount()
	out := &ImageBuffer{
		Width: buf.Width, Height: buf.Height,
		Depth: d, Channels: 1,
		Encoding: enc,
		Data:     make([]byte, n*d.Size()),
	}
	for p := 0; p < n; p++ {
		writeLuma(out.Data, p, buf.Data, p*3, roles, d)
	}
	return out, nil
}

func swapRB(buf *ImageBuffer) (*ImageBuffer, error) {
	if buf.Channels != 3 && buf.Channels != 4 {
		return nil, &ConvertError{
			Kind:     ErrUnsupportedChannelLayout,
			Semantic: SwapRB,
			Type:     buf.Type(),
			Detail:   fmt.Sprintf("need 3 or 4 channels, have %d", buf.Channels),
		}
	}
	enc := buf.Encoding
	if info, ok := LookupEncoding(enc); ok {
		enc = swappedTag(info)
	}
	out := &ImageBuffer{
		Width: buf.Width, Height: buf.Height,
		Depth: buf.Depth, Channels: buf.Channels,
		Encoding: enc,
		Data:     make([]byte, len(buf.Data)),
	}
	copy(out.Data, buf.Data)
	c, d := buf.Channels, buf.Depth
	for p := 0; p < buf.PixelCount(); p++ {
		copySample(out.Data, p*c, buf.Data, p*c+2, d)
		copySample(out.Data, p*c+2, buf.Data, p*c, d)
	}
	return out, nil
}

func downsample(buf *ImageBuffer) (*ImageBuffer, error) {
	if buf.Width < 2 || buf.Height < 2 {
		return nil, &ConvertError{
			Kind:     ErrUnsupportedGeometry,
			Semantic: Downsample,
			Type:     buf.Type(),
			Detail:   fmt.Sprintf("%dx%d is smaller than 2x2", buf.Width, buf.Height),
		}
	}
	w, h, c, d := buf.Width/2, buf.Height/2, buf.Channels, buf.Depth
	out := &ImageBuffer{
		Width: w, Height: h,
		Depth: d, Channels: c,
		Encoding: buf.Encoding,
		Data:     make([]byte, w*h*c*d.Size()),
	}
	stride := buf.Width * c
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			top := 2*y*stride + 2*x*c
			quad := [4]int{top, top + c, top + stride, top + stride + c}
			for ch := 0; ch < c; ch++ {
				di := (y*w+x)*c + ch
				if isFloat(d) {
					var sum float64
					for _, q := range quad {
						sum += floatSample(buf.Data, q+ch, d)
					}
					putFloat(out.Data, di, d, sum/4)
					continue
				}
				var sum int64
				for _, q := range quad {
					sum += intSample(buf.Data, q+ch, d)
				}
				putInt(out.Data, di, d, (sum+2)>>2)
			}
		}
	}
	return out, nil
}

// channelRoles holds the channel index of each color component within a
// pixel. a is -1 when there is no alpha channel.
type channelRoles struct {
	r, g, b, a int
}

func rolesOf(o ChannelOrder) channelRoles {
	switch o {
	case OrderRGB:
		return channelRoles{r: 0, g: 1, b: 2, a: -1}
	case OrderRGBA:
		return channelRoles{r: 0, g: 1, b: 2, a: 3}
	case OrderBGRA:
		return channelRoles{r: 2, g: 1, b: 0, a: 3}
	case OrderMono:
		return channelRoles{a: -1}
	default:
		return channelRoles{r: 2, g: 1, b: 0, a: -1}
	}
}

// writeLuma stores the luma of the pixel starting at sample base of src into
// sample di of dst.
func writeLuma(dst []byte, di int, src []byte, base int, roles channelRoles, d Depth) {
	if isFloat(d) {
		r := floatSample(src, base+roles.r, d)
		g := floatSample(src, base+roles.g, d)
		b := floatSample(src, base+roles.b, d)
		putFloat(dst, di, d, 0.299*r+0.587*g+0.114*b)
		return
	}
	r := intSample(src, base+roles.r, d)
	g := intSample(src, base+roles.g, d)
	b := intSample(src, base+roles.b, d)
	putInt(dst, di, d, (4899*r+9617*g+1868*b+1<<13)>>14)
}
