package imageingest

import "math"

// Decode interprets raw as an ImageBuffer.
//
// The returned buffer never aliases raw.Data. When target is empty or equal to
// raw.Encoding the bytes are copied unchanged (after big-endian samples are
// swapped to little-endian). Otherwise the frame is converted to target as
// part of decoding:
//
//   - color to color: channels reordered, alpha dropped or filled with the
//     depth's maximum value
//   - color to mono: luma, see Convert
//   - mono to color: gray replicated into every color channel
//   - 8-bit to 16-bit and back: rescaled by 257
//   - equal depth and channel count (e.g. "8UC3" to "bgr8"): relabelled
//
// Errors are *DecodeError values wrapping ErrUnsupportedEncoding,
// ErrSizeMismatch or ErrConversionUnsupported. No buffer is returned on error.
func Decode(raw RawFrame, target string) (*ImageBuffer, error) {
	from, ok := LookupEncoding(raw.Encoding)
	if !ok {
		return nil, decodeErr(ErrUnsupportedEncoding, raw, target, "")
	}
	to := from
	if target != "" && target != raw.Encoding {
		if to, ok = LookupEncoding(target); !ok {
			return nil, decodeErr(ErrUnsupportedEncoding, raw, target, "unknown target %q", target)
		}
	}

	want, ok := frameSize(raw.Width, raw.Height, from.BytesPerPixel())
	if !ok {
		return nil, decodeErr(ErrSizeMismatch, raw, target, "invalid dimensions %dx%d", raw.Width, raw.Height)
	}
	if len(raw.Data) != want {
		return nil, decodeErr(ErrSizeMismatch, raw, target,
			"got %d bytes, want %d for %dx%d", len(raw.Data), want, raw.Width, raw.Height)
	}

	data := make([]byte, len(raw.Data))
	copy(data, raw.Data)
	if raw.BigEndian {
		swapEndian(data, from.Depth)
	}
	buf := &ImageBuffer{
		Width:    raw.Width,
		Height:   raw.Height,
		Depth:    from.Depth,
		Channels: from.Channels,
		Encoding: raw.Encoding,
		Data:     data,
	}
	if to.Tag == from.Tag {
		return buf, nil
	}

	out, ok := transcode(buf, from, to)
	if !ok {
		return nil, decodeErr(ErrConversionUnsupported, raw, target,
			"%s to %s", FormatType(from.Depth, from.Channels), FormatType(to.Depth, to.Channels))
	}
	return out, nil
}

// ToRawFrame packs buf back into transport form. Decoding the result with an
// empty target yields a buffer equal to buf.
func ToRawFrame(buf *ImageBuffer) RawFrame {
	enc := buf.Encoding
	if enc == "" {
		enc = buf.Type()
	}
	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	return RawFrame{
		Encoding: enc,
		Width:    buf.Width,
		Height:   buf.Height,
		Data:     data,
	}
}

// frameSize returns w*h*bpp, or false for negative dimensions and products
// that do not fit in an int.
func frameSize(w, h, bpp int) (int, bool) {
	if w < 0 || h < 0 || bpp <= 0 {
		return 0, false
	}
	if w == 0 || h == 0 {
		return 0, true
	}
	if w > math.MaxInt/h || w*h > math.MaxInt/bpp {
		return 0, false
	}
	return w * h * bpp, true
}

func rescalable(a, b Depth) bool {
	if a == b {
		return true
	}
	return (a == Depth8U && b == Depth16U) || (a == Depth16U && b == Depth8U)
}

func transcode(buf *ImageBuffer, from, to EncodingInfo) (*ImageBuffer, bool) {
	if !rescalable(from.Depth, to.Depth) {
		return nil, false
	}

	var mid *ImageBuffer
	switch {
	case from.Channels == to.Channels &&
		(from.Order == to.Order || from.Order == OrderGeneric || to.Order == OrderGeneric):
		mid = &ImageBuffer{
			Width: buf.Width, Height: buf.Height,
			Depth: buf.Depth, Channels: buf.Channels,
			Data: buf.Data,
		}
	case from.Order == OrderGeneric || to.Order == OrderGeneric:
		return nil, false
	default:
		mid = remapChannels(buf, from, to)
	}

	mid.Encoding = to.Tag
	if mid.Depth != to.Depth {
		mid = rescale(mid, to.Depth)
	}
	return mid, true
}

// remapChannels changes the channel layout between mono and color orders,
// keeping the sample depth.
func remapChannels(buf *ImageBuffer, from, to EncodingInfo) *ImageBuffer {
	d := buf.Depth
	n := buf.PixelCount()
	out := &ImageBuffer{
		Width: buf.Width, Height: buf.Height,
		Depth: d, Channels: to.Channels,
		Data: make([]byte, n*to.Channels*d.Size()),
	}
	src, dst := rolesOf(from.Order), rolesOf(to.Order)
	for p := 0; p < n; p++ {
		si, di := p*from.Channels, p*to.Channels
		switch {
		case to.Order == OrderMono:
			writeLuma(out.Data, di, buf.Data, si, src, d)
		case from.Order == OrderMono:
			for c := 0; c < 3; c++ {
				copySample(out.Data, di+c, buf.Data, si, d)
			}
		default:
			copySample(out.Data, di+dst.r, buf.Data, si+src.r, d)
			copySample(out.Data, di+dst.g, buf.Data, si+src.g, d)
			copySample(out.Data, di+dst.b, buf.Data, si+src.b, d)
		}
		if dst.a < 0 {
			continue
		}
		if src.a >= 0 {
			copySample(out.Data, di+dst.a, buf.Data, si+src.a, d)
		} else {
			putFloat(out.Data, di+dst.a, d, maxValue(d))
		}
	}
	return out
}

func rescale(buf *ImageBuffer, d Depth) *ImageBuffer {
	samples := buf.PixelCount() * buf.Channels
	out := &ImageBuffer{
		Width: buf.Width, Height: buf.Height,
		Depth: d, Channels: buf.Channels,
		Encoding: buf.Encoding,
		Data:     make([]byte, samples*d.Size()),
	}
	for i := 0; i < samples; i++ {
		v := intSample(buf.Data, i, buf.Depth)
		if d == Depth16U {
			v *= 257
		} else {
			v = (v + 128) / 257
		}
		putInt(out.Data, i, d, v)
	}
	return out
}
