package imageingest

import (
	"encoding/binary"
	"math"
)

// Sample access on little-endian packed buffers. Index i counts samples, not
// bytes. Integer writes saturate to the depth range and round half to even,
// the way OpenCV's saturate_cast does.

func isFloat(d Depth) bool {
	return d == Depth32F || d == Depth64F
}

func intSample(data []byte, i int, d Depth) int64 {
	switch d {
	case Depth8U:
		return int64(data[i])
	case Depth8S:
		return int64(int8(data[i]))
	case Depth16U:
		return int64(binary.LittleEndian.Uint16(data[2*i:]))
	case Depth16S:
		return int64(int16(binary.LittleEndian.Uint16(data[2*i:])))
	case Depth32S:
		return int64(int32(binary.LittleEndian.Uint32(data[4*i:])))
	default:
		return int64(math.Round(floatSample(data, i, d)))
	}
}

func floatSample(data []byte, i int, d Depth) float64 {
	switch d {
	case Depth32F:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	case Depth64F:
		return math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	default:
		return float64(intSample(data, i, d))
	}
}

func putInt(data []byte, i int, d Depth, v int64) {
	switch d {
	case Depth8U:
		data[i] = uint8(clamp(v, 0, math.MaxUint8))
	case Depth8S:
		data[i] = uint8(int8(clamp(v, math.MinInt8, math.MaxInt8)))
	case Depth16U:
		binary.LittleEndian.PutUint16(data[2*i:], uint16(clamp(v, 0, math.MaxUint16)))
	case Depth16S:
		binary.LittleEndian.PutUint16(data[2*i:], uint16(int16(clamp(v, math.MinInt16, math.MaxInt16))))
	case Depth32S:
		binary.LittleEndian.PutUint32(data[4*i:], uint32(int32(clamp(v, math.MinInt32, math.MaxInt32))))
	default:
		putFloat(data, i, d, float64(v))
	}
}

func putFloat(data []byte, i int, d Depth, v float64) {
	switch d {
	case Depth32F:
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(v)))
	case Depth64F:
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	default:
		if math.IsNaN(v) {
			v = 0
		}
		putInt(data, i, d, int64(math.RoundToEven(math.Max(math.Min(v, math.MaxInt64/2), math.MinInt64/2))))
	}
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// copySample moves sample si of src into sample di of dst. Both buffers share
// the depth d.
func copySample(dst []byte, di int, src []byte, si int, d Depth) {
	n := d.Size()
	copy(dst[di*n:(di+1)*n], src[si*n:(si+1)*n])
}

// maxValue is the value written into a synthesised alpha channel.
func maxValue(d Depth) float64 {
	switch d {
	case Depth8U:
		return math.MaxUint8
	case Depth8S:
		return math.MaxInt8
	case Depth16U:
		return math.MaxUint16
	case Depth16S:
		return math.MaxInt16
	case Depth32S:
		return math.MaxInt32
	default:
		return 1
	}
}

// swapEndian reverses the byte order of every sample in data in place.
func swapEndian(data []byte, d Depth) {
	n := d.Size()
	if n < 2 {
		return
	}
	for off := 0; off+n <= len(data); off += n {
		for a, b := off, off+n-1; a < b; a, b = a+1, b-1 {
			data[a], data[b] = data[b], data[a]
		}
	}
}
