package imageingest

import "time"

// RawFrame is a single image message as delivered by a transport.
//
// The transport owns the frame. The pipeline reads it for the duration of one
// Process call and copies whatever it keeps.
type RawFrame struct {
	// Seq is the monotonic sequence number assigned by the source
	Seq uint64
	// Timestamp is when the frame was captured (source time)
	Timestamp time.Time
	// Source identifies the producing stream or camera frame (ROS frame_id)
	Source string
	// TraceID is a unique identifier for tracing a frame through the logs
	TraceID string
	// Encoding is the pixel layout tag, e.g. "bgr8" or "mono16"
	Encoding string
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// BigEndian is set when multi-byte samples in Data are big-endian
	BigEndian bool
	// Data holds the packed pixels, Width*Height*bytes-per-pixel(Encoding) bytes
	Data []byte
}

// Depth is the sample type of an ImageBuffer.
type Depth int

const (
	// Depth8U is an unsigned 8-bit sample
	Depth8U Depth = iota
	// Depth8S is a signed 8-bit sample
	Depth8S
	// Depth16U is an unsigned 16-bit sample
	Depth16U
	// Depth16S is a signed 16-bit sample
	Depth16S
	// Depth32S is a signed 32-bit integer sample
	Depth32S
	// Depth32F is a 32-bit IEEE float sample
	Depth32F
	// Depth64F is a 64-bit IEEE float sample
	Depth64F
)

// Size returns the number of bytes of one sample, or 0 for unknown depths.
func (d Depth) Size() int {
	switch d {
	case Depth8U, Depth8S:
		return 1
	case Depth16U, Depth16S:
		return 2
	case Depth32S, Depth32F:
		return 4
	case Depth64F:
		return 8
	default:
		return 0
	}
}

// String returns the depth code used in type descriptors ("8U", "32F", ...).
func (d Depth) String() string {
	switch d {
	case Depth8U:
		return "8U"
	case Depth8S:
		return "8S"
	case Depth16U:
		return "16U"
	case Depth16S:
		return "16S"
	case Depth32S:
		return "32S"
	case Depth32F:
		return "32F"
	case Depth64F:
		return "64F"
	default:
		return "UNKNOWN"
	}
}

// ImageBuffer is a decoded, typed in-memory image.
//
// Data is row-major, channels interleaved, samples little-endian:
//
//	len(Data) == Width * Height * Channels * Depth.Size()
//
// Buffers are never modified after construction; conversions allocate new ones.
type ImageBuffer struct {
	Width    int
	Height   int
	Depth    Depth
	Channels int
	// Encoding is the layout tag the samples are arranged in. It carries the
	// channel order (rgb vs bgr) the converter needs.
	Encoding string
	Data     []byte
}

// Empty reports whether the buffer holds no pixels.
func (b *ImageBuffer) Empty() bool {
	return b == nil || b.Width*b.Height == 0
}

// Type returns the type descriptor of the buffer, e.g. "8UC3".
func (b *ImageBuffer) Type() string {
	return FormatType(b.Depth, b.Channels)
}

// PixelCount returns Width*Height.
func (b *ImageBuffer) PixelCount() int {
	return b.Width * b.Height
}
