package imageingest

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"testing/quick"
)

var testEncodings = []string{
	"mono8", "mono16", "rgb8", "bgr8", "rgba8", "bgra8", "rgb16", "bgra16",
	"bayer_rggb8", "yuv422", "8UC1", "8UC3", "8SC2", "16SC1", "32SC1", "32FC1", "32FC3", "64FC1", "8UC12",
}

func randomFrame(r *rand.Rand, w, h int, enc string) RawFrame {
	bpp, _ := BytesPerPixel(enc)
	data := make([]byte, w*h*bpp)
	r.Read(data)
	return RawFrame{Encoding: enc, Width: w, Height: h, Data: data}
}

// TestDecode_Property1_ValidFramesSucceed checks that every correctly sized
// frame of a supported encoding decodes to a buffer of the same geometry.
func TestDecode_Property1_ValidFramesSucceed(t *testing.T) {
	property := func(w, h, pick uint8, seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		enc := testEncodings[int(pick)%len(testEncodings)]
		info, _ := LookupEncoding(enc)
		raw := randomFrame(r, int(w%32), int(h%32), enc)

		buf, err := Decode(raw, "")
		if err != nil {
			t.Logf("Decode(%s %dx%d) failed: %v", enc, raw.Width, raw.Height, err)
			return false
		}
		return buf.Width == raw.Width &&
			buf.Height == raw.Height &&
			buf.Channels == info.Channels &&
			buf.Depth == info.Depth &&
			bytes.Equal(buf.Data, raw.Data)
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 300}); err != nil {
		t.Error(err)
	}
}

// TestDecode_Property2_SizeMismatch checks that any byte count other than the
// expected one is rejected without a buffer.
func TestDecode_Property2_SizeMismatch(t *testing.T) {
	property := func(w, h, pick uint8, delta int8, seed int64) bool {
		if delta == 0 {
			delta = 1
		}
		r := rand.New(rand.NewSource(seed))
		enc := testEncodings[int(pick)%len(testEncodings)]
		raw := randomFrame(r, int(w%32)+1, int(h%32)+1, enc)

		n := len(raw.Data) + int(delta)
		if n < 0 {
			n = 0
		}
		if n == len(raw.Data) {
			n++
		}
		raw.Data = make([]byte, n)

		buf, err := Decode(raw, "")
		return buf == nil && errors.Is(err, ErrSizeMismatch)
	}

	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

// TestDecode_Property3_UnsupportedEncoding checks that tags outside the
// supported set are rejected before the size is looked at.
func TestDecode_Property3_UnsupportedEncoding(t *testing.T) {
	property := func(tag string, w, h uint8) bool {
		if _, ok := LookupEncoding(tag); ok {
			return true
		}
		buf, err := Decode(RawFrame{Encoding: tag, Width: int(w), Height: int(h)}, "")
		return buf == nil && errors.Is(err, ErrUnsupportedEncoding)
	}

	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}

	for _, tag := range []string{"", "BGR8", "hsv8", "8UC0", "8UC", "8UC513", "8UC03", "12U", "yuv420"} {
		if _, err := Decode(RawFrame{Encoding: tag}, ""); !errors.Is(err, ErrUnsupportedEncoding) {
			t.Errorf("Decode(%q) error = %v, want ErrUnsupportedEncoding", tag, err)
		}
	}
}

// TestDecode_Property4_RoundTrip checks that re-encoding a decoded buffer and
// decoding it again yields an identical buffer.
func TestDecode_Property4_RoundTrip(t *testing.T) {
	property := func(w, h, pick uint8, seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		enc := testEncodings[int(pick)%len(testEncodings)]
		first, err := Decode(randomFrame(r, int(w%24), int(h%24), enc), "")
		if err != nil {
			return false
		}
		second, err := Decode(ToRawFrame(first), first.Encoding)
		if err != nil {
			return false
		}
		return second.Width == first.Width &&
			second.Height == first.Height &&
			second.Channels == first.Channels &&
			second.Depth == first.Depth &&
			bytes.Equal(second.Data, first.Data)
	}

	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func TestDecode_CopiesData(t *testing.T) {
	raw := RawFrame{Encoding: "mono8", Width: 2, Height: 1, Data: []byte{1, 2}}
	buf, err := Decode(raw, "")
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	raw.Data[0] = 99
	if buf.Data[0] != 1 {
		t.Errorf("buffer aliases transport memory: got %d, want 1", buf.Data[0])
	}
}

func TestDecode_InvalidDimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"negative width", -1, 4},
		{"negative height", 4, -2},
		{"overflow", 1 << 40, 1 << 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(RawFrame{Encoding: "bgr8", Width: tt.w, Height: tt.h}, "")
			if !errors.Is(err, ErrSizeMismatch) {
				t.Errorf("error = %v, want ErrSizeMismatch", err)
			}
		})
	}
}

func TestDecode_EmptyFrame(t *testing.T) {
	buf, err := Decode(RawFrame{Encoding: "bgr8"}, "")
	if err != nil {
		t.Fatalf("Decode(0x0) failed: %v", err)
	}
	if !buf.Empty() {
		t.Errorf("Empty() = false for %dx%d", buf.Width, buf.Height)
	}
	if got := buf.Type(); got != "8UC3" {
		t.Errorf("Type() = %q, want 8UC3", got)
	}
}

func TestDecode_BigEndian(t *testing.T) {
	raw := RawFrame{
		Encoding:  "mono16",
		Width:     2,
		Height:    1,
		BigEndian: true,
		Data:      []byte{0x01, 0x02, 0xff, 0x00},
	}
	buf, err := Decode(raw, "")
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	want := []byte{0x02, 0x01, 0x00, 0xff}
	if !bytes.Equal(buf.Data, want) {
		t.Errorf("Data = % x, want % x", buf.Data, want)
	}
	if !bytes.Equal(raw.Data, []byte{0x01, 0x02, 0xff, 0x00}) {
		t.Errorf("raw data was modified: % x", raw.Data)
	}
}

func TestDecode_TargetConversions(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawFrame
		target   string
		wantType string
		wantData []byte
	}{
		{
			name:     "bgr8 to rgb8 reorders channels",
			raw:      RawFrame{Encoding: "bgr8", Width: 1, Height: 1, Data: []byte{1, 2, 3}},
			target:   "rgb8",
			wantType: "8UC3",
			wantData: []byte{3, 2, 1},
		},
		{
			name:     "bgr8 to bgra8 adds opaque alpha",
			raw:      RawFrame{Encoding: "bgr8", Width: 1, Height: 1, Data: []byte{1, 2, 3}},
			target:   "bgra8",
			wantType: "8UC4",
			wantData: []byte{1, 2, 3, 255},
		},
		{
			name:     "rgba8 to bgr8 drops alpha",
			raw:      RawFrame{Encoding: "rgba8", Width: 1, Height: 1, Data: []byte{1, 2, 3, 4}},
			target:   "bgr8",
			wantType: "8UC3",
			wantData: []byte{3, 2, 1},
		},
		{
			name:     "rgba8 to bgra8 keeps alpha",
			raw:      RawFrame{Encoding: "rgba8", Width: 1, Height: 1, Data: []byte{1, 2, 3, 4}},
			target:   "bgra8",
			wantType: "8UC4",
			wantData: []byte{3, 2, 1, 4},
		},
		{
			name:     "rgb8 to mono8 uses luma",
			raw:      RawFrame{Encoding: "rgb8", Width: 2, Height: 1, Data: []byte{255, 0, 0, 255, 255, 255}},
			target:   "mono8",
			wantType: "8UC1",
			wantData: []byte{76, 255},
		},
		{
			name:     "mono8 to bgr8 replicates",
			raw:      RawFrame{Encoding: "mono8", Width: 1, Height: 1, Data: []byte{7}},
			target:   "bgr8",
			wantType: "8UC3",
			wantData: []byte{7, 7, 7},
		},
		{
			name:     "mono8 to rgba8 replicates with alpha",
			raw:      RawFrame{Encoding: "mono8", Width: 1, Height: 1, Data: []byte{7}},
			target:   "rgba8",
			wantType: "8UC4",
			wantData: []byte{7, 7, 7, 255},
		},
		{
			name:     "mono16 to mono8 rescales",
			raw:      RawFrame{Encoding: "mono16", Width: 3, Height: 1, Data: []byte{0xff, 0xff, 0x01, 0x01, 0x80, 0x00}},
			target:   "mono8",
			wantType: "8UC1",
			wantData: []byte{255, 1, 0},
		},
		{
			name:     "mono8 to mono16 rescales",
			raw:      RawFrame{Encoding: "mono8", Width: 2, Height: 1, Data: []byte{1, 255}},
			target:   "mono16",
			wantType: "16UC1",
			wantData: []byte{0x01, 0x01, 0xff, 0xff},
		},
		{
			name:     "bgr8 to rgb16 reorders and rescales",
			raw:      RawFrame{Encoding: "bgr8", Width: 1, Height: 1, Data: []byte{0, 1, 255}},
			target:   "rgb16",
			wantType: "16UC3",
			wantData: []byte{0xff, 0xff, 0x01, 0x01, 0x00, 0x00},
		},
		{
			name:     "generic 8UC3 relabelled as bgr8",
			raw:      RawFrame{Encoding: "8UC3", Width: 1, Height: 1, Data: []byte{1, 2, 3}},
			target:   "bgr8",
			wantType: "8UC3",
			wantData: []byte{1, 2, 3},
		},
		{
			name:     "mono8 relabelled as 8UC1",
			raw:      RawFrame{Encoding: "mono8", Width: 1, Height: 1, Data: []byte{9}},
			target:   "8UC1",
			wantType: "8UC1",
			wantData: []byte{9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Decode(tt.raw, tt.target)
			if err != nil {
				t.Fatalf("Decode(%s -> %s) failed: %v", tt.raw.Encoding, tt.target, err)
			}
			if got := buf.Type(); got != tt.wantType {
				t.Errorf("Type() = %q, want %q", got, tt.wantType)
			}
			if buf.Encoding != tt.target {
				t.Errorf("Encoding = %q, want %q", buf.Encoding, tt.target)
			}
			if !bytes.Equal(buf.Data, tt.wantData) {
				t.Errorf("Data = %v, want %v", buf.Data, tt.wantData)
			}
		})
	}
}

func TestDecode_UnsupportedConversions(t *testing.T) {
	tests := []struct {
		name   string
		raw    RawFrame
		target string
		want   error
	}{
		{"float to color", RawFrame{Encoding: "32FC1", Width: 1, Height: 1, Data: make([]byte, 4)}, "bgr8", ErrConversionUnsupported},
		{"generic 4 channel to mono", RawFrame{Encoding: "8UC4", Width: 1, Height: 1, Data: make([]byte, 4)}, "mono8", ErrConversionUnsupported},
		{"bayer to color", RawFrame{Encoding: "bayer_rggb8", Width: 1, Height: 1, Data: make([]byte, 1)}, "bgr8", ErrConversionUnsupported},
		{"16S to 8U", RawFrame{Encoding: "16SC1", Width: 1, Height: 1, Data: make([]byte, 2)}, "8UC1", ErrConversionUnsupported},
		{"unknown target", RawFrame{Encoding: "bgr8", Width: 1, Height: 1, Data: make([]byte, 3)}, "hsv8", ErrUnsupportedEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Decode(tt.raw, tt.target)
			if buf != nil {
				t.Errorf("got buffer %+v, want nil", buf)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *DecodeError", err)
			}
			if de.Encoding != tt.raw.Encoding || de.Target != tt.target {
				t.Errorf("DecodeError = %+v", de)
			}
		})
	}
}
