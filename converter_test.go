package imageingest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
	"testing/quick"
)

func TestConvert_GrayscaleChannelOrder(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		pixel    []byte
		want     byte
		wantEnc  string
	}{
		{"bgr8 red", "bgr8", []byte{0, 0, 255}, 76, "mono8"},
		{"bgr8 blue", "bgr8", []byte{255, 0, 0}, 29, "mono8"},
		{"rgb8 red", "rgb8", []byte{255, 0, 0}, 76, "mono8"},
		{"rgb8 blue", "rgb8", []byte{0, 0, 255}, 29, "mono8"},
		{"green", "bgr8", []byte{0, 255, 0}, 150, "mono8"},
		{"white", "bgr8", []byte{255, 255, 255}, 255, "mono8"},
		{"black", "rgb8", []byte{0, 0, 0}, 0, "mono8"},
		{"generic is blue first", "8UC3", []byte{0, 0, 255}, 76, "8UC1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &ImageBuffer{Width: 1, Height: 1, Depth: Depth8U, Channels: 3, Encoding: tt.encoding, Data: tt.pixel}
			out, err := Convert(buf, Grayscale)
			if err != nil {
				t.Fatalf("Convert() failed: %v", err)
			}
			if out.Data[0] != tt.want {
				t.Errorf("luma = %d, want %d", out.Data[0], tt.want)
			}
			if out.Encoding != tt.wantEnc {
				t.Errorf("Encoding = %q, want %q", out.Encoding, tt.wantEnc)
			}
		})
	}
}

func TestConvert_GrayscaleFloat(t *testing.T) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(0.5)) // B
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(0.5)) // G
	binary.LittleEndian.PutUint32(data[8:], math.Float32bits(1.0)) // R
	buf := &ImageBuffer{Width: 1, Height: 1, Depth: Depth32F, Channels: 3, Encoding: "32FC3", Data: data}

	out, err := Convert(buf, Grayscale)
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(out.Data))
	want := float32(0.299*1.0 + 0.587*0.5 + 0.114*0.5)
	if math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("luma = %v, want %v", got, want)
	}
	if out.Type() != "32FC1" {
		t.Errorf("Type() = %q, want 32FC1", out.Type())
	}
}

// TestConvert_Property1_GrayscaleGeometry checks that grayscale keeps width,
// height and depth, yields one channel and leaves the input untouched.
func TestConvert_Property1_GrayscaleGeometry(t *testing.T) {
	depths := []Depth{Depth8U, Depth8S, Depth16U, Depth16S, Depth32S, Depth32F, Depth64F}
	property := func(w, h, d uint8, seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		depth := depths[int(d)%len(depths)]
		buf := &ImageBuffer{
			Width: int(w % 20), Height: int(h % 20),
			Depth: depth, Channels: 3,
			Encoding: FormatType(depth, 3),
		}
		buf.Data = make([]byte, buf.PixelCount()*3*depth.Size())
		r.Read(buf.Data)
		before := append([]byte(nil), buf.Data...)

		out, err := Convert(buf, Grayscale)
		if err != nil {
			return false
		}
		return out.Width == buf.Width && out.Height == buf.Height &&
			out.Depth == depth && out.Channels == 1 &&
			len(out.Data) == buf.PixelCount()*depth.Size() &&
			bytes.Equal(buf.Data, before)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func TestConvert_GrayscaleRejectsOtherLayouts(t *testing.T) {
	for _, channels := range []int{1, 2, 4} {
		buf := &ImageBuffer{Width: 1, Height: 1, Depth: Depth8U, Channels: channels, Data: make([]byte, channels)}
		out, err := Convert(buf, Grayscale)
		if out != nil || !errors.Is(err, ErrUnsupportedChannelLayout) {
			t.Errorf("channels=%d: got (%v, %v), want ErrUnsupportedChannelLayout", channels, out, err)
		}
		var ce *ConvertError
		if errors.As(err, &ce) && ce.Semantic != Grayscale {
			t.Errorf("ConvertError.Semantic = %v", ce.Semantic)
		}
	}
}

func TestConvert_SwapRB(t *testing.T) {
	buf := &ImageBuffer{Width: 2, Height: 1, Depth: Depth8U, Channels: 4, Encoding: "rgba8",
		Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	out, err := Convert(buf, SwapRB)
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	if want := []byte{3, 2, 1, 4, 7, 6, 5, 8}; !bytes.Equal(out.Data, want) {
		t.Errorf("Data = %v, want %v", out.Data, want)
	}
	if out.Encoding != "bgra8" {
		t.Errorf("Encoding = %q, want bgra8", out.Encoding)
	}
	if buf.Data[0] != 1 {
		t.Error("input buffer was modified")
	}

	// 16-bit samples move as a whole
	buf16 := &ImageBuffer{Width: 1, Height: 1, Depth: Depth16U, Channels: 3, Encoding: "16UC3",
		Data: []byte{1, 2, 3, 4, 5, 6}}
	out, err = Convert(buf16, SwapRB)
	if err != nil {
		t.Fatalf("Convert(16UC3) failed: %v", err)
	}
	if want := []byte{5, 6, 3, 4, 1, 2}; !bytes.Equal(out.Data, want) {
		t.Errorf("Data = %v, want %v", out.Data, want)
	}

	if _, err := Convert(&ImageBuffer{Width: 1, Height: 1, Channels: 1, Data: []byte{0}}, SwapRB); !errors.Is(err, ErrUnsupportedChannelLayout) {
		t.Errorf("SwapRB on 1 channel: error = %v", err)
	}
}

func TestConvert_Downsample(t *testing.T) {
	// 4x2 mono8 -> 2x1
	buf := &ImageBuffer{Width: 4, Height: 2, Depth: Depth8U, Channels: 1, Encoding: "mono8",
		Data: []byte{
			0, 4, 10, 10,
			4, 8, 10, 11,
		}}
	out, err := Convert(buf, Downsample)
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	if out.Width != 2 || out.Height != 1 {
		t.Fatalf("size = %dx%d, want 2x1", out.Width, out.Height)
	}
	// (0+4+4+8+2)/4 = 4, (10+10+10+11+2)/4 = 10
	if want := []byte{4, 10}; !bytes.Equal(out.Data, want) {
		t.Errorf("Data = %v, want %v", out.Data, want)
	}

	// odd sizes drop the last row and column
	odd := &ImageBuffer{Width: 3, Height: 3, Depth: Depth8U, Channels: 3, Encoding: "bgr8", Data: make([]byte, 27)}
	out, err = Convert(odd, Downsample)
	if err != nil {
		t.Fatalf("Convert(3x3) failed: %v", err)
	}
	if out.Width != 1 || out.Height != 1 || out.Channels != 3 || len(out.Data) != 3 {
		t.Errorf("got %dx%d %s len %d", out.Width, out.Height, out.Type(), len(out.Data))
	}

	tiny := &ImageBuffer{Width: 1, Height: 4, Depth: Depth8U, Channels: 1, Data: make([]byte, 4)}
	if _, err := Convert(tiny, Downsample); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Errorf("Downsample 1x4: error = %v, want ErrUnsupportedGeometry", err)
	}
}

func TestConvert_NilAndUnknown(t *testing.T) {
	if _, err := Convert(nil, Grayscale); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Errorf("Convert(nil) error = %v", err)
	}
	buf := &ImageBuffer{Width: 1, Height: 1, Depth: Depth8U, Channels: 3, Data: make([]byte, 3)}
	if _, err := Convert(buf, PixelSemantic(99)); err == nil {
		t.Error("Convert with unknown semantic succeeded")
	}
}

func TestParsePixelSemantic(t *testing.T) {
	tests := map[string]PixelSemantic{
		"grayscale":   Grayscale,
		"GRAY":        Grayscale,
		"swap-rb":     SwapRB,
		" downsample": Downsample,
	}
	for in, want := range tests {
		got, err := ParsePixelSemantic(in)
		if err != nil || got != want {
			t.Errorf("ParsePixelSemantic(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePixelSemantic("sepia"); err == nil {
		t.Error("ParsePixelSemantic(sepia) succeeded")
	}
	for s := range semanticNames {
		if got, _ := ParsePixelSemantic(s.String()); got != s {
			t.Errorf("round trip of %v gave %v", s, got)
		}
	}
}
