package imageingest

import (
	"errors"
	"strings"
	"testing"
)

// TestErrors_ModulePrefix checks that every error the package produces names
// the module the same way its log lines do.
func TestErrors_ModulePrefix(t *testing.T) {
	sentinels := []error{
		ErrSizeMismatch,
		ErrUnsupportedEncoding,
		ErrConversionUnsupported,
		ErrUnsupportedChannelLayout,
		ErrUnsupportedGeometry,
		ErrEmptyFrame,
		ErrWorkerRunning,
	}
	for _, err := range sentinels {
		if !strings.HasPrefix(err.Error(), "image-ingest: ") {
			t.Errorf("%q does not start with image-ingest:", err)
		}
	}

	_, err := ParsePixelSemantic("sepia")
	if err == nil || !strings.HasPrefix(err.Error(), "image-ingest: ") {
		t.Errorf("ParsePixelSemantic error = %v", err)
	}
	_, err = Convert(&ImageBuffer{Width: 1, Height: 1, Depth: Depth8U, Channels: 3, Data: make([]byte, 3)}, PixelSemantic(42))
	if err == nil || !strings.HasPrefix(err.Error(), "image-ingest: ") {
		t.Errorf("Convert error = %v", err)
	}
	if !errors.Is(&DecodeError{Kind: ErrSizeMismatch}, ErrSizeMismatch) {
		t.Error("DecodeError does not unwrap to its kind")
	}
}
