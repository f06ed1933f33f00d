package imageingest

import (
	"errors"
	"fmt"
)

// Frame errors. Match them with errors.Is; DecodeError and ConvertError wrap
// exactly one of these.
var (
	ErrSizeMismatch             = errors.New("image-ingest: data size does not match encoding and dimensions")
	ErrUnsupportedEncoding      = errors.New("image-ingest: unsupported encoding")
	ErrConversionUnsupported    = errors.New("image-ingest: unsupported encoding conversion")
	ErrUnsupportedChannelLayout = errors.New("image-ingest: unsupported channel layout")
	ErrUnsupportedGeometry      = errors.New("image-ingest: unsupported image geometry")
	ErrEmptyFrame               = errors.New("image-ingest: empty frame")
)

// DecodeError reports why a RawFrame could not be turned into an ImageBuffer.
type DecodeError struct {
	// Kind is one of ErrSizeMismatch, ErrUnsupportedEncoding, ErrConversionUnsupported
	Kind     error
	Encoding string
	Target   string
	Detail   string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %q", e.Encoding)
	if e.Target != "" && e.Target != e.Encoding {
		msg += fmt.Sprintf(" -> %q", e.Target)
	}
	msg += ": " + e.Kind.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Kind }

// ConvertError reports why a PixelSemantic could not be applied to a buffer.
type ConvertError struct {
	// Kind is one of ErrUnsupportedChannelLayout, ErrUnsupportedGeometry
	Kind     error
	Semantic PixelSemantic
	Type     string
	Detail   string
}

func (e *ConvertError) Error() string {
	msg := fmt.Sprintf("convert %s to %s: %s", e.Type, e.Semantic, e.Kind.Error())
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ConvertError) Unwrap() error { return e.Kind }

func decodeErr(kind error, raw RawFrame, target, format string, args ...any) *DecodeError {
	return &DecodeError{
		Kind:     kind,
		Encoding: raw.Encoding,
		Target:   target,
		Detail:   fmt.Sprintf(format, args...),
	}
}
