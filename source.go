package imageingest

import "context"

// Source delivers RawFrames from a transport.
//
// Implementations must guarantee:
//   - Start returns immediately; frames arrive asynchronously
//   - the channel is closed once the source has stopped producing, either
//     because Stop was called, ctx was cancelled or the input ended
//   - Stop is idempotent
//   - frames sent on the channel are not modified afterwards
//
// Seq and TraceID are assigned by the source.
type Source interface {
	// Start begins delivery. It fails if the transport cannot be set up.
	Start(ctx context.Context) (<-chan RawFrame, error)

	// Stop ends delivery and releases transport resources.
	Stop() error

	// Name identifies the source in logs and stats, e.g. "mqtt:camera/image_raw".
	Name() string
}

// DropCounter is implemented by sources that discard frames before they reach
// the channel (for instance when the channel buffer is full).
type DropCounter interface {
	Dropped() uint64
}
