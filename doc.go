// Package imageingest receives image frames from a sensor transport, decodes
// and validates them, converts them between pixel encodings and reports what
// it saw.
//
// This module is part of Orion 2.0 and sits next to stream-capture: where
// stream-capture produces frames, image-ingest is a single subscriber that
// checks every frame it is given and never lets one malformed frame stop the
// stream.
//
// # Quick Start
//
// Process frames from any Source with a Worker:
//
//	p, err := imageingest.NewPipeline(imageingest.Options{
//	    Semantic: imageingest.Grayscale,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := imageingest.NewWorker(src, p, imageingest.WorkerConfig{QueueDepth: 1})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	_ = w.Run(ctx)
//
//	st := w.Stats()
//	log.Printf("reported=%d failed=%d dropped=%d", st.Reported, st.Failures(), st.Dropped)
//
// Or call the pieces directly:
//
//	buf, err := imageingest.Decode(raw, "")        // copy, validate size
//	desc := imageingest.FormatType(buf.Depth, buf.Channels) // "8UC3"
//	gray, err := imageingest.Convert(buf, imageingest.Grayscale)
//
// # Frame Lifecycle
//
//	Received -> Decoded -> Converted -> Reported
//
// A decode error ends the frame in Failed(decode), a conversion error in
// Failed(convert). A frame with no pixels ends in Skipped with a warning.
// Pipeline.Process returns an Outcome in every case; it never returns an
// error and never panics.
//
// # Encodings
//
// Named tags follow sensor_msgs/image_encodings (mono8, mono16, rgb8, bgr8,
// rgba8, bgra8, rgb16, bgr16, rgba16, bgra16, bayer_*, yuv422). Generic
// OpenCV tags "<depth>C<n>" are accepted for depths 8U 8S 16U 16S 32S 32F 64F.
//
// # Concurrency
//
// Worker serialises Process calls. Frames the pipeline cannot keep up with are
// dropped oldest first from a queue of WorkerConfig.QueueDepth frames and
// counted in WorkerStats.Dropped. ImageBuffers never outlive one Process call
// unless a caller keeps the result of Decode or Convert itself.
//
// # Transports
//
// Sources live under internal/source: MQTT (msgpack frames), GStreamer appsink,
// replay files and a synthetic test pattern. The image-ingest command wires
// them together with configuration, metrics and a status endpoint.
package imageingest
