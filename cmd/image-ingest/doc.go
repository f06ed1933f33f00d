// Command image-ingest receives camera frames from MQTT, GStreamer, a
// recording or a synthetic pattern, runs them through the decode and convert
// pipeline and exposes health, statistics and Prometheus metrics.
//
// Usage:
//
//	image-ingest run -c image-ingest.yaml
//	image-ingest record frames.bin --count 100 --fault-every 10
//	image-ingest inspect frames.bin --semantic grayscale
//	image-ingest publish --broker localhost:1883 --from frames.bin
package main
