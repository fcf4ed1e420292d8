// Package detector defines the narrow interface the batch driver consumes
// to invoke the (out-of-scope, GPU-resident) neural network: Predict over a
// contiguous batch tensor, GetBoxes per populated slot, and NMSSort to
// de-duplicate overlapping boxes. Production wiring to an actual detector
// library is outside this repository's scope; StubDetector below
// is a deterministic fake used by tests, local demos and the CLIs; it is
// the only implementation of the interface in this repository.
package detector

import "github.com/vistream/detectd/internal/frame"

// Detector is the synchronous, non-thread-safe handle the driver owns
// exclusively; no other stage may call into it.
type Detector interface {
	// Predict runs one forward pass over a batch tensor of
	// batchSize*channels*h*w float32 values.
	Predict(batch []float32) error

	// GetBoxes returns the raw detections for the slot-th image of the
	// most recent Predict call, scaled back to the original image's
	// dimensions.
	GetBoxes(slot int, origW, origH int, thresh, hierThresh float64) ([]frame.Detection, error)

	// NMSSort runs non-max suppression over dets at the given threshold
	// and returns the surviving detections.
	NMSSort(dets []frame.Detection, classes int, nmsThresh float64) []frame.Detection
}

// PartialDetector is the edge-side truncated forward pass used by the
// split pipeline: it runs only the first K layers and exposes
// the raw output buffer of the last edge-side layer.
type PartialDetector interface {
	// PredictPartial runs the edge-side layers over one resized image and
	// returns the tensor to forward to the remote detector.
	PredictPartial(resized frame.Frame) (tensor []float32, err error)

	// OutputLen is the fixed length (in float32 elements) of the tensor
	// PredictPartial produces. The edge stage sets TensorLen from the
	// returned tensor itself, and the server's prep-len is configured
	// separately.
	OutputLen() int
}

// Config carries the detector-invariant parameters the driver needs beyond
// the Detector interface itself: target input dimensions, batch size and
// thresholds. These mirror the source's net->w/net->h/net->batch/nms/thresh
// globals, made explicit instead of reached through a opaque network handle.
type Config struct {
	InputW, InputH int
	BatchSize      int
	Classes        int
	Thresh         float64
	HierThresh     float64
	NMSThresh      float64

	// PrepLen, when nonzero, indicates the driver's input is already a
	// PartialDetector-produced tensor of this length rather than a raw
	// letterboxed frame of Channels*InputH*InputW values (the
	// server-side prep_size>0 configuration).
	PrepLen int
}

// Stride returns the per-slot element count of the batch tensor: PrepLen
// in the split topology, Channels*InputH*InputW otherwise.
func (c Config) Stride() int {
	if c.PrepLen > 0 {
		return c.PrepLen
	}
	return frame.Channels * c.InputH * c.InputW
}
