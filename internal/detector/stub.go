package detector

import "github.com/vistream/detectd/internal/frame"

// StubDetector is a deterministic fake: it records the batches it was
// asked to predict and returns one fixed, centered detection per slot.
// It is not a model of real detection quality — it exists so the driver,
// the server, and the CLIs can be exercised end-to-end without a GPU.
type StubDetector struct {
	cfg     Config
	batches [][]float32
}

// NewStubDetector builds a StubDetector for the given configuration.
func NewStubDetector(cfg Config) *StubDetector {
	return &StubDetector{cfg: cfg}
}

// Predict records the batch tensor it was handed; it performs no real math.
func (s *StubDetector) Predict(batch []float32) error {
	cp := make([]float32, len(batch))
	copy(cp, batch)
	s.batches = append(s.batches, cp)
	return nil
}

// BatchCount returns the number of Predict invocations observed so far,
// used by tests to assert batching behavior.
func (s *StubDetector) BatchCount() int { return len(s.batches) }

// LastBatch returns the most recently predicted tensor, for tests that
// need to inspect what was actually copied into it.
func (s *StubDetector) LastBatch() []float32 {
	if len(s.batches) == 0 {
		return nil
	}
	return s.batches[len(s.batches)-1]
}

// GetBoxes returns one centered, full-confidence detection per slot.
func (s *StubDetector) GetBoxes(slot int, origW, origH int, thresh, hierThresh float64) ([]frame.Detection, error) {
	return []frame.Detection{{
		X: float64(origW) / 2, Y: float64(origH) / 2,
		W: float64(origW) / 4, H: float64(origH) / 4,
		ClassProbs: []float64{1},
		Objectness: 1,
		Class:      0,
	}}, nil
}

// NMSSort is a no-op for the stub: one detection per slot never overlaps.
func (s *StubDetector) NMSSort(dets []frame.Detection, classes int, nmsThresh float64) []frame.Detection {
	return dets
}

// StubPartialDetector fakes the edge-side truncated forward pass: it
// returns a fixed-length tensor derived from the resized frame's pixel sum,
// cheap enough to run in tests without any real network weights.
type StubPartialDetector struct {
	outLen int
}

// NewStubPartialDetector builds a StubPartialDetector whose PredictPartial
// always returns a tensor of outLen float32 values.
func NewStubPartialDetector(outLen int) *StubPartialDetector {
	return &StubPartialDetector{outLen: outLen}
}

func (s *StubPartialDetector) OutputLen() int { return s.outLen }

func (s *StubPartialDetector) PredictPartial(resized frame.Frame) ([]float32, error) {
	out := make([]float32, s.outLen)
	var sum float32
	for _, v := range resized.Data {
		sum += v
	}
	for i := range out {
		out[i] = sum / float32(s.outLen+1)
	}
	return out, nil
}
