// Package pipeline implements the batch assembler / detector driver: the
// coordinator that dequeues frame.ClientFrame values (from either a loader
// adapter in the single-producer topology or the server's shared queue in
// the multi-producer topology), assembles them into a contiguous batch
// tensor, invokes the detector synchronously, and hands annotated results
// to a post-processing sink. Grounded on the hub registry's queue-depth
// sampling idiom and the original run_server main loop, carried over as a
// single-goroutine state machine rather than an explicit switch-on-state
// loop.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/detector"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/logging"
	"github.com/vistream/detectd/internal/metrics"
)

// State names the driver's current phase, exposed for tests and logging.
type State int

const (
	Filling State = iota
	Predicting
	Consuming
	Shutdown
)

func (s State) String() string {
	switch s {
	case Filling:
		return "filling"
	case Predicting:
		return "predicting"
	case Consuming:
		return "consuming"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Driver is the sole caller of a detector.Detector; no other goroutine may
// touch it once Run starts (single-writer discipline).
type Driver struct {
	in  *bbq.Queue[frame.ClientFrame]
	out *bbq.Queue[frame.Annotated]
	det detector.Detector
	cfg detector.Config

	expectedSentinels int
	stride            int
	logger            *slog.Logger

	batchTensor   []float32
	slots         []frame.Slot
	sentinelsSeen int
	state         State
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithOutput sets the sink the driver enqueues annotated results into. A
// nil output (the default) discards results after running NMS, useful for
// detector-only benchmarking.
func WithOutput(out *bbq.Queue[frame.Annotated]) Option {
	return func(d *Driver) { d.out = out }
}

// WithLogger overrides the driver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDriver builds a Driver. expectedSentinels is 1 for a single-producer
// topology (loader or one client) and N for an N-worker server topology.
func NewDriver(in *bbq.Queue[frame.ClientFrame], det detector.Detector, cfg detector.Config, expectedSentinels int, opts ...Option) *Driver {
	if expectedSentinels < 1 {
		expectedSentinels = 1
	}
	stride := cfg.Stride()
	d := &Driver{
		in:                in,
		det:               det,
		cfg:               cfg,
		expectedSentinels: expectedSentinels,
		stride:            stride,
		logger:            logging.L(),
		batchTensor:       make([]float32, cfg.BatchSize*stride),
		slots:             make([]frame.Slot, cfg.BatchSize),
		state:             Filling,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the driver's current phase.
func (d *Driver) State() State { return d.state }

// Run drives batches until expectedSentinels sentinels have been observed
// and every pending frame has been processed, then returns. There is no
// cancellation on the underlying dequeue; callers stop the
// driver by closing the input queue, which unblocks a pending Dequeue with
// ok=false.
func (d *Driver) Run() error {
	for {
		d.state = Filling
		filled, done, err := d.fill()
		if err != nil {
			return err
		}
		if filled == 0 {
			if done {
				d.state = Shutdown
				if d.out != nil {
					d.out.Enqueue(frame.EndAnnotated())
				}
				return nil
			}
			// Dequeue unblocked with nothing new and not done: should not
			// happen given bbq's blocking semantics, but guard against a
			// busy spin if it ever does.
			continue
		}

		d.state = Predicting
		start := time.Now()
		if err := d.det.Predict(d.batchTensor[:filled*d.stride]); err != nil {
			wrap := fmt.Errorf("detector predict: %w", err)
			metrics.IncError(metrics.ErrDetector)
			return wrap
		}
		metrics.ObserveDetectorDuration(time.Since(start))
		metrics.IncBatchesRun()

		d.state = Consuming
		d.consume(filled)
		metrics.SetQueueDepth("pipeline_in", d.in.Len())

		if done {
			d.state = Shutdown
			if d.out != nil {
				d.out.Enqueue(frame.EndAnnotated())
			}
			return nil
		}
	}
}

// fill gathers up to BatchSize frames, skipping past sentinels while
// counting them (multi-producer topology) or stopping immediately
// (single-producer topology, expectedSentinels==1). It implements the
// resolved partial-batch Open Question: when done is set mid-fill, the
// already-populated slots are still returned to be run as a partial batch
// rather than discarded.
func (d *Driver) fill() (filled int, done bool, err error) {
	for filled < d.cfg.BatchSize {
		cf, ok := d.in.Dequeue()
		if !ok {
			return filled, true, nil
		}
		if cf.IsSentinel() {
			if cf.Err != nil {
				d.logger.Error("client_session_error", "client_id", cf.ClientID, "error", cf.Err)
			}
			d.sentinelsSeen++
			if d.sentinelsSeen >= d.expectedSentinels {
				return filled, true, nil
			}
			continue
		}

		data := cf.Original.Data
		if cf.HasPrep {
			data = cf.Preprocessed
		}
		if len(data) != d.stride {
			d.logger.Warn("frame_stride_mismatch", "client_id", cf.ClientID, "image_id", cf.ImageID, "got", len(data), "want", d.stride)
			continue
		}
		copy(d.batchTensor[filled*d.stride:(filled+1)*d.stride], data)
		d.slots[filled] = frame.Slot{Original: cf.Original, ClientID: cf.ClientID, ImageID: cf.ImageID}
		filled++
	}
	return filled, false, nil
}

// consume extracts boxes for the filled slots, runs NMS, and hands each
// annotated result to the output sink.
func (d *Driver) consume(filled int) {
	for b := 0; b < filled; b++ {
		slot := d.slots[b]
		dets, err := d.det.GetBoxes(b, slot.Original.Width, slot.Original.Height, d.cfg.Thresh, d.cfg.HierThresh)
		if err != nil {
			d.logger.Error("get_boxes_failed", "client_id", slot.ClientID, "image_id", slot.ImageID, "error", err)
			metrics.IncError(metrics.ErrDetector)
			continue
		}
		dets = d.det.NMSSort(dets, d.cfg.Classes, d.cfg.NMSThresh)
		if d.out != nil {
			d.out.Enqueue(frame.Annotated{
				Original:   slot.Original,
				Detections: dets,
				ClientID:   slot.ClientID,
				ImageID:    slot.ImageID,
			})
		}
		d.slots[b] = frame.Slot{}
	}
}
