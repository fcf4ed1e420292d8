// Package frame holds the data types that move between pipeline stages:
// raw/resized images, preprocessed tensors, client-tagged frames and
// detector output. All are plain structs; ownership of the buffers they
// carry transfers to whichever stage dequeues them.
package frame

// Channels is fixed throughout the pipeline; the detector only ever sees
// 3-channel planar tensors.
const Channels = 3

// Frame is a single decoded image: integer dimensions plus a planar
// (channel-major) float32 pixel buffer of length W*H*Channels.
//
// End marks the tagged end-of-stream variant recommended in place of the
// original "channels==0" convention: a Frame with End set carries no
// pixel data and must not be dereferenced for Data.
type Frame struct {
	Width  int
	Height int
	Data   []float32
	End    bool
}

// EndFrame constructs the sentinel Frame value.
func EndFrame() Frame { return Frame{End: true} }

// LoadedFrame pairs a frame's original (unresized) image with the version
// letterboxed to the detector's input dimensions. Owned by whichever stage
// holds it; ownership transfers on enqueue.
type LoadedFrame struct {
	Original Frame
	Resized  Frame
	End      bool
}

// EndLoadedFrame constructs the sentinel LoadedFrame value.
func EndLoadedFrame() LoadedFrame { return LoadedFrame{End: true} }

// PreprocessedFrame is produced by the edge-side partial detector: the
// natural-size original (kept for logging/metadata only), the letterboxed
// frame actually placed on the wire as a record's frame_bytes, and the
// tensor output of the last edge-side layer.
type PreprocessedFrame struct {
	Original  Frame
	Resized   Frame
	Tensor    []float32
	TensorLen int
	End       bool
}

// EndPreprocessedFrame constructs the sentinel PreprocessedFrame value.
func EndPreprocessedFrame() PreprocessedFrame { return PreprocessedFrame{End: true} }

// ClientFrame is a frame read off one server-side client session.
// ClientID identifies the producing session/worker. ImageID is a positive
// monotonic per-client counter starting at 1; ImageID == -1 designates the
// per-client sentinel, retained from the source wire protocol's convention
// since client_id/image_id travel together as a pair even in the Go form.
type ClientFrame struct {
	ClientID     int
	ImageID      int
	Original     Frame
	Preprocessed []float32
	HasPrep      bool
	Err          error
}

// IsSentinel reports whether cf is the per-client end-of-stream marker.
func (cf ClientFrame) IsSentinel() bool { return cf.ImageID == -1 }

// Sentinel constructs the per-client end-of-stream ClientFrame.
func Sentinel(clientID int) ClientFrame { return ClientFrame{ClientID: clientID, ImageID: -1} }

// ErrFrame constructs a fatal-error-tagged ClientFrame for a given client.
// The pipeline driver treats an error-tagged frame like a sentinel for
// accounting purposes (it still counts toward that client's stream ending)
// and logs err; Run does not return it.
func ErrFrame(clientID int, err error) ClientFrame {
	return ClientFrame{ClientID: clientID, ImageID: -1, Err: err}
}

// Detection is a single bounding-box prediction, opaque to the core beyond
// the fields the post-processing stage needs to draw and log it.
type Detection struct {
	X, Y, W, H float64
	ClassProbs []float64
	Objectness float64
	Class      int
}

// Annotated pairs an original image with the detections the driver
// produced for it, ready for the post-processing stage. End marks the
// stream-end sentinel the driver emits after its last batch.
type Annotated struct {
	Original   Frame
	Detections []Detection
	ClientID   int
	ImageID    int
	End        bool
}

// EndAnnotated constructs the sentinel Annotated value.
func EndAnnotated() Annotated { return Annotated{End: true} }

// Slot is one populated entry of the driver's in-flight batch: the frame
// data copied/pointed into the batch tensor plus enough metadata to run
// GetBoxes and hand the result to the post-processor afterward.
type Slot struct {
	Original Frame
	ClientID int
	ImageID  int
}
