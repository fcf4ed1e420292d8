// Package loader implements the image loader stage: it walks an ordered
// list of filesystem paths, decodes and letterbox-resizes each one to the
// detector's input dimensions, and enqueues a frame.LoadedFrame per image,
// followed by exactly one end-of-stream sentinel. Grounded on
// run_detector_client's path-iteration loop in the original client source
// (load_image_color + letterbox_image per path) and batch_detector.c's
// equivalent batch-load loop.
package loader

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/frame"
	"github.com/vistream/detectd/internal/imageio"
	"github.com/vistream/detectd/internal/logging"
	"github.com/vistream/detectd/internal/metrics"
)

// ReadPathList reads one file path per line, matching the original
// source's get_paths: blank lines are skipped, no other parsing is done.
func ReadPathList(listFile string) ([]string, error) {
	f, err := os.Open(listFile)
	if err != nil {
		return nil, fmt.Errorf("loader: open path list %s: %w", listFile, err)
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("loader: read path list %s: %w", listFile, err)
	}
	return paths, nil
}

// Run iterates paths in order, loading and letterboxing each to (h, w),
// and enqueues a LoadedFrame per path into q. It always enqueues exactly
// one sentinel LoadedFrame before returning, even on failure (the
// "always emit sentinel" guidance), reporting any load error to the
// caller afterward rather than aborting the process.
func Run(paths []string, h, w int, q *bbq.Queue[frame.LoadedFrame], ld imageio.Loader, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.L()
	}
	var loadErr error
	for _, path := range paths {
		lf, err := ld.Load(path, h, w)
		if err != nil {
			loadErr = fmt.Errorf("loader: load %s: %w", path, err)
			logger.Error("image_load_failed", "path", path, "error", loadErr)
			break
		}
		metrics.IncImagesLoaded()
		q.Enqueue(lf)
	}
	q.Enqueue(frame.EndLoadedFrame())
	return loadErr
}

// AsClientFrames adapts a LoadedFrame stream into the ClientFrame stream
// pipeline.Driver consumes, tagging every frame with clientID (0 for a
// single local producer) and assigning the monotonic image_id the
// ClientFrame contract requires. It terminates once it forwards the
// LoadedFrame sentinel, translated into the matching ClientFrame sentinel.
func AsClientFrames(in *bbq.Queue[frame.LoadedFrame], out *bbq.Queue[frame.ClientFrame], clientID int) {
	imageID := 1
	for {
		lf, ok := in.Dequeue()
		if !ok || lf.End {
			out.Enqueue(frame.Sentinel(clientID))
			return
		}
		out.Enqueue(frame.ClientFrame{
			ClientID: clientID,
			ImageID:  imageID,
			Original: lf.Resized,
		})
		imageID++
	}
}
