package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vistream/detectd/internal/bbq"
	"github.com/vistream/detectd/internal/frame"
)

type fakeLoader struct {
	fail map[string]bool
}

func (f fakeLoader) Load(path string, h, w int) (frame.LoadedFrame, error) {
	if f.fail[path] {
		return frame.LoadedFrame{}, errors.New("boom")
	}
	data := make([]float32, frame.Channels*h*w)
	fr := frame.Frame{Width: w, Height: h, Data: data}
	return frame.LoadedFrame{Original: fr, Resized: fr}, nil
}

func TestRunEnqueuesOneFramePerPathPlusSentinel(t *testing.T) {
	q := bbq.New[frame.LoadedFrame](8, nil)
	paths := []string{"a.jpg", "b.jpg", "c.jpg"}
	if err := Run(paths, 4, 4, q, fakeLoader{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	count := 0
	for {
		lf, ok := q.Dequeue()
		if !ok {
			break
		}
		if lf.End {
			break
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 loaded frames, got %d", count)
	}
}

func TestRunReportsErrorButStillEmitsSentinel(t *testing.T) {
	q := bbq.New[frame.LoadedFrame](8, nil)
	paths := []string{"a.jpg", "bad.jpg", "c.jpg"}
	err := Run(paths, 4, 4, q, fakeLoader{fail: map[string]bool{"bad.jpg": true}}, nil)
	if err == nil {
		t.Fatalf("expected an error to be reported upward")
	}
	first, ok := q.Dequeue()
	if !ok || first.End {
		t.Fatalf("expected the one good load to be queued before the sentinel")
	}
	second, ok := q.Dequeue()
	if !ok || !second.End {
		t.Fatalf("expected the sentinel to follow the one good load; got %+v ok=%v", second, ok)
	}
}

func TestReadPathListSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "paths.txt")
	content := "a.jpg\n\nb.jpg\n"
	if err := os.WriteFile(listPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	paths, err := ReadPathList(listPath)
	if err != nil {
		t.Fatalf("ReadPathList: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d: %v", len(paths), paths)
	}
}

func TestAsClientFramesAssignsMonotonicImageIDs(t *testing.T) {
	in := bbq.New[frame.LoadedFrame](8, nil)
	out := bbq.New[frame.ClientFrame](8, nil)
	go func() {
		in.Enqueue(frame.LoadedFrame{Resized: frame.Frame{Width: 1, Height: 1}})
		in.Enqueue(frame.LoadedFrame{Resized: frame.Frame{Width: 1, Height: 1}})
		in.Enqueue(frame.EndLoadedFrame())
	}()
	AsClientFrames(in, out, 0)

	first, _ := out.Dequeue()
	second, _ := out.Dequeue()
	sentinel, _ := out.Dequeue()
	if first.ImageID != 1 || second.ImageID != 2 {
		t.Fatalf("expected image ids 1,2, got %d,%d", first.ImageID, second.ImageID)
	}
	if !sentinel.IsSentinel() {
		t.Fatalf("expected a sentinel after the two frames")
	}
}
