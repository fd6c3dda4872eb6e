package sink

import (
	"context"

	"github.com/zegnqin/seatunnel/iceberg"
)

// contentWriter is the common surface of the writer package's file writers.
type contentWriter[T any] interface {
	Write(T) error
	Location() string
	RecordCount() int64
	Length() int64
	Close() error
}

// rollingWriter writes into a sequence of files, starting a new one once the
// current file reaches the target size. Files are opened on first write.
type rollingWriter[T any, W contentWriter[T]] struct {
	open   func(ctx context.Context) (W, error)
	finish func(W) (iceberg.DataFile, error)
	target int64

	current W
	active  bool
	done    []iceberg.DataFile
}

func newRollingWriter[T any, W contentWriter[T]](target int64, open func(context.Context) (W, error), finish func(W) (iceberg.DataFile, error)) *rollingWriter[T, W] {
	return &rollingWriter[T, W]{open: open, finish: finish, target: target}
}

// position returns where the next write lands, opening a file if needed.
func (w *rollingWriter[T, W]) position(ctx context.Context) (string, int64, error) {
	if !w.active {
		cur, err := w.open(ctx)
		if err != nil {
			return "", 0, err
		}
		w.current, w.active = cur, true
	}
	return w.current.Location(), w.current.RecordCount(), nil
}

func (w *rollingWriter[T, W]) write(ctx context.Context, v T) error {
	if _, _, err := w.position(ctx); err != nil {
		return err
	}
	if err := w.current.Write(v); err != nil {
		return err
	}
	if w.target > 0 && w.current.Length() >= w.target {
		return w.roll()
	}
	return nil
}

func (w *rollingWriter[T, W]) roll() error {
	if !w.active {
		return nil
	}
	cur := w.current
	w.active = false
	var zero W
	w.current = zero
	if err := cur.Close(); err != nil {
		return err
	}
	f, err := w.finish(cur)
	if err != nil {
		return err
	}
	w.done = append(w.done, f)
	return nil
}

// close finishes the open file and returns every completed file.
func (w *rollingWriter[T, W]) close() ([]iceberg.DataFile, error) {
	if err := w.roll(); err != nil {
		return w.done, err
	}
	out := w.done
	w.done = nil
	return out, nil
}

// locations lists completed and open file locations.
func (w *rollingWriter[T, W]) locations() []string {
	out := make([]string, 0, len(w.done)+1)
	for _, f := range w.done {
		out = append(out, f.FilePath)
	}
	if w.active {
		out = append(out, w.current.Location())
	}
	return out
}
