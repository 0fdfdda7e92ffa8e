package storage

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/meshbook/pkg/pipeline"
)

type NopWAL struct{}

func NewNopWAL() *NopWAL          { return &NopWAL{} }
func (w *NopWAL) Append(_ string) {}

// FileWAL appends one line per applied operation. Lines are buffered and
// reach the file on Flush or Close.
type FileWAL struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f, w: bufio.NewWriter(f)}, nil
}

func (w *FileWAL) Append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.w, line)
}

func (w *FileWAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

var _ pipeline.Journal = (*NopWAL)(nil)
var _ pipeline.Journal = (*FileWAL)(nil)
