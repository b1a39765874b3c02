// Package journal records every frame crossing a connection as
// zstd-compressed JSON lines and reads such journals back.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/message"
	"github.com/peterkuimelis/colonia/internal/net"
)

// Entry is one journal line.
type Entry struct {
	Time  time.Time     `json:"time"`
	Conn  string        `json:"conn"`
	Flow  net.Flow      `json:"flow"`
	Frame message.Frame `json:"frame"`
}

// ErrClosedJournal is returned by Write after Close.
var ErrClosedJournal = errors.New("journal closed")

// Writer appends entries to a zstd stream. It implements net.Recorder.
type Writer struct {
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	closer io.Closer
	enc    *zstd.Encoder
	w      *bufio.Writer
	count  int
	err    error
}

// Create opens path for appending and returns a writer over it.
func Create(path string, logger *zap.Logger) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter writes entries to wc, which is closed by Close.
func NewWriter(wc io.WriteCloser, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := zstd.NewWriter(wc, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	return &Writer{
		logger: logger,
		now:    time.Now,
		closer: wc,
		enc:    enc,
		w:      bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

// Record implements net.Recorder. The first write failure is logged once
// and kept for Err; later frames are dropped.
func (w *Writer) Record(connID string, flow net.Flow, f message.Frame) {
	if err := w.Write(Entry{Time: w.now().UTC(), Conn: connID, Flow: flow, Frame: f}); err != nil {
		w.mu.Lock()
		first := w.err == nil
		if first {
			w.err = err
		}
		w.mu.Unlock()
		if first && !errors.Is(err, ErrClosedJournal) {
			w.logger.Warn("journal write failed", zap.Error(err))
		}
	}
}

// Write appends one entry and flushes it to the compressor.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return ErrClosedJournal
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return w.w.Flush()
}

// Count reports the number of entries written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Err returns the first error seen by Record.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close finishes the zstd stream and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	_ = w.w.Flush()
	err := w.enc.Close()
	if cerr := w.closer.Close(); err == nil {
		err = cerr
	}
	w.w, w.enc = nil, nil
	return err
}

// Read decodes r and calls fn for each entry in order. Returning an error
// from fn stops the read and returns that error.
func Read(r io.Reader, fn func(Entry) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("line %d: unmarshal: %w", line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadFile is Read over the file at path.
func ReadFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Read(f, fn); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
