package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"

	"facetrack/debuglog"
)

// queueCapacity bounds the write queue; frames beyond it are skipped
// rather than stalling the pipeline.
const queueCapacity = 256

// Writer streams frame records to a file from a dedicated goroutine
type Writer struct {
	file     *os.File
	buf      *bufio.Writer
	enc      *msgpack.Encoder
	queue    chan FrameRecord
	done     chan struct{}
	writeErr error
	skipped  atomic.Uint64
	closed   atomic.Bool
}

// NewWriter creates the recording file, writes the header and starts the
// writer goroutine.
func NewWriter(path string, header Header) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: create %s: %w", path, err)
	}
	buf := bufio.NewWriter(file)
	enc := msgpack.NewEncoder(buf)
	if err := enc.Encode(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("record: write header: %w", err)
	}

	w := &Writer{
		file:  file,
		buf:   buf,
		enc:   enc,
		queue: make(chan FrameRecord, queueCapacity),
		done:  make(chan struct{}),
	}
	go w.writeLoop()
	return w, nil
}

// Write enqueues one frame record. Returns false when the queue is full
// and the record was skipped.
func (w *Writer) Write(rec FrameRecord) bool {
	if w.closed.Load() {
		return false
	}
	select {
	case w.queue <- rec:
		return true
	default:
		w.skipped.Add(1)
		return false
	}
}

// Skipped reports how many records were dropped by a full queue
func (w *Writer) Skipped() uint64 {
	return w.skipped.Load()
}

// writeLoop drains the queue until Close
func (w *Writer) writeLoop() {
	defer close(w.done)
	for rec := range w.queue {
		if w.writeErr != nil {
			continue // disk already failed; keep draining so Write never blocks
		}
		if err := w.enc.Encode(rec); err != nil {
			w.writeErr = err
			debuglog.Msgf("RECORD", "write failed, recording truncated: %v", err)
		}
	}
}

// Close flushes and closes the file. Safe to call once; returns the first
// write error if the recording was truncated.
func (w *Writer) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	close(w.queue)
	<-w.done

	if skipped := w.skipped.Load(); skipped > 0 {
		debuglog.Msgf("RECORD", "%d frame records skipped under backpressure", skipped)
	}

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if w.writeErr != nil {
		return fmt.Errorf("record: %w", w.writeErr)
	}
	if flushErr != nil {
		return fmt.Errorf("record: flush: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("record: close: %w", closeErr)
	}
	return nil
}

// Read loads a complete recording: header plus every frame record. Meant
// for replay tooling and tests, not for tailing a live recording.
func Read(path string) (Header, []FrameRecord, error) {
	var header Header

	file, err := os.Open(path)
	if err != nil {
		return header, nil, fmt.Errorf("record: open %s: %w", path, err)
	}
	defer file.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(file))
	if err := dec.Decode(&header); err != nil {
		return header, nil, fmt.Errorf("record: read header: %w", err)
	}

	var frames []FrameRecord
	for {
		var rec FrameRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return header, frames, nil
			}
			return header, frames, fmt.Errorf("record: read frame %d: %w", len(frames), err)
		}
		frames = append(frames, rec)
	}
}
