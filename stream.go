package facetrack

import (
	"sync"

	"facetrack/debuglog"
	"facetrack/frame"
)

// streamRun is the state of one streaming session: a stop signal, the
// bounded result channel and a done marker the worker closes on exit.
type streamRun struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	results  chan Result
}

func (r *streamRun) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// StartStreaming begins continuous consumption from a caller-supplied frame
// source. Results arrive on the returned channel in frame-submission order;
// when the consumer lags behind the bounded buffer, the oldest unread
// result is dropped and counted in Stats. The channel is closed when
// streaming stops, whether by StopTracking, Dispose, the source closing or
// a fatal resource error. Valid only from Ready.
func (s *Session) StartStreaming(source <-chan frame.Frame) (<-chan Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
		return nil, ErrNotInitialized
	case StateDisposed:
		return nil, ErrDisposed
	case StateStreaming:
		return nil, ErrStreaming
	}

	run := &streamRun{
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		results: make(chan Result, s.cfg.ResultBuffer),
	}
	s.run = run
	s.state = StateStreaming
	debuglog.Msgf("SESSION", "session %s streaming, result buffer %d", s.id, s.cfg.ResultBuffer)

	go s.streamLoop(source, run)
	return run.results, nil
}

// StopTracking halts streaming consumption and returns the session to
// Ready. The stop takes effect before the next frame begins processing; a
// frame already in its pipeline finishes first. Blocks until the worker
// has exited.
func (s *Session) StopTracking() error {
	s.mu.Lock()
	if s.state != StateStreaming {
		state := s.state
		s.mu.Unlock()
		if state == StateDisposed {
			return ErrDisposed
		}
		return ErrNotStreaming
	}
	run := s.run
	s.mu.Unlock()

	run.requestStop()
	<-run.done
	return nil
}

// streamLoop is the single streaming worker. One worker per run keeps
// results strictly in submission order; waiting for the next source frame
// is the only blocking point.
func (s *Session) streamLoop(source <-chan frame.Frame, run *streamRun) {
	defer close(run.done)
	defer close(run.results)

	for {
		select {
		case <-run.stop:
			s.finishStreaming(run)
			return
		case f, ok := <-source:
			if !ok {
				debuglog.Msgf("SESSION", "session %s frame source closed", s.id)
				s.finishStreaming(run)
				return
			}
			// A stop that raced with the frame wins; the frame is not
			// processed.
			select {
			case <-run.stop:
				s.finishStreaming(run)
				return
			default:
			}

			s.mu.Lock()
			if s.state != StateStreaming {
				s.mu.Unlock()
				return
			}
			res, err := s.processLocked(f)
			s.mu.Unlock()
			if err != nil {
				// Input errors surface through the stream so a malformed
				// frame is visible without killing the run. A resource
				// error means the model is gone; no later frame can
				// succeed, so the run ends after reporting it.
				res = Result{Timestamp: f.Timestamp, Err: err}
				if Classify(err) == KindResource {
					debuglog.Msgf("SESSION", "session %s streaming halted: %v", s.id, err)
					s.emit(run, res)
					s.finishStreaming(run)
					return
				}
			}
			s.emit(run, res)
		}
	}
}

// finishStreaming transitions back to Ready if this run is still current
func (s *Session) finishStreaming(run *streamRun) {
	s.mu.Lock()
	if s.state == StateStreaming && s.run == run {
		s.state = StateReady
		s.run = nil
	}
	s.mu.Unlock()
}

// emit delivers a result under the bounded-buffer policy: when the buffer
// is full the oldest unread result is discarded to make room, so the
// channel never grows and the producer never blocks on a slow consumer.
func (s *Session) emit(run *streamRun, res Result) {
	for {
		select {
		case run.results <- res:
			return
		default:
		}
		select {
		case <-run.results:
			s.stats.recordDrop()
		default:
		}
	}
}
