package stream

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"visionengine/internal/dto"
	"visionengine/internal/logger"
)

// Sink receives the messages of a session in order: one *dto.FrameEvent per
// frame, then a single dto.StreamEnd. A sink error means the consumer is gone.
type Sink func(v any) error

// Session is one streaming request. It owns its source, its optional camera
// permit and its staged files, and releases all of them when it ends.
type Session struct {
	info     SessionInfo
	source   FrameSource
	opts     Options
	detector Detector
	encoder  *Encoder
	janitor  *Janitor
	observer Observer
	logger   *logger.Logger
	started  atomic.Bool
}

// Info returns the identity of the session.
func (s *Session) Info() SessionInfo {
	return s.info
}

// FrameCount reports the number of frames the source's container declares.
// ok is false when the source does not know.
func (s *Session) FrameCount() (n int, ok bool) {
	counter, isCounter := s.source.(FrameCounter)
	if !isCounter {
		return 0, false
	}
	n = counter.FrameCount()
	return n, n >= 0
}

// Run pumps frames from the source to sink until end of stream, cancellation
// of ctx, a sink failure or a processing error. Cancellation and sink
// failures are not errors. Resources are released before Run returns. A
// session runs at most once.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionConsumed
	}

	outcome, frames, err := s.pump(ctx, sink)
	s.finish(Summary{Outcome: outcome, Frames: frames, Err: err})
	return err
}

// Close releases a session that will never run. It does nothing once Run has started.
func (s *Session) Close() {
	if s.started.CompareAndSwap(false, true) {
		s.finish(Summary{Outcome: OutcomeCancelled})
	}
}

func (s *Session) pump(ctx context.Context, sink Sink) (Outcome, int, error) {
	fps := s.opts.frameRate(s.source.FPS())
	var interval time.Duration
	if s.info.Kind == KindWebcam {
		interval = time.Duration(float64(time.Second) / s.opts.MaxFPS)
	}

	startedAt := time.Now()
	emitted := 0
	for index := 0; ; index++ {
		if ctx.Err() != nil {
			return OutcomeCancelled, emitted, nil
		}

		frameStartedAt := time.Now()
		img, err := s.source.Next(ctx)
		if errors.Is(err, ErrEndOfStream) {
			if err := sink(dto.StreamEnd{Done: true}); err != nil {
				return OutcomeCancelled, emitted, nil
			}
			return OutcomeCompleted, emitted, nil
		}
		if err != nil {
			return s.abort(ctx, sink, emitted, fmt.Errorf("read frame %d: %w", index, err))
		}

		inferenceStartedAt := time.Now()
		detections, err := s.detector.Detect(ctx, img)
		if err != nil {
			return s.abort(ctx, sink, emitted, fmt.Errorf("detect frame %d: %w", index, err))
		}
		inference := time.Since(inferenceStartedAt)

		event, err := s.encoder.Encode(Frame{
			Kind:        s.info.Kind,
			Timestamp:   s.timestamp(index, fps, frameStartedAt.Sub(startedAt)),
			Detections:  detections,
			Image:       img,
			Preview:     s.opts.IncludePreview,
			DeviceIndex: s.opts.DeviceIndex,
		})
		if err != nil {
			return s.abort(ctx, sink, emitted, fmt.Errorf("encode frame %d: %w", index, err))
		}

		if ctx.Err() != nil {
			return OutcomeCancelled, emitted, nil
		}
		if err := sink(event); err != nil {
			s.logger.Debug("Session %s: consumer gone: %v", s.info.ID, err)
			return OutcomeCancelled, emitted, nil
		}
		emitted++
		s.observer.FrameProcessed(s.info, inference, event.Detections)

		if !s.pace(ctx, interval, frameStartedAt) {
			return OutcomeCancelled, emitted, nil
		}
	}
}

// timestamp is frame based for video and wall clock based for the webcam.
func (s *Session) timestamp(index int, fps float64, elapsed time.Duration) float64 {
	switch s.info.Kind {
	case KindVideo:
		return float64(index) / fps
	case KindWebcam:
		return elapsed.Seconds()
	default:
		return 0
	}
}

// pace caps the webcam output rate and yields for file sources. It returns
// false when ctx was cancelled while waiting.
func (s *Session) pace(ctx context.Context, interval time.Duration, frameStartedAt time.Time) bool {
	if s.info.Kind != KindWebcam {
		runtime.Gosched()
		return true
	}

	wait := interval - time.Since(frameStartedAt)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// abort ends the stream with a terminal error message unless the failure was
// caused by cancellation.
func (s *Session) abort(ctx context.Context, sink Sink, emitted int, err error) (Outcome, int, error) {
	if ctx.Err() != nil {
		return OutcomeCancelled, emitted, nil
	}
	if sinkErr := sink(dto.StreamEnd{Done: true, Error: err.Error()}); sinkErr != nil {
		s.logger.Debug("Session %s: could not deliver error event: %v", s.info.ID, sinkErr)
	}
	return OutcomeFailed, emitted, err
}

func (s *Session) finish(summary Summary) {
	s.janitor.Cleanup()
	summary.EndedAt = time.Now()

	if summary.Err != nil {
		s.logger.Error("Session %s (%s) failed after %d frames: %v", s.info.ID, s.info.Kind, summary.Frames, summary.Err)
	} else {
		s.logger.Info("Session %s (%s) %s after %d frames", s.info.ID, s.info.Kind, summary.Outcome, summary.Frames)
	}
	s.observer.SessionEnded(s.info, summary)
}
