package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"visionengine/internal/dto"
	"visionengine/internal/logger"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("inference pool stopped")

// Backend runs the model on one frame. A backend is only used by a single
// worker at a time.
type Backend interface {
	DetectImage(img image.Image) ([]dto.Detection, error)
	Close() error
}

// Pool spreads detection work over a fixed set of workers, one backend each,
// so slow inference never runs on the goroutine serving a stream.
type Pool struct {
	backends []Backend
	logger   *logger.Logger

	tasks chan task
	quit  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

type task struct {
	ctx   context.Context
	img   image.Image
	reply chan result
}

type result struct {
	detections []dto.Detection
	err        error
}

// NewPool starts one worker per backend.
func NewPool(backends []Backend, logger *logger.Logger) *Pool {
	pool := &Pool{
		backends: backends,
		logger:   logger,
		tasks:    make(chan task),
		quit:     make(chan struct{}),
	}

	for i := range backends {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Inference pool started with %d worker(s)", len(backends))
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.backends)
}

// Detect waits for a free worker, runs the model and returns its detections.
// It gives up when ctx is cancelled; a frame already being processed is
// finished by the worker and its result dropped.
func (p *Pool) Detect(ctx context.Context, img image.Image) ([]dto.Detection, error) {
	t := task{ctx: ctx, img: img, reply: make(chan result, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrStopped
	}

	select {
	case r := <-t.reply:
		return r.detections, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug("Inference worker %d started", workerID)
	for {
		select {
		case t := <-p.tasks:
			t.reply <- p.process(workerID, t)
		case <-p.quit:
			p.logger.Debug("Inference worker %d stopped", workerID)
			return
		}
	}
}

func (p *Pool) process(workerID int, t task) (r result) {
	if err := t.ctx.Err(); err != nil {
		return result{err: err}
	}

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Inference worker %d panicked: %v", workerID, rec)
			r = result{err: fmt.Errorf("inference failed: %v", rec)}
		}
	}()

	detections, err := p.backends[workerID].DetectImage(t.img)
	if err != nil {
		p.logger.Error("Object detection failed on worker %d: %v", workerID, err)
	}
	return result{detections: detections, err: err}
}

// Stop stops all workers and closes their backends.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
		for i, b := range p.backends {
			if err := b.Close(); err != nil {
				p.logger.Warning("Failed to close detector %d: %v", i, err)
			}
		}
		p.logger.Info("All inference workers stopped")
	})
}
