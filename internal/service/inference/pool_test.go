package inference

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionengine/internal/dto"
	"visionengine/internal/logger"
)

type stubBackend struct {
	detect func(img image.Image) ([]dto.Detection, error)
	closed atomic.Int32
}

func (b *stubBackend) DetectImage(img image.Image) ([]dto.Detection, error) {
	return b.detect(img)
}

func (b *stubBackend) Close() error {
	b.closed.Add(1)
	return nil
}

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestPool_ReturnsBackendResult(t *testing.T) {
	backend := &stubBackend{detect: func(image.Image) ([]dto.Detection, error) {
		return []dto.Detection{{Class: "smoke", Confidence: 0.7}}, nil
	}}
	pool := NewPool([]Backend{backend}, logger.Discard())
	defer pool.Stop()

	got, err := pool.Detect(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, []dto.Detection{{Class: "smoke", Confidence: 0.7}}, got)
}

func TestPool_PropagatesErrorsAndPanics(t *testing.T) {
	var calls atomic.Int32
	backend := &stubBackend{detect: func(image.Image) ([]dto.Detection, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("bad tensor")
		}
		panic("opencv exploded")
	}}
	pool := NewPool([]Backend{backend}, logger.Discard())
	defer pool.Stop()

	_, err := pool.Detect(context.Background(), frame())
	assert.EqualError(t, err, "bad tensor")

	_, err = pool.Detect(context.Background(), frame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opencv exploded")
}

func TestPool_RunsBackendsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	newBackend := func() *stubBackend {
		return &stubBackend{detect: func(image.Image) ([]dto.Detection, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return nil, nil
		}}
	}
	pool := NewPool([]Backend{newBackend(), newBackend()}, logger.Discard())
	defer pool.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Detect(context.Background(), frame())
		}()
	}

	assert.Eventually(t, func() bool { return peak.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
}

func TestPool_CancelWhileWaiting(t *testing.T) {
	block := make(chan struct{})
	backend := &stubBackend{detect: func(image.Image) ([]dto.Detection, error) {
		<-block
		return nil, nil
	}}
	pool := NewPool([]Backend{backend}, logger.Discard())
	defer pool.Stop()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Detect(ctx, frame())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_StopClosesBackends(t *testing.T) {
	backend := &stubBackend{detect: func(image.Image) ([]dto.Detection, error) { return nil, nil }}
	pool := NewPool([]Backend{backend}, logger.Discard())

	pool.Stop()
	pool.Stop()
	assert.Equal(t, int32(1), backend.closed.Load())

	_, err := pool.Detect(context.Background(), frame())
	assert.ErrorIs(t, err, ErrStopped)
}
