package stream

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionengine/internal/dto"
	"visionengine/internal/logger"
)

func newTestEngine(opener Opener, detector Detector, observer Observer) *Engine {
	return NewEngine(opener, detector, NewArbiter(), NewEncoder(0, 0), observer, logger.Discard(), DefaultFallbackFPS)
}

func TestSession_VideoEmitsEveryFrameThenDone(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(staged, []byte("video"), 0644))

	src := newFakeSource(3, 10)
	detector := &fakeDetector{results: [][]dto.Detection{{fire}, {}, {fire}}}
	observer := &recordingObserver{}
	engine := newTestEngine(&fakeOpener{video: src}, detector, observer)

	session, err := engine.OpenVideo(staged, Options{}, staged)
	require.NoError(t, err)

	var out collector
	require.NoError(t, session.Run(context.Background(), out.sink))

	require.Len(t, out.events, 3)
	assert.Equal(t, []float64{0, 0.1, 0.2}, []float64{out.events[0].T, out.events[1].T, out.events[2].T})
	assert.Len(t, out.events[0].Detections, 1)
	assert.Empty(t, out.events[1].Detections)
	assert.NotNil(t, out.events[1].Detections)
	assert.Len(t, out.events[2].Detections, 1)
	assert.Equal(t, 0.912, out.events[0].Detections[0].Confidence)
	assert.Equal(t, [4]float64{10.12, 20.46, 30.79, 40}, out.events[0].Detections[0].BBox)
	assert.Empty(t, out.events[0].Source)
	assert.Nil(t, out.events[0].DeviceIndex)

	assert.Equal(t, []dto.StreamEnd{{Done: true}}, out.ends)
	assert.Equal(t, 1, src.closeCount())
	assert.NoFileExists(t, staged)

	summary := observer.lastSummary()
	assert.Equal(t, OutcomeCompleted, summary.Outcome)
	assert.Equal(t, 3, summary.Frames)
	assert.Equal(t, 3, observer.frames)
}

func TestSession_VideoWithoutRateUsesFallback(t *testing.T) {
	engine := newTestEngine(&fakeOpener{video: newFakeSource(2, 0)}, &fakeDetector{}, nil)

	session, err := engine.OpenVideo("clip.mp4", Options{})
	require.NoError(t, err)

	var out collector
	require.NoError(t, session.Run(context.Background(), out.sink))
	require.Len(t, out.events, 2)
	assert.Equal(t, 0.04, out.events[1].T)
}

func TestSession_EmptyVideoOnlySendsDone(t *testing.T) {
	engine := newTestEngine(&fakeOpener{video: newFakeSource(0, 30)}, &fakeDetector{}, nil)

	session, err := engine.OpenVideo("empty.mp4", Options{})
	require.NoError(t, err)

	var out collector
	require.NoError(t, session.Run(context.Background(), out.sink))
	assert.Empty(t, out.events)
	assert.Equal(t, []dto.StreamEnd{{Done: true}}, out.ends)
}

type countingSource struct {
	*fakeSource
	count int
}

func (s countingSource) FrameCount() int { return s.count }

func TestSession_FrameCount(t *testing.T) {
	engine := newTestEngine(&fakeOpener{video: newFakeSource(1, 30)}, &fakeDetector{}, nil)
	session, err := engine.OpenVideo("clip.mp4", Options{})
	require.NoError(t, err)
	_, ok := session.FrameCount()
	assert.False(t, ok)
	session.Close()

	engine = newTestEngine(&fakeOpener{video: countingSource{fakeSource: newFakeSource(0, 30), count: 0}}, &fakeDetector{}, nil)
	session, err = engine.OpenVideo("empty.mp4", Options{})
	require.NoError(t, err)
	n, ok := session.FrameCount()
	assert.True(t, ok)
	assert.Equal(t, 0, n)
	session.Close()

	engine = newTestEngine(&fakeOpener{video: countingSource{fakeSource: newFakeSource(0, 30), count: -1}}, &fakeDetector{}, nil)
	session, err = engine.OpenVideo("live", Options{})
	require.NoError(t, err)
	_, ok = session.FrameCount()
	assert.False(t, ok)
	session.Close()
}

func TestSession_CancelStopsWithoutDone(t *testing.T) {
	src := newFakeSource(10, 25)
	observer := &recordingObserver{}
	engine := newTestEngine(&fakeOpener{video: src}, &fakeDetector{}, observer)

	session, err := engine.OpenVideo("clip.mp4", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := collector{onEvent: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	require.NoError(t, session.Run(ctx, out.sink))
	assert.Len(t, out.events, 2)
	assert.Empty(t, out.ends)
	assert.Equal(t, 1, src.closeCount())
	assert.Equal(t, OutcomeCancelled, observer.lastSummary().Outcome)
}

func TestSession_WebcamIsPacedAndReleasesPermit(t *testing.T) {
	src := newFakeSource(1, 30)
	src.loop = true
	engine := newTestEngine(&fakeOpener{camera: src}, &fakeDetector{results: [][]dto.Detection{{fire}}}, nil)

	session, err := engine.OpenWebcam(CameraDescriptor{Index: 2}, Options{MaxFPS: 20, DeviceIndex: 2})
	require.NoError(t, err)
	assert.True(t, engine.Arbiter().Busy())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := collector{onEvent: func(n int) {
		if n == 4 {
			cancel()
		}
	}}

	require.NoError(t, session.Run(ctx, out.sink))
	require.Len(t, out.events, 4)
	for i, event := range out.events {
		assert.Equal(t, "webcam", event.Source)
		require.NotNil(t, event.DeviceIndex)
		assert.Equal(t, 2, *event.DeviceIndex)
		if i > 0 {
			gap := out.received[i].Sub(out.received[i-1])
			assert.GreaterOrEqual(t, gap, 40*time.Millisecond, "frame %d arrived too early", i)
			assert.Greater(t, event.T, out.events[i-1].T)
		}
	}
	assert.Empty(t, out.ends)
	assert.False(t, engine.Arbiter().Busy())
	assert.Equal(t, 1, src.closeCount())
}

func TestSession_WebcamPreviewIsIncluded(t *testing.T) {
	src := newFakeSource(1, 30)
	src.loop = true
	engine := newTestEngine(&fakeOpener{camera: src}, &fakeDetector{}, nil)

	session, err := engine.OpenWebcam(CameraDescriptor{}, Options{MaxFPS: 30, IncludePreview: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := collector{onEvent: func(int) { cancel() }}

	require.NoError(t, session.Run(ctx, out.sink))
	require.Len(t, out.events, 1)
	assert.NotEmpty(t, out.events[0].Frame)
}

func TestSession_DetectorFailureEndsWithError(t *testing.T) {
	src := newFakeSource(5, 10)
	observer := &recordingObserver{}
	detector := &fakeDetector{err: errors.New("model crashed"), failAt: 2}
	engine := newTestEngine(&fakeOpener{video: src}, detector, observer)

	session, err := engine.OpenVideo("clip.mp4", Options{})
	require.NoError(t, err)

	var out collector
	err = session.Run(context.Background(), out.sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")

	assert.Len(t, out.events, 1)
	require.Len(t, out.ends, 1)
	assert.True(t, out.ends[0].Done)
	assert.Contains(t, out.ends[0].Error, "model crashed")
	assert.Equal(t, 1, src.closeCount())
	assert.Equal(t, OutcomeFailed, observer.lastSummary().Outcome)
}

func TestSession_ReadFailureEndsWithError(t *testing.T) {
	src := newFakeSource(1, 10)
	src.readErr = errors.New("stream reset")
	engine := newTestEngine(&fakeOpener{video: src}, &fakeDetector{}, nil)

	session, err := engine.OpenVideo("clip.mp4", Options{})
	require.NoError(t, err)

	var out collector
	require.Error(t, session.Run(context.Background(), out.sink))
	assert.Len(t, out.events, 1)
	require.Len(t, out.ends, 1)
	assert.Contains(t, out.ends[0].Error, "stream reset")
}

func TestSession_SinkFailureIsDisconnect(t *testing.T) {
	src := newFakeSource(3, 10)
	observer := &recordingObserver{}
	engine := newTestEngine(&fakeOpener{video: src}, &fakeDetector{}, observer)

	session, err := engine.OpenVideo("clip.mp4", Options{})
	require.NoError(t, err)

	out := collector{err: errors.New("broken pipe")}
	require.NoError(t, session.Run(context.Background(), out.sink))
	assert.Equal(t, 1, src.closeCount())
	assert.Equal(t, OutcomeCancelled, observer.lastSummary().Outcome)
	assert.Equal(t, 0, observer.lastSummary().Frames)
}

func TestSession_RunsOnlyOnce(t *testing.T) {
	src := newFakeSource(1, 10)
	engine := newTestEngine(&fakeOpener{video: src}, &fakeDetector{}, nil)

	session, err := engine.OpenVideo("clip.mp4", Options{})
	require.NoError(t, err)

	var out collector
	require.NoError(t, session.Run(context.Background(), out.sink))
	assert.ErrorIs(t, session.Run(context.Background(), out.sink), ErrSessionConsumed)
	assert.Len(t, out.events, 1)
	assert.Equal(t, 1, src.closeCount())
}

func TestSession_CloseBeforeRunReleases(t *testing.T) {
	src := newFakeSource(1, 30)
	observer := &recordingObserver{}
	engine := newTestEngine(&fakeOpener{camera: src}, &fakeDetector{}, observer)

	session, err := engine.OpenWebcam(CameraDescriptor{}, Options{MaxFPS: 10})
	require.NoError(t, err)

	session.Close()
	session.Close()
	assert.False(t, engine.Arbiter().Busy())
	assert.Equal(t, 1, src.closeCount())
	assert.Len(t, observer.ended, 1)
	assert.ErrorIs(t, session.Run(context.Background(), func(any) error { return nil }), ErrSessionConsumed)
}

func TestSession_ImageIsSingleFrame(t *testing.T) {
	engine := newTestEngine(&fakeOpener{image: newFakeSource(1, 0)}, &fakeDetector{results: [][]dto.Detection{{fire}}}, nil)

	session, err := engine.OpenImage("photo.jpg", Options{})
	require.NoError(t, err)

	var out collector
	require.NoError(t, session.Run(context.Background(), out.sink))
	require.Len(t, out.events, 1)
	assert.Equal(t, 0.0, out.events[0].T)
	assert.Len(t, out.events[0].Detections, 1)
	assert.Len(t, out.ends, 1)
}
