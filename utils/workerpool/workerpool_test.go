package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsEveryJob(t *testing.T) {
	p := New(4, 16, nil)
	p.Start()

	var n atomic.Int64
	for range 100 {
		require.NoError(t, p.Submit(context.Background(), func() { n.Add(1) }))
	}
	p.Stop()

	assert.Equal(t, int64(100), n.Load())
}

func TestPool_SurvivesPanics(t *testing.T) {
	p := New(1, 4, nil)
	p.Start()

	var ran atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func() { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func() { ran.Store(true) }))
	p.Stop()

	assert.True(t, ran.Load())
}

func TestPool_TrySubmitWhenFull(t *testing.T) {
	p := New(1, 1, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	p.Start()
	defer p.Stop()

	require.True(t, p.TrySubmit(func() {
		close(started)
		<-release
	}))
	<-started
	require.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, func() {}), context.DeadlineExceeded)

	close(release)
}

func TestPool_RejectsAfterStop(t *testing.T) {
	p := New(2, 2, nil)
	p.Start()
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrStopped)
	assert.False(t, p.TrySubmit(func() {}))
}
