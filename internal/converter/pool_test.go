package converter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_Submit(t *testing.T) {
	p := NewWorkerPool(New(DefaultOptions()), 2)
	defer p.Stop()

	data := jpegBytes(t, 200, 150)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.SubmitWithRetry(context.Background(), data, Request{TargetBytes: 5000, ToleranceBytes: 500}, 50)
			if assert.NoError(t, err) {
				assert.NotEmpty(t, out.Data)
			}
		}()
	}
	wg.Wait()

	active, queued := p.Stats()
	require.Zero(t, active)
	require.Zero(t, queued)
}

func TestWorkerPool_Busy(t *testing.T) {
	p := NewWorkerPool(New(DefaultOptions()), 1)
	// Mark started without workers so the queue never drains.
	p.once.Do(func() {})
	for i := 0; i < cap(p.jobs); i++ {
		p.jobs <- job{}
	}

	_, err := p.Submit(context.Background(), nil, Request{TargetBytes: 1})
	require.ErrorIs(t, err, ErrPoolBusy)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.SubmitWithRetry(ctx, nil, Request{TargetBytes: 1}, 2)
	require.ErrorIs(t, err, ErrPoolBusy)
}

func TestWorkerPool_Stopped(t *testing.T) {
	p := NewWorkerPool(New(DefaultOptions()), 1)
	p.Start()
	p.Stop()
	p.Stop()

	_, err := p.Submit(context.Background(), nil, Request{TargetBytes: 1})
	require.ErrorIs(t, err, ErrPoolStopped)
}

func TestWorkerPool_PropagatesErrors(t *testing.T) {
	p := NewWorkerPool(New(DefaultOptions()), 1)
	defer p.Stop()

	_, err := p.Submit(context.Background(), []byte("nope"), Request{TargetBytes: 100})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPoolBusy)
}
