package pose

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle(t *testing.T) {
	h := newHandle()
	assert.False(t, h.IsDone())

	go h.finish()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle never finished")
	}
	h.Wait()
	h.finish()
	assert.True(t, h.IsDone())
}

func TestMainThreadQueue(t *testing.T) {
	q := NewMainThreadQueue(2)
	var ran int
	q.Post(func() { ran++ })
	q.Post(func() { ran++ })
	q.Post(func() { ran++ })

	assert.Equal(t, int64(1), q.Dropped())
	assert.Equal(t, 2, q.Pump())
	assert.Equal(t, 2, ran)
	assert.Equal(t, 0, q.Pump())
}

func TestPoolRunner(t *testing.T) {
	pool := worker.NewDynamicWorkerPool(4, 32, time.Second)
	r := NewPoolRunner(pool)

	var count atomic.Int32
	handles := make([]*Handle, 10)
	for i := range handles {
		h := newHandle()
		handles[i] = h
		require.NoError(t, r.Submit(func() {
			count.Add(1)
			h.finish()
		}))
	}
	for _, h := range handles {
		h.Wait()
	}
	assert.Equal(t, int32(10), count.Load())

	assert.Error(t, NewPoolRunner(nil).Submit(func() {}))
}

func TestInlineRunner(t *testing.T) {
	ran := false
	require.NoError(t, InlineRunner{}.Submit(func() { ran = true }))
	assert.True(t, ran)
}
