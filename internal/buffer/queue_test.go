package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DrainFIFO(t *testing.T) {
	q := NewQueue[string]()

	require.True(t, q.Enqueue("a"))
	require.True(t, q.Enqueue("b", "c"))
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, []string{"a", "b", "c"}, q.Drain())
	assert.Zero(t, q.Len())
	assert.Nil(t, q.Drain(), "second drain of an empty queue returns nil")
}

func TestQueue_DrainDoesNotAliasNewItems(t *testing.T) {
	q := NewQueue[int]()
	q.Enqueue(1, 2)
	first := q.Drain()

	q.Enqueue(3)
	second := q.Drain()

	assert.Equal(t, []int{1, 2}, first)
	assert.Equal(t, []int{3}, second)
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue[int]()
	q.Enqueue(1)
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(2), "enqueue after close must be rejected")
	assert.False(t, q.Enqueue(), "empty enqueue after close is rejected too")
	assert.Equal(t, []int{1}, q.Drain(), "queued items survive close")
	assert.Nil(t, q.Drain())
}

func TestQueue_ConcurrentProducersLoseNothing(t *testing.T) {
	q := NewQueue[int]()
	const producers, perProducer = 8, 500

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained []int
	)
	stop := make(chan struct{})
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			batch := q.Drain()
			mu.Lock()
			drained = append(drained, batch...)
			mu.Unlock()
			select {
			case <-stop:
				return
			default:
			}
		}
	}()

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()
	close(stop)
	<-consumerDone
	drained = append(drained, q.Drain()...)

	require.Len(t, drained, producers*perProducer)
	seen := make(map[int]bool, len(drained))
	for _, v := range drained {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}

	// Each producer's items stay in its own enqueue order.
	last := make(map[int]int)
	for _, v := range drained {
		p := v / perProducer
		if prev, ok := last[p]; ok {
			assert.Greater(t, v, prev)
		}
		last[p] = v
	}
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk(items, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(items, 5))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(items, 0))
	assert.Nil(t, Chunk([]int{}, 3))

	chunks := Chunk(items, 2)
	chunks[0] = append(chunks[0], 99)
	assert.Equal(t, 3, items[2], "appending to a chunk must not overwrite the next one")
}
