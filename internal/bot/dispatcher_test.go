package bot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherKeepsPerUserOrder(t *testing.T) {
	d := newDispatcher()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.dispatch(1, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.wait()

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestDispatcherRunsUsersConcurrently(t *testing.T) {
	d := newDispatcher()
	release := make(chan struct{})
	done := make(chan struct{})

	d.dispatch(1, func() { <-release })
	d.dispatch(2, func() {
		close(release)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second user was blocked by the first")
	}
	d.wait()
}
