package bot

import "sync"

// dispatcher runs jobs for one user strictly in arrival order while jobs of
// different users run concurrently.
type dispatcher struct {
	mu      sync.Mutex
	queues  map[int64][]func()
	running map[int64]bool
	wg      sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		queues:  make(map[int64][]func()),
		running: make(map[int64]bool),
	}
}

func (d *dispatcher) dispatch(userID int64, job func()) {
	d.mu.Lock()
	d.queues[userID] = append(d.queues[userID], job)
	if d.running[userID] {
		d.mu.Unlock()
		return
	}
	d.running[userID] = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(userID)
}

func (d *dispatcher) drain(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			delete(d.running, userID)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		job()
	}
}

// wait blocks until every queued job has finished.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
