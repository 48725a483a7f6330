// Package scheduler triggers recurring task materialization for every
// department at startup and then once per interval.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/recurring"
)

const DefaultInterval = time.Minute

type Materializer interface {
	Materialize(ctx context.Context, department string, opts recurring.Options) (int, error)
}

type Scheduler struct {
	materializer Materializer
	departments  []string
	interval     time.Duration
	stop         chan bool
	done         chan struct{}
	inflight     sync.WaitGroup
}

func NewScheduler(m Materializer, departments []string) *Scheduler {
	return &Scheduler{
		materializer: m,
		departments:  append([]string(nil), departments...),
		interval:     DefaultInterval,
		stop:         make(chan bool),
		done:         make(chan struct{}),
	}
}

func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *Scheduler) Departments() []string {
	return append([]string(nil), s.departments...)
}

// Start runs one pass immediately and then one per interval until Stop is
// called. Passes do not wait for each other, so a department whose lock is
// held for long only delays its own instances.
func (s *Scheduler) Start() {
	log.Printf("[scheduler] started for %d department(s), interval %s", len(s.departments), s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.dispatch(context.Background(), recurring.Options{})
	for {
		select {
		case <-s.stop:
			s.inflight.Wait()
			log.Printf("[scheduler] stopped")
			close(s.done)
			return
		case <-ticker.C:
			s.dispatch(context.Background(), recurring.Options{})
		}
	}
}

// Stop ends the loop and returns once every in-flight run has finished.
func (s *Scheduler) Stop() {
	s.stop <- true
	<-s.done
}

func (s *Scheduler) dispatch(ctx context.Context, opts recurring.Options) {
	for _, dep := range s.departments {
		s.inflight.Add(1)
		go func(dep string) {
			defer s.inflight.Done()
			s.run(ctx, dep, opts)
		}(dep)
	}
}

func (s *Scheduler) run(ctx context.Context, department string, opts recurring.Options) int {
	created, err := s.materializer.Materialize(ctx, department, opts)
	if err != nil {
		log.Printf("[scheduler] materialization for %s failed: %v", department, err)
		return 0
	}
	return created
}

// MaterializeAll runs every department once and returns the number of
// instances created in total. Failures are logged per department.
func (s *Scheduler) MaterializeAll(ctx context.Context, force bool) int {
	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)

	for _, dep := range s.departments {
		wg.Add(1)
		go func(dep string) {
			defer wg.Done()
			n := s.run(ctx, dep, recurring.Options{Force: force})
			mu.Lock()
			total += n
			mu.Unlock()
		}(dep)
	}
	wg.Wait()

	return total
}
