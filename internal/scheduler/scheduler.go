package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/metrics"
	"github.com/rs/zerolog"
)

// rescheduleEpsilon bounds two related scheduler behaviors: a
// collectionChanged re-evaluation reschedules a pending
// recheck only if the new next-check time differs from the old one by
// more than this; and a collection removed and re-added within this
// window reuses its previous scheduled instant rather than computing a
// fresh now+interval, to avoid thrashing the heap on a quick
// remove/re-add pair.
const rescheduleEpsilon = time.Second

// FireFunc is invoked when a collection's recheck comes due. It returns
// the interval to wait before the next recheck; returning 0 cancels
// future scheduling for that collection (e.g. the collection was
// deleted or its cache policy no longer applies).
type FireFunc func(collectionID int64) time.Duration

// Scheduler runs collection sync rechecks on a min-heap ordered by
// next run time, behind a Start/Stop lifecycle.
type Scheduler struct {
	fire   FireFunc
	logger zerolog.Logger

	mu      sync.Mutex
	items   taskHeap
	index   map[int64]*task
	removed map[int64]removal
	kick    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// removal remembers the scheduled instant a collection had when it was
// last cancelled, and when that cancellation happened, so a prompt
// re-Schedule can reuse it.
type removal struct {
	at        time.Time
	removedAt time.Time
}

// NewScheduler returns a Scheduler that calls fire when a collection's
// recheck comes due.
func NewScheduler(fire FireFunc) *Scheduler {
	return &Scheduler{
		fire:    fire,
		logger:  log.WithComponent("scheduler"),
		index:   make(map[int64]*task),
		removed: make(map[int64]removal),
		kick:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the scheduler's background run loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the run loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Schedule arranges for collectionID's recheck to fire after interval.
// Calling Schedule again for an already-pending collection
// (collectionChanged re-evaluating its interval) only moves the
// recheck if the new instant differs from the old by more than
// rescheduleEpsilon. Calling Schedule for a collection cancelled less
// than rescheduleEpsilon ago reuses that cancelled instant instead of
// now+interval.
func (s *Scheduler) Schedule(collectionID int64, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	at := now.Add(interval)

	if t, ok := s.index[collectionID]; ok {
		delta := at.Sub(t.at)
		if delta < 0 {
			delta = -delta
		}
		if delta <= rescheduleEpsilon {
			return
		}
		t.at = at
		heap.Fix(&s.items, t.heapIndex)
		s.wakeLocked()
		return
	}

	if r, ok := s.removed[collectionID]; ok {
		if now.Sub(r.removedAt) <= rescheduleEpsilon {
			at = r.at
		}
		delete(s.removed, collectionID)
	}
	s.scheduleLocked(collectionID, at)
	s.wakeLocked()
}

// wakeLocked nudges the run loop to retarget its timer after the heap
// top may have changed.
func (s *Scheduler) wakeLocked() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Cancel removes any pending recheck for collectionID, remembering its
// scheduled instant briefly in case a Schedule call for the same
// collection follows within rescheduleEpsilon.
func (s *Scheduler) Cancel(collectionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneRemovedLocked()
	if t, ok := s.index[collectionID]; ok {
		heap.Remove(&s.items, t.heapIndex)
		delete(s.index, collectionID)
		s.removed[collectionID] = removal{at: t.at, removedAt: time.Now()}
		s.wakeLocked()
	}
}

// pruneRemovedLocked drops tombstones old enough that a subsequent
// Schedule call could no longer reuse them, bounding the map's size.
func (s *Scheduler) pruneRemovedLocked() {
	if len(s.removed) == 0 {
		return
	}
	now := time.Now()
	for id, r := range s.removed {
		if now.Sub(r.removedAt) > rescheduleEpsilon {
			delete(s.removed, id)
		}
	}
}

// Len reports how many rechecks are currently pending.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Scheduler) scheduleLocked(collectionID int64, at time.Time) {
	if t, ok := s.index[collectionID]; ok {
		t.at = at
		heap.Fix(&s.items, t.heapIndex)
		return
	}
	t := &task{collectionID: collectionID, at: at}
	heap.Push(&s.items, t)
	s.index[collectionID] = t
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.items) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.items[0].at)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		timer.Reset(wait)

		select {
		case <-timer.C:
			s.fireDue()
		case <-s.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

// fireDue pops and fires every task whose deadline has passed.
func (s *Scheduler) fireDue() {
	for {
		s.mu.Lock()
		if len(s.items) == 0 || time.Now().Before(s.items[0].at) {
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.items).(*task)
		delete(s.index, t.collectionID)
		s.mu.Unlock()

		metrics.ScheduledRechecksTotal.Inc()
		next := s.fire(t.collectionID)
		if next > 0 {
			s.logger.Debug().Int64("collection_id", t.collectionID).Dur("next_check", next).Msg("recheck fired")
			s.mu.Lock()
			s.scheduleLocked(t.collectionID, time.Now().Add(next))
			s.mu.Unlock()
		}
	}
}
