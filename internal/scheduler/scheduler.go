package scheduler

import (
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pheanex/zmon-worker/internal/domain/check"
	"github.com/pheanex/zmon-worker/internal/plugin"
	"github.com/pheanex/zmon-worker/internal/pool"
)

// Submitter is the pool-facing side of dispatch.
type Submitter interface {
	Submit(pool.Task)
}

type entryState int

const (
	stateIdle entryState = iota
	stateDispatched
)

// entry pairs a definition with its scheduling state. Entries are owned by
// the scheduler goroutine exclusively; workers report completions through
// the done channel, never by touching entries.
type entry struct {
	def     check.Definition
	impl    plugin.Plugin
	state   entryState
	nextDue time.Time
	lastRun time.Time
}

type completion struct {
	checkID string
	res     check.Result
}

// Scheduler decides which checks are due each tick and dispatches them
// oldest-due first, with at most one in-flight task per check.
type Scheduler struct {
	log     *zap.Logger
	pool    Submitter
	entries map[string]*entry
	order   []string
	done    chan completion
	rng     *rand.Rand
}

// Item is one resolved, validated check handed to the scheduler.
type Item struct {
	Def  check.Definition
	Impl plugin.Plugin
}

func New(log *zap.Logger, p Submitter, items []Item) *Scheduler {
	s := &Scheduler{
		log:     log.With(zap.String("component", "scheduler")),
		pool:    p,
		entries: make(map[string]*entry, len(items)),
		done:    make(chan completion, len(items)+1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	now := time.Now()
	for _, it := range items {
		if !it.Def.Enabled {
			continue
		}
		s.entries[it.Def.ID] = &entry{
			def:     it.Def,
			impl:    it.Impl,
			nextDue: now.Add(s.jitter(it.Def)),
		}
		s.order = append(s.order, it.Def.ID)
	}
	sort.Strings(s.order)
	return s
}

// Len reports how many checks are under management.
func (s *Scheduler) Len() int { return len(s.entries) }

// Tick drains finished completions, then dispatches every idle entry whose
// due time has passed. Returns the number of dispatched tasks.
func (s *Scheduler) Tick(now time.Time) int {
	s.drain()

	due := make([]*entry, 0)
	for _, id := range s.order {
		e := s.entries[id]
		if e.state == stateIdle && !now.Before(e.nextDue) {
			due = append(due, e)
		}
	}
	// Oldest-due first so a saturated pool rejects the freshest work.
	sort.Slice(due, func(i, j int) bool { return due[i].nextDue.Before(due[j].nextDue) })

	for _, e := range due {
		e.state = stateDispatched
		e.lastRun = now
		id := e.def.ID
		s.pool.Submit(pool.Task{
			Def:    e.def,
			Plugin: e.impl,
			Due:    e.nextDue,
			OnDone: func(res check.Result) {
				s.done <- completion{checkID: id, res: res}
			},
		})
	}
	return len(due)
}

// drain applies completions recorded since the last tick. The next due
// time is computed from actual completion, not the missed slot, so a run
// that overran its interval never triggers a catch-up burst.
func (s *Scheduler) drain() {
	for {
		select {
		case c := <-s.done:
			e, ok := s.entries[c.checkID]
			if !ok {
				continue
			}
			e.state = stateIdle
			e.nextDue = c.res.FinishedAt.Add(e.def.Interval + s.jitter(e.def))
		default:
			return
		}
	}
}

// jitter returns a bounded random offset within [0, def.Jitter*interval]
// to spread checks with identical intervals apart.
func (s *Scheduler) jitter(def check.Definition) time.Duration {
	if def.Jitter <= 0 {
		return 0
	}
	return time.Duration(s.rng.Float64() * def.Jitter * float64(def.Interval))
}
