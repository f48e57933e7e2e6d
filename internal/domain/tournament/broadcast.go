package tournament

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
)

// EventType names a run event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventGame     EventType = "game"
	EventFinished EventType = "finished"
)

const subscriberBuffer = 32

// Event is one update about a run.
type Event struct {
	Type      EventType   `json:"type"`
	RunID     id.RunID    `json:"runId"`
	Progress  float64     `json:"progress"`
	Completed int         `json:"completed,omitempty"`
	Total     int         `json:"total,omitempty"`
	Game      *GameRecord `json:"game,omitempty"`
	Run       *Run        `json:"run,omitempty"`
}

type topic struct {
	subs    map[uuid.UUID]chan Event
	limiter *rate.Limiter
}

// Broadcaster fans run events out to subscribers. Progress events are
// throttled per run; game and finished events are always offered. A slow
// subscriber loses events rather than blocking the run, except the finished
// event which replaces the oldest queued one.
type Broadcaster struct {
	mu     sync.Mutex
	hz     float64
	topics map[id.RunID]*topic
}

// NewBroadcaster returns a broadcaster that forwards at most hz progress
// events per second per run. hz <= 0 disables throttling.
func NewBroadcaster(hz float64) *Broadcaster {
	return &Broadcaster{hz: hz, topics: make(map[id.RunID]*topic)}
}

// Open starts the stream of runID. Events for runs that are not open are
// dropped.
func (b *Broadcaster) Open(runID id.RunID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[runID]; ok {
		return
	}
	limit := rate.Inf
	if b.hz > 0 {
		limit = rate.Limit(b.hz)
	}
	b.topics[runID] = &topic{subs: make(map[uuid.UUID]chan Event), limiter: rate.NewLimiter(limit, 1)}
}

// Subscribe registers a subscriber for runID. The channel is closed after
// the run's finished event or on unsubscribe. Subscribing to a run that is
// not open returns an already closed channel.
func (b *Broadcaster) Subscribe(runID id.RunID) (uuid.UUID, <-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	token := uuid.New()
	ch := make(chan Event, subscriberBuffer)
	t, ok := b.topics[runID]
	if !ok {
		close(ch)
		return token, ch, func() {}
	}
	t.subs[token] = ch

	return token, ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if t, ok := b.topics[runID]; ok {
			if c, ok := t.subs[token]; ok {
				delete(t.subs, token)
				close(c)
			}
		}
	}
}

// Publish offers ev to every subscriber of its run.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.RunID]
	if !ok {
		return
	}
	if ev.Type == EventProgress && !t.limiter.Allow() {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			if ev.Type == EventFinished {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}

// Close ends the run's stream, closes every subscriber channel and forgets
// the run.
func (b *Broadcaster) Close(runID id.RunID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		return
	}
	delete(b.topics, runID)
	for token, ch := range t.subs {
		delete(t.subs, token)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers of runID.
func (b *Broadcaster) Subscribers(runID id.RunID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[runID]; ok {
		return len(t.subs)
	}
	return 0
}
