// Package hook is a fixed-point publish/subscribe mechanism for observing
// and steering a sync run. Subscribers attach to one of an enumerated set
// of points; the engine triggers each point with an event payload and
// inspects the context afterwards for accumulated errors or cancellation.
package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storysync/internal/story"
)

// Point identifies one trigger site inside the engine.
type Point string

const (
	BeforeParse             Point = "before_parse"
	AfterParse              Point = "after_parse"
	BeforeMatch             Point = "before_match"
	AfterMatch              Point = "after_match"
	OnMatchFailure          Point = "on_match_failure"
	BeforeSync              Point = "before_sync"
	AfterSync               Point = "after_sync"
	BeforeUpdateDescription Point = "before_update_description"
	AfterUpdateDescription  Point = "after_update_description"
	BeforeCreateSubtask     Point = "before_create_subtask"
	AfterCreateSubtask      Point = "after_create_subtask"
	BeforeAddComment        Point = "before_add_comment"
	AfterAddComment         Point = "after_add_comment"
	BeforeTransition        Point = "before_transition"
	AfterTransition         Point = "after_transition"
	OnError                 Point = "on_error"
)

// maxHistory bounds the in-memory event log; oldest entries are dropped.
const maxHistory = 256

// Event is the payload delivered to subscribers at a trigger. ID and Time
// are assigned by NewContext, Point by Trigger; the remaining fields are
// whatever the trigger site knows.
type Event struct {
	ID       string
	Time     time.Time
	Point    Point
	StoryID  story.ID
	IssueKey story.IssueKey
	Phase    string
	Err      error
}

// Context carries one event through a trigger. Subscribers may record
// errors or cancel the remaining subscribers; the trigger site reads both
// afterwards.
type Context struct {
	Event Event

	cancelled bool
	errs      []error
}

// NewContext wraps an event payload for one trigger, assigning the event
// ID and timestamp. The point is stamped by Trigger.
func NewContext(ev Event) *Context {
	ev.ID = uuid.NewString()
	ev.Time = time.Now()

	return &Context{Event: ev}
}

// Cancel stops the remaining subscribers of the current trigger. The
// trigger site observes it via Cancelled and decides what to skip.
func (c *Context) Cancel() { c.cancelled = true }

// Cancelled reports whether a subscriber cancelled this trigger.
func (c *Context) Cancelled() bool { return c.cancelled }

// Err returns the subscriber errors accumulated during the trigger,
// joined, or nil when every subscriber succeeded.
func (c *Context) Err() error { return errors.Join(c.errs...) }

// Func is a subscriber callback.
type Func func(ctx context.Context, hc *Context) error

type subscriber struct {
	name     string
	priority int
	fn       Func
}

// Manager holds subscribers per point and a bounded history of triggered
// events. Safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	subs    map[Point][]subscriber
	history []Event
	log     *zap.SugaredLogger
}

func NewManager(log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Manager{subs: make(map[Point][]subscriber), log: log}
}

// Register attaches fn to a point. Lower priority runs earlier; equal
// priorities run in registration order.
func (m *Manager) Register(point Point, name string, priority int, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := append(m.subs[point], subscriber{name: name, priority: priority, fn: fn})
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].priority < subs[j].priority })
	m.subs[point] = subs
}

// Unregister removes every subscriber with the given name from a point.
func (m *Manager) Unregister(point Point, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[point][:0]

	for _, s := range m.subs[point] {
		if s.name != name {
			subs = append(subs, s)
		}
	}

	m.subs[point] = subs
}

// Trigger stamps the event with the point, records it in the history, and
// runs the point's subscribers in order. A subscriber error is recorded on
// hc and later subscribers still run; cancellation (or an expired ctx)
// stops the remainder.
func (m *Manager) Trigger(ctx context.Context, point Point, hc *Context) {
	if hc == nil {
		hc = NewContext(Event{})
	}

	hc.Event.Point = point

	subs := m.record(hc.Event, point)
	if len(subs) == 0 {
		return
	}

	m.log.Debugw("hook triggered", "point", string(point), "event_id", hc.Event.ID, "subscribers", len(subs))

	for _, s := range subs {
		if ctx.Err() != nil || hc.cancelled {
			return
		}

		if err := s.fn(ctx, hc); err != nil {
			hc.errs = append(hc.errs, err)
			m.log.Debugw("hook subscriber failed", "point", string(point), "name", s.name, "error", err)
		}
	}
}

// record appends the event to the bounded history and snapshots the
// point's subscribers under the lock.
func (m *Manager) record(ev Event, point Point) []subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, ev)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}

	subs := make([]subscriber, len(m.subs[point]))
	copy(subs, m.subs[point])

	return subs
}

// History returns a copy of the recorded events, newest last.
func (m *Manager) History() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, len(m.history))
	copy(out, m.history)

	return out
}
