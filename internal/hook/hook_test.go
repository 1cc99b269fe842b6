package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Contract: subscribers run in ascending priority order, ties broken by
// registration order.
func Test_Manager_Runs_Subscribers_By_Priority_Then_Registration(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)

	var order []string

	note := func(name string) Func {
		return func(context.Context, *Context) error {
			order = append(order, name)

			return nil
		}
	}

	m.Register(BeforeSync, "a", 10, note("a"))
	m.Register(BeforeSync, "b", 5, note("b"))
	m.Register(BeforeSync, "c", 10, note("c"))

	m.Trigger(context.Background(), BeforeSync, NewContext(Event{}))

	assert.Equal(t, []string{"b", "a", "c"}, order)
}

// Contract: a failing subscriber is recorded on the context and later
// subscribers still run.
func Test_Manager_Continues_After_Subscriber_Error(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	boom := errors.New("boom")

	var ran bool

	m.Register(BeforeParse, "fails", 0, func(context.Context, *Context) error { return boom })
	m.Register(BeforeParse, "runs", 1, func(context.Context, *Context) error {
		ran = true

		return nil
	})

	hc := NewContext(Event{})
	m.Trigger(context.Background(), BeforeParse, hc)

	assert.True(t, ran, "second subscriber should run after first failed")
	require.Error(t, hc.Err())
	assert.ErrorIs(t, hc.Err(), boom)
	assert.False(t, hc.Cancelled())
}

// Contract: Cancel stops the remaining subscribers and is visible to the
// trigger site.
func Test_Manager_Stops_When_Subscriber_Cancels(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)

	var ran bool

	m.Register(BeforeCreateSubtask, "cancels", 0, func(_ context.Context, hc *Context) error {
		hc.Cancel()

		return nil
	})
	m.Register(BeforeCreateSubtask, "skipped", 1, func(context.Context, *Context) error {
		ran = true

		return nil
	})

	hc := NewContext(Event{})
	m.Trigger(context.Background(), BeforeCreateSubtask, hc)

	assert.True(t, hc.Cancelled())
	assert.False(t, ran, "subscriber after Cancel must not run")
	assert.NoError(t, hc.Err())
}

// Contract: an expired context stops the trigger before any subscriber
// runs.
func Test_Manager_Honors_Context_Cancellation(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)

	var ran bool

	m.Register(AfterSync, "never", 0, func(context.Context, *Context) error {
		ran = true

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.Trigger(ctx, AfterSync, NewContext(Event{}))

	assert.False(t, ran)
}

// Contract: Unregister removes subscribers by name at one point only.
func Test_Manager_Unregister_Removes_By_Name(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)

	var calls []string

	note := func(name string) Func {
		return func(context.Context, *Context) error {
			calls = append(calls, name)

			return nil
		}
	}

	m.Register(OnError, "gone", 0, note("on_error/gone"))
	m.Register(OnError, "stays", 1, note("on_error/stays"))
	m.Register(AfterMatch, "gone", 0, note("after_match/gone"))

	m.Unregister(OnError, "gone")

	m.Trigger(context.Background(), OnError, NewContext(Event{}))
	m.Trigger(context.Background(), AfterMatch, NewContext(Event{}))

	assert.Equal(t, []string{"on_error/stays", "after_match/gone"}, calls)
}

// Contract: every trigger stamps the event with a unique uuid, a
// timestamp, and the point, and records it in the bounded history, newest
// last.
func Test_Manager_History_Is_Stamped_And_Bounded(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	ctx := context.Background()

	for range 300 {
		m.Trigger(ctx, BeforeTransition, NewContext(Event{StoryID: "US-001", Phase: "statuses"}))
	}

	hist := m.History()
	require.Len(t, hist, 256)

	last := hist[len(hist)-1]
	assert.Equal(t, BeforeTransition, last.Point)
	assert.Equal(t, "statuses", last.Phase)
	assert.False(t, last.Time.IsZero())

	_, err := uuid.Parse(last.ID)
	require.NoError(t, err, "event ID should be a uuid")

	assert.NotEqual(t, hist[0].ID, hist[1].ID, "event IDs should be unique")
}
