package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnFiltersByTypeInOrder(t *testing.T) {
	b := New()
	var got []string
	b.On("a", func(e Event) { got = append(got, "first:"+e.Type) })
	b.On(All, func(e Event) { got = append(got, "all:"+e.Type) })
	b.On("b", func(e Event) { got = append(got, "b:"+e.Type) })

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	assert.Equal(t, []string{"first:a", "all:a", "all:b", "b:b"}, got)
}

func TestOffIsIdempotent(t *testing.T) {
	b := New()
	calls := 0
	id := b.On("x", func(Event) { calls++ })

	b.Publish(Event{Type: "x"})
	b.Off(id)
	b.Off(id)
	b.Off(12345)
	b.Publish(Event{Type: "x"})

	assert.Equal(t, 1, calls)
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	b := New()
	reached := false
	b.On("x", func(Event) { panic("bad subscriber") })
	b.On("x", func(Event) { reached = true })

	require.NotPanics(t, func() { b.Publish(Event{Type: "x"}) })
	assert.True(t, reached)
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})

	e := <-ch
	assert.Equal(t, "one", e.Type)
	assert.False(t, e.Time.IsZero())
	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered event %q", extra.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	require.NotPanics(t, func() { b.Publish(Event{Type: "after"}) })
}
