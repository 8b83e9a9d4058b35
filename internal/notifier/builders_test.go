package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued(t *testing.T, s *Service, id string) Notification {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.queue {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("notification %s not queued", id)
	return Notification{}
}

func TestBuilders(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, testConfig(), nil, nil)

	t.Run("alarm critical", func(t *testing.T) {
		id, err := s.NotifyAlarm(ctx, AlarmEvent{AlarmID: "al-1", Name: "Overheat", Level: AlarmCritical, DeviceID: "d1", DeviceName: "Pump"})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, ChannelAlarm, n.Channel)
		assert.Equal(t, PriorityCritical, n.Priority)
		assert.Equal(t, SeverityError, n.Severity)
		assert.True(t, n.Persistent)
		assert.Zero(t, n.Duration)
		assert.True(t, n.Push)
		assert.Equal(t, "alarm:al-1", n.GroupKey)
		assert.Equal(t, "Overheat triggered on Pump", n.Message)
		require.Len(t, n.Actions, 2)
		assert.Equal(t, "alarm.ack:al-1", n.Actions[0].Action)
	})

	t.Run("device offline is pushed", func(t *testing.T) {
		id, err := s.NotifyDeviceStatus(ctx, DeviceStatusEvent{DeviceID: "d2", DeviceName: "Gate", Online: false})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, ChannelDevice, n.Channel)
		assert.Equal(t, PriorityHigh, n.Priority)
		assert.True(t, n.Push)
		assert.Equal(t, "Gate went offline", n.Message)
	})

	t.Run("device online", func(t *testing.T) {
		id, err := s.NotifyDeviceStatus(ctx, DeviceStatusEvent{DeviceID: "d3", Online: true})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, SeveritySuccess, n.Severity)
		assert.False(t, n.Push)
		assert.Equal(t, "d3 is back online", n.Message)
	})

	t.Run("command failure", func(t *testing.T) {
		id, err := s.NotifyCommandResult(ctx, CommandResult{DeviceID: "d4", Command: "reboot", Error: "timeout"})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, ChannelCommand, n.Channel)
		assert.Equal(t, SeverityError, n.Severity)
		assert.True(t, n.Push)
		assert.Equal(t, "reboot failed on d4: timeout", n.Message)
	})

	t.Run("scheduler success is not pushed", func(t *testing.T) {
		id, err := s.NotifySchedulerTriggered(ctx, SchedulerEvent{ScheduleID: "s1", Name: "Night mode", DeviceID: "d5", Command: "lights_off", Success: true})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, ChannelScheduler, n.Channel)
		assert.Equal(t, PriorityNormal, n.Priority)
		assert.False(t, n.Push)
		assert.Equal(t, "Night mode ran", n.Title)
	})

	t.Run("io changes", func(t *testing.T) {
		id, err := s.NotifyOutputChanged(ctx, IOChange{DeviceID: "d6", Index: 2, State: true})
		require.NoError(t, err)
		assert.Equal(t, "Output 2 on d6 turned ON", queued(t, s, id).Message)

		id, err = s.NotifyInputChanged(ctx, IOChange{DeviceID: "d6", Name: "Door", State: false})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, "Door on d6 is OFF", n.Message)
		assert.Equal(t, PriorityLow, n.Priority)
	})

	t.Run("subscription", func(t *testing.T) {
		id, err := s.NotifySubscriptionTriggered(ctx, SubscriptionEvent{SubscriptionID: "sub-1", Name: "Tank low", DeviceID: "d7"})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, ChannelSubscription, n.Channel)
		assert.Equal(t, "Tank low matched on d7", n.Message)
	})

	t.Run("multi output", func(t *testing.T) {
		id, err := s.NotifyMultiOutputChanged(ctx, "d8", "Relay board", []IOChange{{Index: 1, State: true}, {Index: 2, State: false}})
		require.NoError(t, err)
		n := queued(t, s, id)
		assert.Equal(t, "multi_output_changed", n.Type)
		assert.Equal(t, "2 outputs changed on Relay board: Output 1 ON, Output 2 OFF", n.Message)

		id, err = s.NotifyMultiOutputChanged(ctx, "d8", "Relay board", []IOChange{{Index: 3, State: true}})
		require.NoError(t, err)
		assert.Equal(t, "output_changed", queued(t, s, id).Type)
	})
}

func TestMiddleware(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, testConfig(), nil, nil)

	s.AddMiddleware("tag", func(_ context.Context, n *Notification) (*Notification, error) {
		n.Tags = append(n.Tags, "seen")
		return n, nil
	})
	s.AddMiddleware("boom", func(_ context.Context, n *Notification) (*Notification, error) {
		n.Title = "mutated before panic"
		panic("bad middleware")
	})
	s.AddMiddleware("drop-debug", func(_ context.Context, n *Notification) (*Notification, error) {
		if n.Type == "debug" {
			return nil, ErrDrop
		}
		return n, nil
	})

	id, err := s.Notify(ctx, req("T", "M"))
	require.NoError(t, err)
	n := queued(t, s, id)
	assert.Equal(t, []string{"seen"}, n.Tags)
	assert.Equal(t, "T", n.Title)

	id, err = s.Notify(ctx, Request{Title: "T", Message: "M2", Type: "debug"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	s.mu.Lock()
	assert.Len(t, s.queue, 1)
	s.mu.Unlock()

	// Replacing keeps position; removal is idempotent.
	s.AddMiddleware("tag", func(_ context.Context, n *Notification) (*Notification, error) {
		n.Tags = append(n.Tags, "v2")
		return n, nil
	})
	s.RemoveMiddleware("boom")
	s.RemoveMiddleware("boom")
	s.RemoveMiddleware("never-added")
	s.mu.Lock()
	names := []string{}
	for _, m := range s.middleware {
		names = append(names, m.name)
	}
	s.mu.Unlock()
	assert.Equal(t, []string{"tag", "drop-debug"}, names)

	id, _ = s.Notify(ctx, req("T", "M3"))
	assert.Equal(t, []string{"v2"}, queued(t, s, id).Tags)
}
