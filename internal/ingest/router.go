// Package ingest turns fleet MQTT traffic into notifications.
//
// Topics, relative to the configured prefix:
//
//	devices/{id}/status    {"online":bool,"deviceName":"..."}
//	devices/{id}/alarms    {"alarmId","name","level","message","deviceName"}
//	devices/{id}/commands  {"command","success","error","deviceName"}
//	devices/{id}/outputs   {"deviceName","changes":[{"index","name","state"}]}
//	devices/{id}/inputs    {"index","name","state","deviceName"}
//	subscriptions/{id}     {"name","deviceId","deviceName","message"}
//	schedules/{id}         {"name","deviceId","deviceName","command","success","error"}
//	notify                 a raw request: {"title","message","severity",...}
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetnotify/internal/notifier"
)

var ErrUnknownTopic = errors.New("unknown topic")

// Sink is the part of the notification engine the bridge feeds.
type Sink interface {
	Notify(ctx context.Context, req notifier.Request) (string, error)
	NotifyAlarm(ctx context.Context, ev notifier.AlarmEvent) (string, error)
	NotifyDeviceStatus(ctx context.Context, ev notifier.DeviceStatusEvent) (string, error)
	NotifyCommandResult(ctx context.Context, r notifier.CommandResult) (string, error)
	NotifyOutputChanged(ctx context.Context, c notifier.IOChange) (string, error)
	NotifyInputChanged(ctx context.Context, c notifier.IOChange) (string, error)
	NotifySubscriptionTriggered(ctx context.Context, ev notifier.SubscriptionEvent) (string, error)
	NotifySchedulerTriggered(ctx context.Context, ev notifier.SchedulerEvent) (string, error)
	NotifyMultiOutputChanged(ctx context.Context, deviceID, deviceName string, changes []notifier.IOChange) (string, error)
}

type statusMsg struct {
	Online     bool   `json:"online"`
	DeviceName string `json:"deviceName"`
}

type alarmMsg struct {
	AlarmID    string `json:"alarmId"`
	Name       string `json:"name"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	DeviceName string `json:"deviceName"`
}

type commandMsg struct {
	Command    string `json:"command"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	DeviceName string `json:"deviceName"`
}

type ioMsg struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	State      bool   `json:"state"`
	DeviceName string `json:"deviceName"`
}

type outputsMsg struct {
	DeviceName string  `json:"deviceName"`
	Changes    []ioMsg `json:"changes"`
}

type subscriptionMsg struct {
	Name       string `json:"name"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Message    string `json:"message"`
}

type scheduleMsg struct {
	Name       string `json:"name"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Command    string `json:"command"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
}

type requestMsg struct {
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Severity   string            `json:"severity"`
	Priority   string            `json:"priority"`
	Type       string            `json:"type"`
	Channel    string            `json:"channel"`
	DeviceID   string            `json:"deviceId"`
	Duration   string            `json:"duration"`
	Persistent bool              `json:"persistent"`
	GroupKey   string            `json:"groupKey"`
	Tags       []string          `json:"tags"`
	Actions    []notifier.Action `json:"actions"`
	Metadata   map[string]any    `json:"metadata"`
	Silent     bool              `json:"silent"`
	Push       *bool             `json:"push"`
}

// Router maps topics under Prefix to Sink calls.
type Router struct {
	Prefix string
	Sink   Sink
}

// Route decodes payload according to topic and forwards it. It returns the
// notification id assigned by the sink.
func (r Router) Route(ctx context.Context, topic string, payload []byte) (string, error) {
	rel, ok := strings.CutPrefix(topic, strings.TrimSuffix(r.Prefix, "/")+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	parts := strings.Split(rel, "/")

	switch {
	case len(parts) == 3 && parts[0] == "devices":
		return r.device(ctx, parts[1], parts[2], payload)
	case len(parts) == 2 && parts[0] == "subscriptions":
		var m subscriptionMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return r.Sink.NotifySubscriptionTriggered(ctx, notifier.SubscriptionEvent{
			SubscriptionID: parts[1], Name: m.Name, DeviceID: m.DeviceID, DeviceName: m.DeviceName, Message: m.Message,
		})
	case len(parts) == 2 && parts[0] == "schedules":
		var m scheduleMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return r.Sink.NotifySchedulerTriggered(ctx, notifier.SchedulerEvent{
			ScheduleID: parts[1], Name: m.Name, DeviceID: m.DeviceID, DeviceName: m.DeviceName,
			Command: m.Command, Success: m.Success, Error: m.Error,
		})
	case len(parts) == 1 && parts[0] == "notify":
		req, err := decodeRequest(payload)
		if err != nil {
			return "", err
		}
		return r.Sink.Notify(ctx, req)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

func (r Router) device(ctx context.Context, id, kind string, payload []byte) (string, error) {
	switch kind {
	case "status":
		var m statusMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return r.Sink.NotifyDeviceStatus(ctx, notifier.DeviceStatusEvent{DeviceID: id, DeviceName: m.DeviceName, Online: m.Online})
	case "alarms":
		var m alarmMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return r.Sink.NotifyAlarm(ctx, notifier.AlarmEvent{
			AlarmID: m.AlarmID, Name: m.Name, Level: notifier.AlarmLevel(strings.ToLower(m.Level)),
			DeviceID: id, DeviceName: m.DeviceName, Message: m.Message,
		})
	case "commands":
		var m commandMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return r.Sink.NotifyCommandResult(ctx, notifier.CommandResult{
			DeviceID: id, DeviceName: m.DeviceName, Command: m.Command, Success: m.Success, Error: m.Error,
		})
	case "outputs":
		var m outputsMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		if len(m.Changes) == 0 {
			return "", errors.New("outputs payload has no changes")
		}
		changes := make([]notifier.IOChange, 0, len(m.Changes))
		for _, c := range m.Changes {
			changes = append(changes, notifier.IOChange{DeviceID: id, DeviceName: m.DeviceName, Index: c.Index, Name: c.Name, State: c.State})
		}
		if len(changes) == 1 {
			return r.Sink.NotifyOutputChanged(ctx, changes[0])
		}
		return r.Sink.NotifyMultiOutputChanged(ctx, id, m.DeviceName, changes)
	case "inputs":
		var m ioMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return r.Sink.NotifyInputChanged(ctx, notifier.IOChange{DeviceID: id, DeviceName: m.DeviceName, Index: m.Index, Name: m.Name, State: m.State})
	}
	return "", fmt.Errorf("%w: devices/%s/%s", ErrUnknownTopic, id, kind)
}

func decodeRequest(payload []byte) (notifier.Request, error) {
	var m requestMsg
	if err := json.Unmarshal(payload, &m); err != nil {
		return notifier.Request{}, err
	}
	req := notifier.Request{
		Title:      m.Title,
		Message:    m.Message,
		Severity:   notifier.Severity(m.Severity),
		Priority:   notifier.Priority(m.Priority),
		Type:       m.Type,
		Channel:    notifier.Channel(m.Channel),
		DeviceID:   m.DeviceID,
		Persistent: m.Persistent,
		GroupKey:   m.GroupKey,
		Tags:       m.Tags,
		Actions:    m.Actions,
		Metadata:   m.Metadata,
		Silent:     m.Silent,
		Push:       m.Push,
	}
	if m.Duration != "" {
		d, err := time.ParseDuration(m.Duration)
		if err != nil {
			return notifier.Request{}, fmt.Errorf("duration: %w", err)
		}
		req.Duration = d
	}
	return req, nil
}
