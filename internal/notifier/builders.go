package notifier

import (
	"context"
	"fmt"
	"strings"
)

// AlarmLevel is the level an alarm rule was configured with.
type AlarmLevel string

const (
	AlarmCritical AlarmLevel = "critical"
	AlarmMajor    AlarmLevel = "major"
	AlarmMinor    AlarmLevel = "minor"
	AlarmWarning  AlarmLevel = "warning"
)

type AlarmEvent struct {
	AlarmID    string
	Name       string
	Level      AlarmLevel
	DeviceID   string
	DeviceName string
	Message    string
}

type DeviceStatusEvent struct {
	DeviceID   string
	DeviceName string
	Online     bool
}

type CommandResult struct {
	DeviceID   string
	DeviceName string
	Command    string
	Success    bool
	Error      string
}

type IOChange struct {
	DeviceID   string
	DeviceName string
	Index      int
	Name       string
	State      bool
}

type SubscriptionEvent struct {
	SubscriptionID string
	Name           string
	DeviceID       string
	DeviceName     string
	Message        string
}

type SchedulerEvent struct {
	ScheduleID string
	Name       string
	DeviceID   string
	DeviceName string
	Command    string
	Success    bool
	Error      string
}

func ptr(b bool) *bool { return &b }

func deviceLabel(id, name string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "device"
}

func ioLabel(c IOChange, kind string) string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return fmt.Sprintf("%s %d", kind, c.Index)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func (s *Service) NotifyAlarm(ctx context.Context, ev AlarmEvent) (string, error) {
	sev, prio := SeverityWarning, PriorityNormal
	switch ev.Level {
	case AlarmCritical:
		sev, prio = SeverityError, PriorityCritical
	case AlarmMajor:
		sev, prio = SeverityError, PriorityHigh
	case AlarmMinor:
		prio = PriorityNormal
	case AlarmWarning:
		prio = PriorityLow
	}
	name := ev.Name
	if name == "" {
		name = "Alarm"
	}
	msg := ev.Message
	if msg == "" {
		msg = fmt.Sprintf("%s triggered on %s", name, deviceLabel(ev.DeviceID, ev.DeviceName))
	}
	return s.Notify(ctx, Request{
		Title:      "Alarm: " + name,
		Message:    msg,
		Severity:   sev,
		Priority:   prio,
		Type:       "alarm_triggered",
		AlarmID:    ev.AlarmID,
		DeviceID:   ev.DeviceID,
		GroupKey:   "alarm:" + ev.AlarmID,
		Persistent: ev.Level == AlarmCritical,
		Push:       ptr(prio.Urgent()),
		Tags:       []string{"alarm", string(ev.Level)},
		Metadata:   map[string]any{"level": string(ev.Level), "deviceName": ev.DeviceName},
		Actions: []Action{
			{Label: "Acknowledge", Action: "alarm.ack:" + ev.AlarmID, Variant: "primary"},
			{Label: "View device", Action: "device.view:" + ev.DeviceID},
		},
	})
}

// NotifyDeviceStatus reports a connectivity transition. Going offline is high
// priority and pushed externally.
func (s *Service) NotifyDeviceStatus(ctx context.Context, ev DeviceStatusEvent) (string, error) {
	label := deviceLabel(ev.DeviceID, ev.DeviceName)
	req := Request{
		Type:     "device_status",
		DeviceID: ev.DeviceID,
		GroupKey: "device_status:" + ev.DeviceID,
		Tags:     []string{"device", "status"},
		Metadata: map[string]any{"online": ev.Online},
	}
	if ev.Online {
		req.Title = "Device online"
		req.Message = label + " is back online"
		req.Severity = SeveritySuccess
		req.Priority = PriorityNormal
		req.Push = ptr(false)
	} else {
		req.Title = "Device offline"
		req.Message = label + " went offline"
		req.Severity = SeverityError
		req.Priority = PriorityHigh
		req.Push = ptr(true)
		req.Actions = []Action{{Label: "View device", Action: "device.view:" + ev.DeviceID}}
	}
	return s.Notify(ctx, req)
}

func (s *Service) NotifyCommandResult(ctx context.Context, r CommandResult) (string, error) {
	label := deviceLabel(r.DeviceID, r.DeviceName)
	req := Request{
		Type:     "command_result",
		DeviceID: r.DeviceID,
		GroupKey: "command:" + r.DeviceID + ":" + r.Command,
		Tags:     []string{"command"},
		Metadata: map[string]any{"command": r.Command, "success": r.Success},
	}
	if r.Success {
		req.Title = "Command completed"
		req.Message = fmt.Sprintf("%s executed on %s", r.Command, label)
		req.Severity = SeveritySuccess
		req.Priority = PriorityLow
		req.Push = ptr(false)
	} else {
		req.Title = "Command failed"
		req.Message = fmt.Sprintf("%s failed on %s", r.Command, label)
		if r.Error != "" {
			req.Message += ": " + r.Error
		}
		req.Severity = SeverityError
		req.Priority = PriorityHigh
		req.Push = ptr(true)
		req.Actions = []Action{{Label: "Retry", Action: "command.retry:" + r.DeviceID + ":" + r.Command, Variant: "primary"}}
	}
	return s.Notify(ctx, req)
}

func (s *Service) NotifyOutputChanged(ctx context.Context, c IOChange) (string, error) {
	return s.Notify(ctx, Request{
		Title:    "Output changed",
		Message:  fmt.Sprintf("%s on %s turned %s", ioLabel(c, "Output"), deviceLabel(c.DeviceID, c.DeviceName), onOff(c.State)),
		Severity: SeverityInfo,
		Priority: PriorityLow,
		Type:     "output_changed",
		DeviceID: c.DeviceID,
		GroupKey: fmt.Sprintf("output:%s:%d", c.DeviceID, c.Index),
		Tags:     []string{"io", "output"},
		Metadata: map[string]any{"index": c.Index, "state": c.State},
		Push:     ptr(false),
	})
}

func (s *Service) NotifyInputChanged(ctx context.Context, c IOChange) (string, error) {
	return s.Notify(ctx, Request{
		Title:    "Input changed",
		Message:  fmt.Sprintf("%s on %s is %s", ioLabel(c, "Input"), deviceLabel(c.DeviceID, c.DeviceName), onOff(c.State)),
		Severity: SeverityInfo,
		Priority: PriorityLow,
		Type:     "input_changed",
		DeviceID: c.DeviceID,
		GroupKey: fmt.Sprintf("input:%s:%d", c.DeviceID, c.Index),
		Tags:     []string{"io", "input"},
		Metadata: map[string]any{"index": c.Index, "state": c.State},
		Push:     ptr(false),
	})
}

func (s *Service) NotifySubscriptionTriggered(ctx context.Context, ev SubscriptionEvent) (string, error) {
	name := ev.Name
	if name == "" {
		name = "Subscription"
	}
	msg := ev.Message
	if msg == "" {
		msg = fmt.Sprintf("%s matched on %s", name, deviceLabel(ev.DeviceID, ev.DeviceName))
	}
	return s.Notify(ctx, Request{
		Title:          name,
		Message:        msg,
		Severity:       SeverityInfo,
		Priority:       PriorityNormal,
		Type:           "subscription_triggered",
		SubscriptionID: ev.SubscriptionID,
		DeviceID:       ev.DeviceID,
		GroupKey:       "subscription:" + ev.SubscriptionID,
		Tags:           []string{"subscription"},
		Actions:        []Action{{Label: "View", Action: "subscription.view:" + ev.SubscriptionID}},
	})
}

// NotifySchedulerTriggered reports the outcome of a scheduled command. A
// successful run is normal priority and not pushed.
func (s *Service) NotifySchedulerTriggered(ctx context.Context, ev SchedulerEvent) (string, error) {
	name := ev.Name
	if name == "" {
		name = "Schedule"
	}
	label := deviceLabel(ev.DeviceID, ev.DeviceName)
	req := Request{
		Type:     "scheduler_triggered",
		DeviceID: ev.DeviceID,
		GroupKey: "schedule:" + ev.ScheduleID,
		Tags:     []string{"scheduler"},
		Metadata: map[string]any{"scheduleId": ev.ScheduleID, "command": ev.Command},
	}
	if ev.Success {
		req.Title = name + " ran"
		req.Message = fmt.Sprintf("%s executed on %s", ev.Command, label)
		req.Severity = SeveritySuccess
		req.Priority = PriorityNormal
		req.Push = ptr(false)
	} else {
		req.Title = name + " failed"
		req.Message = fmt.Sprintf("%s failed on %s", ev.Command, label)
		if ev.Error != "" {
			req.Message += ": " + ev.Error
		}
		req.Severity = SeverityError
		req.Priority = PriorityHigh
		req.Push = ptr(true)
	}
	return s.Notify(ctx, req)
}

// NotifyMultiOutputChanged folds several output changes on one device into a
// single notification.
func (s *Service) NotifyMultiOutputChanged(ctx context.Context, deviceID, deviceName string, changes []IOChange) (string, error) {
	if len(changes) == 1 {
		c := changes[0]
		c.DeviceID, c.DeviceName = deviceID, deviceName
		return s.NotifyOutputChanged(ctx, c)
	}
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, ioLabel(c, "Output")+" "+onOff(c.State))
	}
	return s.Notify(ctx, Request{
		Title:    "Outputs changed",
		Message:  fmt.Sprintf("%d outputs changed on %s: %s", len(changes), deviceLabel(deviceID, deviceName), strings.Join(parts, ", ")),
		Severity: SeverityInfo,
		Priority: PriorityLow,
		Type:     "multi_output_changed",
		DeviceID: deviceID,
		GroupKey: "outputs:" + deviceID,
		Tags:     []string{"io", "output"},
		Metadata: map[string]any{"count": len(changes)},
		Push:     ptr(false),
	})
}
