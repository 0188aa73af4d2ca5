package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the kind of change a ResourceEvent reports.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// ResourceEvent is a lightweight change notification. It carries only the
// resource name and id; consumers fetch the current state themselves.
type ResourceEvent struct {
	Resource  string    `json:"resource"`
	ID        int64     `json:"id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewResourceEvent(resource string, id int64, action Action) ResourceEvent {
	return ResourceEvent{
		Resource:  resource,
		ID:        id,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e ResourceEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ResourceEventFromJSON decodes and validates an event.
func ResourceEventFromJSON(data []byte) (ResourceEvent, error) {
	var ev ResourceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ResourceEvent{}, err
	}
	switch ev.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return ResourceEvent{}, fmt.Errorf("unknown action %q", ev.Action)
	}
	if ev.Resource == "" || ev.ID <= 0 {
		return ResourceEvent{}, fmt.Errorf("event without resource or id")
	}
	return ev, nil
}
