// Package notify fans task lifecycle events out to websocket subscribers.
// Workers publish events to a Redis channel; the API server bridges that
// channel into an in-process hub holding the websocket connections.
package notify

import "encoding/json"

// Event types sent over the websocket.
const (
	EventConnected      = "connected"
	EventPing           = "ping"
	EventPong           = "pong"
	EventStatusUpdate   = "status_update"
	EventProgressUpdate = "progress_update"
	EventCompletion     = "completion"
)

// Event is the wire format shared by the Redis bridge and the websocket.
type Event struct {
	Type     string          `json:"type"`
	TaskID   string          `json:"task_id,omitempty"`
	Status   string          `json:"status,omitempty"`
	Progress *int            `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
	Message  string          `json:"message,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// StatusEvent reports a task status change, optionally with an error message.
func StatusEvent(taskID, status, errMsg string) Event {
	return Event{Type: EventStatusUpdate, TaskID: taskID, Status: status, Error: errMsg}
}

// ProgressEvent reports a progress percentage.
func ProgressEvent(taskID string, progress int) Event {
	return Event{Type: EventProgressUpdate, TaskID: taskID, Progress: &progress}
}

// CompletionEvent carries the final result payload.
func CompletionEvent(taskID string, result any) Event {
	data, err := json.Marshal(result)
	if err != nil {
		data = []byte("{}")
	}
	return Event{Type: EventCompletion, TaskID: taskID, Result: data}
}
