package audit

import (
	"context"
	"time"
)

// Action identifies the API operation an event records
type Action string

const (
	ActionCreateBucket    Action = "CreateBucket"
	ActionDeleteBucket    Action = "DeleteBucket"
	ActionPutObject       Action = "PutObject"
	ActionDeleteObject    Action = "DeleteObject"
	ActionCreateDirectory Action = "CreateDirectory"
)

// Event is one recorded API operation. Only mutating operations are
// audited; reads go to the request log instead.
type Event struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Action     Action    `json:"action"`
	Bucket     string    `json:"bucket,omitempty"`
	Key        string    `json:"key,omitempty"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// Store persists audit events
type Store interface {
	LogEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, limit int) ([]Event, error)
	Close() error
}
