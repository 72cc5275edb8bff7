package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"winery/internal/core"
)

// RecordChanged announces a console write. It carries only identifiers; the
// consumer fetches whatever it needs from the API.
type RecordChanged struct {
	Resource  string           `json:"resource"`
	RecordID  int64            `json:"recordId"`
	Action    core.AuditAction `json:"action"`
	Date      string           `json:"date,omitempty"`
	ChangedBy string           `json:"changedBy,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

var errMissingResource = errors.New("record changed message without resource")

// NewRecordChanged creates a message stamped with the current time.
func NewRecordChanged(resource string, id int64, action core.AuditAction, changedBy string) *RecordChanged {
	return &RecordChanged{
		Resource:  resource,
		RecordID:  id,
		Action:    action,
		ChangedBy: changedBy,
		Timestamp: time.Now(),
	}
}

// WithDate attaches the business date of the record, for entries and events.
func (m *RecordChanged) WithDate(d core.Date) *RecordChanged {
	if !d.IsZero() {
		m.Date = d.String()
	}
	return m
}

// ToJSON converts the message to JSON bytes
func (m *RecordChanged) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordChangedFromJSON(data []byte) (*RecordChanged, error) {
	var msg RecordChanged
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Resource == "" {
		return nil, errMissingResource
	}
	return &msg, nil
}
