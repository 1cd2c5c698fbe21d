package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"walletwise/internal/core"
)

// ActivitySyncMessage asks the worker to mirror one activity row. It only
// carries identifiers; the worker reads the row from the activity log.
type ActivitySyncMessage struct {
	MessageID  uuid.UUID   `json:"message_id"`
	ActivityID int64       `json:"activity_id"`
	Ref        uuid.UUID   `json:"ref"`
	Action     core.Action `json:"action"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewActivitySyncMessage builds the message for a stored activity.
func NewActivitySyncMessage(a core.Activity) *ActivitySyncMessage {
	return &ActivitySyncMessage{
		MessageID:  uuid.New(),
		ActivityID: a.ID,
		Ref:        a.Ref,
		Action:     a.Action,
		Timestamp:  time.Now().UTC(),
	}
}

func (m *ActivitySyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivitySyncMessageFromJSON decodes and sanity-checks a message body.
func ActivitySyncMessageFromJSON(data []byte) (*ActivitySyncMessage, error) {
	var msg ActivitySyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ActivityID <= 0 {
		return nil, errors.New("message has no activity id")
	}
	return &msg, nil
}
