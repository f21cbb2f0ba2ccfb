package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moebius-network/moebius/common/messaging"
)

// RecordHandler receives one decoded record event.
type RecordHandler func(ctx context.Context, event *RecordObservedEvent) error

// SubscribeRecords delivers record events for key, or for every key when key
// is nil. Messages that do not decode are reported as handler errors.
func SubscribeRecords(sub messaging.Subscriber, key *[32]byte, handler RecordHandler) (messaging.Subscription, error) {
	subject := messaging.SubjectAllRecords
	if key != nil {
		subject = messaging.RecordSubject(*key)
	}
	return sub.Subscribe(subject, func(ctx context.Context, msg *messaging.Message) error {
		var event RecordObservedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("decode record event on %s: %w", msg.Subject, err)
		}
		return handler(ctx, &event)
	})
}
