// README: Subscription event topics and the publisher port.
package subscription

import "context"

const (
	TopicStatusChanged  = "subscription.status_changed"
	TopicRidesGenerated = "subscription.rides_generated"
)

// Publisher is satisfied by *infra.Producer. A nil Publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}
