package ingest

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// PubSubSource feeds one subscription into the router under a fixed route.
type PubSubSource struct {
	subscription receiver
	route        string
	router       *Router
	logg         *logger.Logger
}

func NewPubSubSource(subscription receiver, route string, router *Router, logg *logger.Logger) (*PubSubSource, error) {
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if route == "" {
		return nil, fmt.Errorf("route required")
	}
	if router == nil {
		return nil, fmt.Errorf("router required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PubSubSource{subscription: subscription, route: route, router: router, logg: logg}, nil
}

// Run receives until ctx is canceled. Settled messages are acked; transient
// failures are nacked for redelivery.
func (s *PubSubSource) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "route", s.route), "pubsub source started")
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if retry, _ := s.router.Dispatch(ctx, s.toMessage(msg)); retry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *PubSubSource) toMessage(msg *pubsub.Message) Message {
	return Message{
		ID:         msg.ID,
		Route:      s.route,
		Key:        msg.OrderingKey,
		Data:       msg.Data,
		Attributes: msg.Attributes,
	}
}
