package bus

import (
	"context"

	"github.com/okian/chorus/pkg/logger"
)

// Bridge forwards every topic in both directions between a and b. Neither
// side echoes its own publishes, so forwarded messages do not loop. The
// returned Subscription tears the bridge down.
func Bridge(ctx context.Context, a, b Bus, log logger.Logger) (Subscription, error) {
	if log == nil {
		log = logger.Get().Named("bridge")
	}
	var subs []Subscription
	teardown := subscriptionFunc(func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	})

	forward := func(dst Bus, topic Topic) Handler {
		return func(ctx context.Context, payload []byte) {
			if err := dst.Publish(ctx, topic, payload); err != nil {
				log.Warn(ctx, "bridge forward failed", logger.String("topic", string(topic)), logger.Error(err))
			}
		}
	}

	for _, topic := range Topics() {
		s, err := a.Subscribe(ctx, topic, forward(b, topic))
		if err != nil {
			teardown()
			return nil, err
		}
		subs = append(subs, s)

		if s, err = b.Subscribe(ctx, topic, forward(a, topic)); err != nil {
			teardown()
			return nil, err
		}
		subs = append(subs, s)
	}
	return teardown, nil
}
