package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/bus"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/recipient"
)

// Enqueuer is the slice of the queue service the listener needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts *queue.Options) (string, error)
}

// Listener bridges domain events to notification jobs: for every event it
// is subscribed to, it resolves the opted-in audience of the event's
// aggregate and enqueues one send job per contact.
type Listener struct {
	queue      Enqueuer
	resolver   *recipient.Resolver
	logger     *zap.Logger
	templates  map[string]string
	subs       []*bus.Subscription
	onEnqueued func()
}

func NewListener(q Enqueuer, resolver *recipient.Resolver, logger *zap.Logger) *Listener {
	return &Listener{
		queue:    q,
		resolver: resolver,
		logger:   logger,
		// Event type -> notification template.
		templates: map[string]string{
			"post.published":       "new-post",
			"store.sale.started":   "sale-started",
			"order.status.changed": "order-status",
		},
	}
}

// OnEnqueued installs a callback fired once per job the listener enqueues,
// used for metrics.
func (l *Listener) OnEnqueued(fn func()) { l.onEnqueued = fn }

// Register subscribes the listener to every event type it has a template
// for. Call Close to detach.
func (l *Listener) Register(b *bus.Bus) {
	for eventType := range l.templates {
		l.subs = append(l.subs, b.Subscribe(eventType, l.handle))
	}
}

func (l *Listener) Close() {
	for _, s := range l.subs {
		s.Unsubscribe()
	}
	l.subs = nil
}

// handle fans one event out into per-recipient jobs. Individual enqueue
// failures are logged and skipped so one full queue tier cannot suppress
// the rest of the audience; the bus never sees an error from this handler.
func (l *Listener) handle(ctx context.Context, evt domain.Event) error {
	recipients := l.resolver.Resolve(ctx, evt.AggregateID)
	if len(recipients) == 0 {
		l.logger.Debug("event has no audience",
			zap.String("event_id", evt.ID), zap.String("event_type", evt.Type))
		return nil
	}

	template := l.templates[evt.Type]
	enqueued := 0
	for _, r := range recipients {
		payload := SendPayload{
			To:          r.ContactAddress,
			TemplateID:  template,
			DisplayName: r.DisplayName,
		}
		dedupe := evt.ID + ":" + r.ContactAddress
		_, err := l.queue.Enqueue(ctx, SendJobType, payload, &queue.Options{
			Priority:  evt.JobPriority(),
			DedupeKey: dedupe,
		})
		if err != nil {
			l.logger.Warn("could not enqueue notification",
				zap.String("event_id", evt.ID),
				zap.String("to", r.ContactAddress),
				zap.Error(err))
			continue
		}
		enqueued++
		if l.onEnqueued != nil {
			l.onEnqueued()
		}
	}

	l.logger.Info("event fanned out",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.Int("recipients", len(recipients)),
		zap.Int("enqueued", enqueued))
	return nil
}
