package publisher

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kindplate/kindplate/internal/repository"
)

// OutboxRepo is the slice of the order repository the poller needs.
type OutboxRepo interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int) error
	CancelExpiredOrders(ctx context.Context, cutoff time.Time) (int, error)
}

// OutboxPoller drains pending order events into kafka and, on a slower tick,
// cancels unpaid orders that sat in NEW past the payment deadline, restoring
// their reserved quantities.
type OutboxPoller struct {
	eventTick    time.Duration
	recoveryTick time.Duration
	paymentTTL   time.Duration
	repo         OutboxRepo
	writer       *kafka.Writer
}

func NewOutboxPoller(repo OutboxRepo, paymentTTL time.Duration, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "kindplate-orders",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick:    time.Second,
		recoveryTick: 30 * time.Second,
		paymentTTL:   paymentTTL,
		repo:         repo,
		writer:       w,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.cancelExpiredOrders(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnpublishedEvents(ctx, 100)
	if err != nil {
		log.Printf("failed to fetch events %v", err)
		return
	}

	for _, event := range events {
		errPublish := p.publishToKafka(ctx, event)
		if errPublish != nil {
			log.Printf("failed to publish event id = %v with error %v", event.ID, errPublish)
			continue
		}

		errMark := p.repo.MarkEventPublished(ctx, event.ID)
		if errMark != nil {
			log.Printf("failed to mark event as published id = %v with error %v", event.ID, errMark)
			continue
		}
	}
}

func (p *OutboxPoller) cancelExpiredOrders(ctx context.Context) {
	cutoff := time.Now().Add(-p.paymentTTL)
	cancelled, err := p.repo.CancelExpiredOrders(ctx, cutoff)
	if err != nil {
		log.Printf("failed to cancel expired orders: %v", err)
		return
	}
	if cancelled > 0 {
		log.Printf("cancelled %d expired orders, quantities restored", cancelled)
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order_id for ordering
		Value: event.Payload,             // Already JSON from database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}
