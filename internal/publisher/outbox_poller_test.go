package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/kindplate/kindplate/internal/repository"
)

type mockOutboxRepo struct {
	events       []*repository.OutboxEvent
	getErr       error
	cancelErr    error
	publishedIDs []int
	cancelCalls  int
	cancelCutoff time.Time
	cancelled    int
}

func (m *mockOutboxRepo) GetUnpublishedEvents(context.Context, int) ([]*repository.OutboxEvent, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if len(m.events) > 0 {
		ev := []*repository.OutboxEvent{m.events[0]} // Return first event once
		m.events = m.events[1:]
		return ev, nil
	}
	return nil, nil
}

func (m *mockOutboxRepo) MarkEventPublished(_ context.Context, id int) error {
	m.publishedIDs = append(m.publishedIDs, id)
	return nil
}

func (m *mockOutboxRepo) CancelExpiredOrders(_ context.Context, cutoff time.Time) (int, error) {
	m.cancelCalls++
	m.cancelCutoff = cutoff
	if m.cancelErr != nil {
		return 0, m.cancelErr
	}
	return m.cancelled, nil
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	topicConfigs := []kafkaGo.TopicConfig{{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}}

	err = controllerConn.CreateTopics(topicConfigs...)
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, "kindplate-orders")

	// Give Kafka time to fully initialize the topic
	time.Sleep(5 * time.Second)

	mockRepo := &mockOutboxRepo{
		events: []*repository.OutboxEvent{
			{
				ID:          1,
				AggregateID: "9f3b0c7e-1111-2222-3333-444455556666",
				EventType:   "order.created",
				Payload:     json.RawMessage(`{"order_id":"9f3b0c7e-1111-2222-3333-444455556666","status":"NEW"}`),
				CreatedAt:   time.Now(),
			},
		},
	}

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        "kindplate-orders",
		Balancer:     &kafkaGo.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	defer writer.Close()

	poller := &OutboxPoller{
		eventTick:    1 * time.Second,
		recoveryTick: time.Minute,
		paymentTTL:   30 * time.Minute,
		repo:         mockRepo,
		writer:       writer,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    "kindplate-orders",
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	assert.Equal(t, "9f3b0c7e-1111-2222-3333-444455556666", string(msg.Key))

	var payload map[string]interface{}
	err = json.Unmarshal(msg.Value, &payload)
	require.NoError(t, err)
	assert.Equal(t, "NEW", payload["status"])

	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "order.created", string(msg.Headers[0].Value))

	assert.Equal(t, []int{1}, mockRepo.publishedIDs)
}

func TestOutboxPoller_CancelExpiredOrders(t *testing.T) {
	mockRepo := &mockOutboxRepo{cancelled: 3}
	poller := &OutboxPoller{
		paymentTTL: 30 * time.Minute,
		repo:       mockRepo,
	}

	before := time.Now().Add(-30 * time.Minute)
	poller.cancelExpiredOrders(context.Background())

	assert.Equal(t, 1, mockRepo.cancelCalls)
	assert.WithinDuration(t, before, mockRepo.cancelCutoff, time.Second)
}

func TestOutboxPoller_CancelExpiredOrders_RepoError(t *testing.T) {
	mockRepo := &mockOutboxRepo{cancelErr: errors.New("database connection error")}
	poller := &OutboxPoller{
		paymentTTL: 30 * time.Minute,
		repo:       mockRepo,
	}

	// Should not panic, just log error and return
	poller.cancelExpiredOrders(context.Background())
	assert.Equal(t, 1, mockRepo.cancelCalls)
}

func TestOutboxPoller_FetchError(t *testing.T) {
	mockRepo := &mockOutboxRepo{getErr: errors.New("database connection error")}
	poller := &OutboxPoller{repo: mockRepo}

	// Should not panic, just log error and return
	poller.processUnpublishedEvents(context.Background())
	assert.Empty(t, mockRepo.publishedIDs)
}
