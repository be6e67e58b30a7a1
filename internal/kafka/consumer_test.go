package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/pubcrawl-badges/internal/config"
	"github.com/pubcrawl-badges/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu      sync.Mutex
	batches []domain.BatchCheckInSubmission
}

func (h *recordingHandler) RecordCheckInBatch(_ context.Context, batch domain.BatchCheckInSubmission) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, batch)
	return nil
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "pub-checkins" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newTestHandler(batchSize int, handler CheckInHandler) *consumerGroupHandler {
	return &consumerGroupHandler{
		consumer: &Consumer{
			config: &config.KafkaConfig{
				Topic:        "pub-checkins",
				BatchSize:    batchSize,
				BatchTimeout: time.Hour,
			},
			handler: handler,
			logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		ready: make(chan bool),
	}
}

func TestDecodeCheckIn(t *testing.T) {
	sub, err := DecodeCheckIn([]byte(`{"user_id":"user1","pub_id":"pub1","timestamp":"2024-03-01T21:30:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "user1", sub.UserID)
	assert.Equal(t, "pub1", sub.PubID)
	assert.Equal(t, time.Date(2024, 3, 1, 21, 30, 0, 0, time.UTC), sub.Timestamp.UTC())

	sub, err = DecodeCheckIn([]byte(`{"user_id":"user1","pub_id":"pub1"}`))
	require.NoError(t, err)
	assert.True(t, sub.Timestamp.IsZero())

	_, err = DecodeCheckIn([]byte(`{"user_id":"user1"}`))
	assert.True(t, errors.Is(err, domain.ErrInvalidCheckIn))

	_, err = DecodeCheckIn([]byte(`not json`))
	assert.Error(t, err)
}

func TestConsumeClaim_BatchesAndSkipsInvalid(t *testing.T) {
	handler := &recordingHandler{}
	h := newTestHandler(2, handler)
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}

	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"user_id":"u1","pub_id":"p1"}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte(`garbage`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: []byte(`{"user_id":"u2","pub_id":"p2"}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 4, Value: []byte(`{"user_id":"u3","pub_id":"p3"}`)}
	close(claim.messages)

	require.NoError(t, h.ConsumeClaim(session, claim))

	require.Len(t, handler.batches, 2)
	assert.Len(t, handler.batches[0].CheckIns, 2)
	assert.Equal(t, "u1", handler.batches[0].CheckIns[0].UserID)
	assert.Equal(t, "u2", handler.batches[0].CheckIns[1].UserID)
	require.Len(t, handler.batches[1].CheckIns, 1)
	assert.Equal(t, "u3", handler.batches[1].CheckIns[0].UserID)
	assert.Equal(t, []int64{1, 2, 3, 4}, session.marked)
}

func TestConsumeClaim_FlushesOnSessionEnd(t *testing.T) {
	handler := &recordingHandler{}
	h := newTestHandler(10, handler)
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	claim.messages <- &sarama.ConsumerMessage{Offset: 7, Value: []byte(`{"user_id":"u1","pub_id":"p1"}`)}
	require.Eventually(t, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return len(session.marked) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return")
	}
	require.Len(t, handler.batches, 1)
	assert.Equal(t, "u1", handler.batches[0].CheckIns[0].UserID)
}
