package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"example.com/dwitter/internal/models"
	"example.com/dwitter/internal/store"
	"github.com/segmentio/kafka-go"
)

// TestWorker_GracefulShutdown ensures that the worker:
// 1. Processes takedown commands from Kafka.
// 2. Applies the deletions to the store.
// 3. Shuts down gracefully when the context is canceled.
func TestWorker_GracefulShutdown(t *testing.T) {
	mockStore := store.NewMock()
	dweet := seedDweet(t, mockStore)

	cmd := models.Takedown{Action: models.TakedownDeleteDweet, DweetID: dweet.ID}
	data, _ := json.Marshal(cmd)

	// Mock Kafka reader with a single message
	mockKafka := &MockKafkaReader{
		Messages: []kafka.Message{{Value: data}},
	}

	// Context with timeout to simulate graceful shutdown signal
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	// Initialize worker with mock store and Kafka reader
	worker := &Worker{
		store:        mockStore,
		reader:       mockKafka,
		workerCount:  2,
		jobQueueSize: 4,
	}

	// Run the worker in a separate goroutine
	go func() {
		worker.Run(ctx) // Worker processes messages until ctx.Done()
		close(done)
	}()

	// Wait for worker to finish or timeout
	select {
	case <-done:
		// Verify that the flagged dweet was removed
		if len(mockStore.Dweets) != 0 {
			t.Fatalf("takedown not applied: %+v", mockStore.Dweets)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker did not shutdown gracefully in time")
	}

	if err := worker.Close(); err != nil {
		t.Fatalf("worker Close() error: %v", err)
	}

	if !mockKafka.Closed {
		t.Fatal("expected Kafka reader to be closed")
	}
}

// MockKafkaReader simulates a Kafka reader for testing purposes
type MockKafkaReader struct {
	Messages   []kafka.Message // Queue of messages to return
	ShouldFail bool            // If true, ReadMessage will fail
	Closed     bool            // Tracks whether Close() has been called
}

// ReadMessage returns the next message in the queue or simulates a failure/context cancel
func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if m.ShouldFail {
		return kafka.Message{}, ctx.Err()
	}
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	default:
	}

	if len(m.Messages) == 0 {
		time.Sleep(5 * time.Millisecond) // simulate idle wait
		return kafka.Message{}, nil
	}

	msg := m.Messages[0]
	m.Messages = m.Messages[1:]
	return msg, nil
}

// Close marks the mock Kafka reader as closed
func (m *MockKafkaReader) Close() error {
	m.Closed = true
	return nil
}
