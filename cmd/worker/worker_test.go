package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appkafka "example.com/dwitter/internal/broker"
	"example.com/dwitter/internal/models"
	"example.com/dwitter/internal/store"
	"github.com/segmentio/kafka-go"
)

// runWorkerOnce processes a single Kafka message for testing.
func runWorkerOnce(ctx context.Context, st store.StoreInterface, kafkaReader appkafka.KafkaReader) error {
	w := New(st, kafkaReader, 1, 1)

	msg, err := kafkaReader.ReadMessage(ctx)
	if err != nil {
		return err
	}
	if len(msg.Value) == 0 {
		return nil
	}

	var cmd models.Takedown
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return err
	}

	return w.apply(cmd)
}

func seedDweet(t *testing.T, st *store.MockStore) models.Dweet {
	t.Helper()
	acc, _ := st.CreateAccount("author", "hash")
	st.CreateProfile(acc.ID, acc.Username)
	d, err := st.CreateDweet(acc.ID, acc.Username, "flagged content")
	if err != nil {
		t.Fatalf("create dweet failed: %v", err)
	}
	return d
}

func takedownMessage(t *testing.T, cmd models.Takedown) kafka.Message {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return kafka.Message{Value: data}
}

// ---------- Positive tests ----------

func TestWorker_DeleteDweet(t *testing.T) {
	mockStore := store.NewMock()
	dweet := seedDweet(t, mockStore)

	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{
			takedownMessage(t, models.Takedown{Action: models.TakedownDeleteDweet, DweetID: dweet.ID}),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, mockStore, mockKafka); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	if len(mockStore.Dweets) != 0 {
		t.Fatalf("dweet not deleted: %+v", mockStore.Dweets)
	}
}

func TestWorker_DeleteAll(t *testing.T) {
	mockStore := store.NewMock()
	seedDweet(t, mockStore)

	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{
			takedownMessage(t, models.Takedown{Action: models.TakedownDeleteAll}),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, mockStore, mockKafka); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	if len(mockStore.Dweets) != 0 {
		t.Fatalf("dweets not purged: %+v", mockStore.Dweets)
	}
}

// Unknown actions and missing ids are skipped, not errors
func TestWorker_UnknownActionIsSkipped(t *testing.T) {
	mockStore := store.NewMock()
	seedDweet(t, mockStore)

	for _, cmd := range []models.Takedown{
		{Action: "promote_dweet"},
		{Action: models.TakedownDeleteDweet}, // no dweet_id
	} {
		mockKafka := &appkafka.MockKafka{
			ReadMessages: []kafka.Message{takedownMessage(t, cmd)},
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := runWorkerOnce(ctx, mockStore, mockKafka); err != nil {
			t.Fatalf("unexpected error for %+v: %v", cmd, err)
		}
		cancel()
	}

	if len(mockStore.Dweets) != 1 {
		t.Fatalf("skipped command mutated the store: %+v", mockStore.Dweets)
	}
}

// ---------- Negative tests ----------

// Simulate Kafka read error
func TestWorker_KafkaReadError(t *testing.T) {
	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafkaFail{}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, mockStore, mockKafka); err == nil {
		t.Fatalf("expected error from Kafka read")
	}
}

// Simulate invalid takedown JSON
func TestWorker_InvalidTakedownJSON(t *testing.T) {
	mockStore := store.NewMock()

	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{
			{Value: []byte("{invalid-json}")},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, mockStore, mockKafka); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

// Simulate store failure during deletion
func TestWorker_StoreDeleteFail(t *testing.T) {
	mockStore := &store.MockStoreFail{}

	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{
			takedownMessage(t, models.Takedown{Action: models.TakedownDeleteAll}),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, mockStore, mockKafka); err == nil {
		t.Fatalf("expected error from store delete")
	}
}

func TestWorker_EmptyKafkaMessage(t *testing.T) {
	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{{Value: nil}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, mockStore, mockKafka); err != nil {
		t.Fatalf("expected no error for empty Kafka message, got: %v", err)
	}
}
