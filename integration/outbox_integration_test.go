//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/iyhunko/products-crud/internal/model"
	"github.com/iyhunko/products-crud/internal/repository"
	reposql "github.com/iyhunko/products-crud/internal/repository/sql"
	"github.com/iyhunko/products-crud/internal/service"
	sqspkg "github.com/iyhunko/products-crud/internal/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryQueue stands in for an SQS queue: messages sent are handed out once
// by ReceiveMessage and dropped by DeleteMessage.
type memoryQueue struct {
	mu       sync.Mutex
	pending  []string
	inflight map[string]string
	deleted  []string
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{inflight: map[string]string{}}
}

func (q *memoryQueue) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, *params.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func (q *memoryQueue) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := &sqs.ReceiveMessageOutput{}
	for _, body := range q.pending {
		handle := time.Now().Format(time.RFC3339Nano) + body
		q.inflight[handle] = body
		out.Messages = append(out.Messages, types.Message{Body: aws.String(body), ReceiptHandle: aws.String(handle)})
	}
	q.pending = nil
	return out, nil
}

func (q *memoryQueue) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, q.inflight[*params.ReceiptHandle])
	delete(q.inflight, *params.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (q *memoryQueue) deletedBodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

func TestOutboxFlow_Integration(t *testing.T) {
	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	testDB.TruncateTables(t)

	ctx := context.Background()
	router := NewRouter(testDB)
	queue := newMemoryQueue()
	eventRepo := reposql.NewEventRepository(testDB.DB)
	worker := service.NewOutboxWorker(eventRepo, sqspkg.NewPublisher(queue, "memory"), time.Second)

	require.Equal(t, http.StatusCreated, Do(router, http.MethodPost, "/products/", `{"title":"Book","price":32.5}`).Code)
	require.Equal(t, http.StatusOK, Do(router, http.MethodPatch, "/products/1/", `{"sale_price":"30"}`).Code)
	require.Equal(t, http.StatusNoContent, Do(router, http.MethodDelete, "/products/1/", "").Code)

	// when
	worker.ProcessEvents(ctx)

	// then every event was published and marked processed
	pending, err := eventRepo.List(ctx, *repository.NewQuery())
	require.NoError(t, err)
	assert.Empty(t, pending)

	processed, err := eventRepo.List(ctx, *repository.NewQuery().With(repository.StatusField, string(model.EventStatusProcessed)))
	require.NoError(t, err)
	assert.Len(t, processed, 3)

	// and the consumer drains the queue in order
	consumerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	consumer := sqspkg.NewConsumer(queue, "memory")
	go func() { _ = consumer.Start(consumerCtx) }()

	require.Eventually(t, func() bool { return len(queue.deletedBodies()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	var actions []string
	for _, body := range queue.deletedBodies() {
		var msg sqspkg.ProductMessage
		require.NoError(t, json.Unmarshal([]byte(body), &msg))
		assert.Equal(t, int64(1), msg.ProductID)
		actions = append(actions, msg.Action)
	}
	assert.Equal(t, []string{sqspkg.ActionCreated, sqspkg.ActionUpdated, sqspkg.ActionDeleted}, actions)
}
