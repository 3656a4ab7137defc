package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AsynqClient enqueues tasks into Redis for an AsynqServer to run.
type AsynqClient struct {
	client *asynq.Client
	queue  string
}

// NewAsynqClient connects to redisAddr. Tasks are not retried: outbound sends are not idempotent.
func NewAsynqClient(redisAddr, queue string) *AsynqClient {
	if queue == "" {
		queue = "default"
	}
	return &AsynqClient{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		queue:  queue,
	}
}

var _ Dispatcher = (*AsynqClient)(nil)

func (a *AsynqClient) Enqueue(ctx context.Context, t Task) error {
	if t.Type == "" {
		return ErrInvalidTask
	}
	_, err := a.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload),
		asynq.Queue(a.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
		asynq.Retention(time.Hour),
	)
	return err
}

func (a *AsynqClient) Close() error {
	return a.client.Close()
}

// AsynqServer consumes tasks from Redis and routes them by type.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewAsynqServer(redisAddr, queue string, concurrency int, log *slog.Logger) *AsynqServer {
	if log == nil {
		log = slog.Default()
	}
	if queue == "" {
		queue = "default"
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "task_type", task.Type(), "err", err)
		}),
	})
	return &AsynqServer{server: srv, mux: asynq.NewServeMux()}
}

var _ Registry = (*AsynqServer)(nil)

func (s *AsynqServer) Register(taskType string, h Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, Task{Type: t.Type(), Payload: t.Payload()})
	})
}

// Run starts the server and blocks until ctx is canceled, then shuts down gracefully.
func (s *AsynqServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}
