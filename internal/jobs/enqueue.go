package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Enqueuer submits upload tasks to the asynq queue. Task-level retry is
// disabled: the upload engine carries its own chunk retry budget and writes a
// terminal status itself, so a redelivered task would only restart a job the
// user already saw fail.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) Enqueue(ctx context.Context, p UploadVideoPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TaskUploadVideo, b), asynq.MaxRetry(0))
	return err
}
