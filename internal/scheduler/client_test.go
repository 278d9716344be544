package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"salesdesk_backend/internal/records/domain"
)

type testSchedulerConfig struct {
	redisURL string
}

func (c testSchedulerConfig) GetRedisURL() string       { return c.redisURL }
func (c testSchedulerConfig) GetAsynqQueueName() string { return "test" }
func (c testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestClientEnqueuesRescoreTask(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(testSchedulerConfig{redisURL: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	jobID := uuid.New()
	if err := client.EnqueueRescore(context.Background(), jobID, domain.ModuleLeads); err != nil {
		t.Fatalf("EnqueueRescore: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: srv.Addr()})
	defer inspector.Close()

	tasks, err := inspector.ListPendingTasks("test")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(tasks))
	}
	if tasks[0].Type != TaskRescoreRecords {
		t.Fatalf("expected task type %s, got %s", TaskRescoreRecords, tasks[0].Type)
	}

	payload, err := ParseRescorePayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	if err != nil {
		t.Fatalf("ParseRescorePayload: %v", err)
	}
	if payload.JobID != jobID.String() {
		t.Fatalf("expected job id %s, got %s", jobID, payload.JobID)
	}
	if payload.Module != string(domain.ModuleLeads) {
		t.Fatalf("expected module leads, got %s", payload.Module)
	}
}

func TestClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatalf("expected error without redis url")
	}
}
