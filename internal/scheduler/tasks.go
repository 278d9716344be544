package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRescoreRecords = "scoring.rescore"

type RescorePayload struct {
	JobID  string `json:"jobId"`
	Module string `json:"module"`
}

func NewRescoreTask(payload RescorePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRescoreRecords, data), nil
}

func ParseRescorePayload(task *asynq.Task) (RescorePayload, error) {
	var payload RescorePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RescorePayload{}, err
	}
	return payload, nil
}
