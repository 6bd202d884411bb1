package scheduler

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const TaskLeadProcess = "leads:process"

const TaskTick = "leads:tick"

type LeadProcessPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason,omitempty"`
}

type TickPayload struct {
	Trigger string `json:"trigger"`
}

func NewLeadProcessTask(payload LeadProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadProcess, data), nil
}

func ParseLeadProcessPayload(task *asynq.Task) (LeadProcessPayload, error) {
	var payload LeadProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadProcessPayload{}, err
	}
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	return payload, nil
}

func NewTickTask(payload TickPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTick, data), nil
}

func ParseTickPayload(task *asynq.Task) (TickPayload, error) {
	var payload TickPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TickPayload{}, err
	}
	if payload.Trigger == "" {
		payload.Trigger = TriggerTask
	}
	return payload, nil
}
