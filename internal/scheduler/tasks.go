package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAcceptanceCleanupDue = "offers.acceptance_cleanup.due"

type AcceptanceCleanupDuePayload struct {
	OutboxID string `json:"outboxId"`
	OfferID  string `json:"offerId"`
}

func NewAcceptanceCleanupDueTask(payload AcceptanceCleanupDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAcceptanceCleanupDue, data), nil
}

func ParseAcceptanceCleanupDuePayload(task *asynq.Task) (AcceptanceCleanupDuePayload, error) {
	var payload AcceptanceCleanupDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AcceptanceCleanupDuePayload{}, err
	}
	return payload, nil
}
