package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRefreshFull = "metrics.refresh.full"

const TaskRefreshOffer = "metrics.refresh.offer"

// RefreshOfferPayload scopes a refresh to one offer, optionally to one
// operator within it.
type RefreshOfferPayload struct {
	Article    string `json:"article"`
	OperatorID string `json:"operatorId,omitempty"`
}

func NewRefreshFullTask() *asynq.Task {
	return asynq.NewTask(TaskRefreshFull, nil)
}

func NewRefreshOfferTask(payload RefreshOfferPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefreshOffer, data), nil
}

func ParseRefreshOfferPayload(task *asynq.Task) (RefreshOfferPayload, error) {
	var payload RefreshOfferPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RefreshOfferPayload{}, err
	}
	return payload, nil
}
