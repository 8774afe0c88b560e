// Package queue carries message-processing jobs over asynq. Inbound
// messages, agent notifications and scheduled sweeps each run on their own
// queue so a backlog in one never starves the others.
package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Queue names.
const (
	QueueMessages      = "messages"
	QueueNotifications = "notifications"
	QueueScheduled     = "scheduled"
)

const TaskProcessMessage = "messages.process"

const TaskDispatchNotification = "notifications.dispatch"

const TaskHandoffTimeout = "scheduled.handoff_timeout"

// ProcessMessagePayload is one inbound lead message handed to the pipeline.
type ProcessMessagePayload struct {
	TenantID       string `json:"tenantId"`
	LeadID         string `json:"leadId"`
	ConversationID string `json:"conversationId"`
	ProviderMsgID  string `json:"providerMessageId"`
	Text           string `json:"text"`
	CorrelationID  string `json:"correlationId"`
}

// NotificationPayload asks the dispatcher to alert a human agent about a
// handed-off conversation.
type NotificationPayload struct {
	TenantID       string `json:"tenantId"`
	ConversationID string `json:"conversationId"`
	LeadID         string `json:"leadId"`
	LeadName       string `json:"leadName"`
	LeadScore      int    `json:"leadScore"`
	LeadChannel    string `json:"leadChannel"`
	Reason         string `json:"reason"`
}

// HandoffTimeoutPayload closes out a conversation no human picked up.
type HandoffTimeoutPayload struct {
	TenantID       string `json:"tenantId"`
	ConversationID string `json:"conversationId"`
}

func NewProcessMessageTask(payload ProcessMessagePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessMessage, data), nil
}

func ParseProcessMessagePayload(task *asynq.Task) (ProcessMessagePayload, error) {
	var payload ProcessMessagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessMessagePayload{}, err
	}
	return payload, nil
}

func NewDispatchNotificationTask(payload NotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatchNotification, data), nil
}

func ParseNotificationPayload(task *asynq.Task) (NotificationPayload, error) {
	var payload NotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationPayload{}, err
	}
	return payload, nil
}

func NewHandoffTimeoutTask(payload HandoffTimeoutPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHandoffTimeout, data), nil
}

func ParseHandoffTimeoutPayload(task *asynq.Task) (HandoffTimeoutPayload, error) {
	var payload HandoffTimeoutPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return HandoffTimeoutPayload{}, err
	}
	return payload, nil
}
