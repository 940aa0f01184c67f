package common

import (
	"github.com/google/uuid"
)

// NewMessageID generates a unique bus message id with the "msg_" prefix.
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}

// NewTaskID generates a unique task id with the "task_" prefix.
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewInvocationID composes the idempotency key used for Job creation from
// the trigger system's job-name and trace identifiers.
func NewInvocationID(jobName, trace string) string {
	return jobName + "-" + trace
}
