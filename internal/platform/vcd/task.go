package vcd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/imamik/edgefip/internal/gateway"
)

// Task is a vCloud Director task. Status re-reads the task on every call.
type Task struct {
	client *Client
	id     string
	href   string
}

func (c *Client) newTask(t taskRecord) *Task {
	id := t.ID
	if id == "" {
		id = t.HREF
	}
	return &Task{client: c, id: id, href: t.HREF}
}

// ID implements gateway.Task.
func (t *Task) ID() string { return t.id }

// Status implements gateway.Task.
func (t *Task) Status(ctx context.Context) (gateway.TaskStatus, string, error) {
	var current taskRecord
	if err := t.client.request(ctx, http.MethodGet, t.href, "", nil, &current); err != nil {
		return "", "", fmt.Errorf("failed to read task %s: %w", t.id, err)
	}
	status := taskStatus(current.Status)
	if status != gateway.TaskError {
		return status, "", nil
	}
	reason := "task " + current.Status
	if current.Error != nil && current.Error.Message != "" {
		reason = current.Error.Message
	}
	return status, reason, nil
}

// taskStatus maps API task states onto the three states the waiter knows.
func taskStatus(s string) gateway.TaskStatus {
	switch s {
	case "success":
		return gateway.TaskSuccess
	case "error", "aborted", "canceled":
		return gateway.TaskError
	default: // queued, preRunning, running
		return gateway.TaskRunning
	}
}
