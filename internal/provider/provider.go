// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package provider

import (
	"context"
)

// Embedder converts free text into a fixed-dimension vector. One outbound
// call per invocation, no local state, no retry — callers decide retry
// policy. A successful call always yields exactly Dimensions() floats;
// anything else is a provider error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ImageSynthesizer drives an asynchronous text-to-image job: one call to
// submit, then repeated status checks by task id. The submit/poll policy
// (interval, budget) belongs to the caller.
type ImageSynthesizer interface {
	SubmitImageTask(ctx context.Context, prompt string) (string, error)
	ImageTaskStatus(ctx context.Context, taskID string) (ImageTask, error)
}

// TaskStatus is the state of a generative task as reported by the
// provider.
type TaskStatus string

const (
	TaskStatusSubmitted TaskStatus = "SUBMITTED"
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusUnknown   TaskStatus = "UNKNOWN"
)

// Terminal reports whether no further transition can occur. Statuses the
// provider invents later are treated as still-processing, matching the
// poll loop's "anything else means wait" rule.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusUnknown:
		return true
	default:
		return false
	}
}

// ImageTask is one status snapshot of an asynchronous image job.
type ImageTask struct {
	TaskID  string
	Status  TaskStatus
	Results []string // result URLs, present only when Succeeded
	Message string   // provider failure detail, when any
}

// ChatMessage is one turn of a chat relay conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStreamer relays a conversation to a chat model and forwards each
// generated token to onToken as it arrives.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []ChatMessage, onToken func(token string)) error
}
