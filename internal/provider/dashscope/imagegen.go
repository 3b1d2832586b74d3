// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quibli-dev/quibli/internal/provider"
	quiberr "github.com/quibli-dev/quibli/pkg/errors"
)

// DefaultImageEndpoint is DashScope's native (non-compatible-mode) API base;
// the async image synthesis API is only served there.
const DefaultImageEndpoint = "https://dashscope.aliyuncs.com"

const (
	submitPath = "/api/v1/services/aigc/text2image/image-synthesis"
	taskPath   = "/api/v1/tasks/"
)

// ImageConfig holds DashScope image synthesis client configuration.
type ImageConfig struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
	Size    string
	Count   int
}

// Compile-time interface check.
var _ provider.ImageSynthesizer = (*ImageClient)(nil)

// ImageClient implements provider.ImageSynthesizer against DashScope's
// asynchronous text-to-image API (submit returns a task id; results are
// fetched by polling the task endpoint).
type ImageClient struct {
	apiKey  string
	baseURL string
	model   string
	size    string
	count   int
	client  *http.Client
}

// NewImageClient creates a DashScope image synthesis client.
func NewImageClient(cfg ImageConfig) (*ImageClient, error) {
	if cfg.APIKey == "" {
		return nil, quiberr.New(quiberr.CodeProviderRequestInvalid, "dashscope: missing api_key in config")
	}
	if cfg.Model == "" {
		return nil, quiberr.New(quiberr.CodeProviderRequestInvalid, "dashscope: missing image model in config")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultImageEndpoint
	}
	size := cfg.Size
	if size == "" {
		size = "1024*1024"
	}
	count := cfg.Count
	if count <= 0 {
		count = 1
	}

	return &ImageClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		size:    size,
		count:   count,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type submitRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt string `json:"prompt"`
	} `json:"input"`
	Parameters struct {
		N    int    `json:"n"`
		Size string `json:"size"`
	} `json:"parameters"`
}

type taskOutput struct {
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
	Results    []struct {
		URL string `json:"url"`
	} `json:"results"`
	Message string `json:"message"`
}

type taskResponse struct {
	Output  *taskOutput `json:"output"`
	Message string      `json:"message"`
}

// SubmitImageTask submits an asynchronous generation job and returns the
// provider-issued task id.
func (c *ImageClient) SubmitImageTask(ctx context.Context, prompt string) (string, error) {
	var req submitRequest
	req.Model = c.model
	req.Input.Prompt = prompt
	req.Parameters.N = c.count
	req.Parameters.Size = c.size

	body, err := json.Marshal(req)
	if err != nil {
		return "", quiberr.Wrapf(err, quiberr.CodeProviderRequestInvalid, "dashscope: marshalling submit request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return "", quiberr.Wrapf(err, quiberr.CodeProviderRequestInvalid, "dashscope: building submit request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.do(httpReq)
	if err != nil {
		return "", err
	}

	if resp.Output == nil || resp.Output.TaskID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "unknown error"
		}
		return "", quiberr.Errorf(quiberr.CodeProviderResponseInvalid, "dashscope: failed to submit task: %s", msg)
	}

	return resp.Output.TaskID, nil
}

// ImageTaskStatus fetches one status snapshot for a submitted task. A
// payload without an output object is malformed and surfaces as a
// provider error, not as a retryable status.
func (c *ImageClient) ImageTaskStatus(ctx context.Context, taskID string) (provider.ImageTask, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+taskPath+taskID, nil)
	if err != nil {
		return provider.ImageTask{}, quiberr.Wrapf(err, quiberr.CodeProviderRequestInvalid, "dashscope: building status request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.do(httpReq)
	if err != nil {
		return provider.ImageTask{}, err
	}

	if resp.Output == nil || resp.Output.TaskStatus == "" {
		return provider.ImageTask{}, quiberr.New(quiberr.CodeProviderResponseInvalid,
			"dashscope: task status response missing output",
			quiberr.FieldTaskID(taskID),
		)
	}

	task := provider.ImageTask{
		TaskID:  taskID,
		Status:  provider.TaskStatus(resp.Output.TaskStatus),
		Message: resp.Output.Message,
	}
	for _, r := range resp.Output.Results {
		if r.URL != "" {
			task.Results = append(task.Results, r.URL)
		}
	}
	return task, nil
}

// do executes an HTTP request and decodes the common task-response shape.
func (c *ImageClient) do(req *http.Request) (*taskResponse, error) {
	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, quiberr.Wrapf(err, quiberr.CodeProviderUpstreamFailure, "dashscope: %s %s", req.Method, req.URL.Path)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, quiberr.New(quiberr.CodeProviderUpstreamFailure,
			fmt.Sprintf("dashscope: %s returned status %d: %s", req.URL.Path, httpResp.StatusCode, string(raw)),
			quiberr.FieldProvider("dashscope"),
		)
	}

	var resp taskResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, quiberr.Wrapf(err, quiberr.CodeProviderResponseInvalid, "dashscope: decoding response")
	}
	return &resp, nil
}
