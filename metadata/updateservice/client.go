// Copyright 2024 The Python Package Index Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License
//
// SPDX-License-Identifier: Apache-2.0
//

// Package updateservice is a client for the external metadata update
// service: instead of signing locally, a producer submits a batch of
// artifacts and the service performs the equivalent add-targets and
// snapshot/timestamp bumps on its side. Jobs are tracked through a polled
// task-state machine; there is no cancellation and no resume, a failed job
// is resubmitted as a new task.
package updateservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pypi/warehouse-sub006/metadata"
)

// TaskState is a job state reported by the update service.
type TaskState string

const (
	StatePending  TaskState = "PENDING"
	StateStarted  TaskState = "STARTED"
	StateReceived TaskState = "RECEIVED"
	StateRunning  TaskState = "RUNNING"
	StateSuccess  TaskState = "SUCCESS"
	StateFailure  TaskState = "FAILURE"
	StateErrored  TaskState = "ERRORED"
	StateRevoked  TaskState = "REVOKED"
	StateRejected TaskState = "REJECTED"
)

const (
	defaultRetries = 20
	defaultDelay   = time.Second
)

// Client talks to the update service over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	retries uint64
	delay   time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// WithRetries sets the poll budget of WaitForSuccess (total polls).
func WithRetries(retries uint64) ClientOption {
	return func(c *Client) {
		c.retries = retries
	}
}

// WithDelay sets the fixed delay between polls.
func WithDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.delay = delay
	}
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		retries: defaultRetries,
		delay:   defaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Artifact describes one target path with its content length and
// blake2b-256 digest, the shape the service expects in an artifact batch.
type Artifact struct {
	Path       string
	Length     int64
	BLAKE2b256 string
}

type artifactInfo struct {
	Length int64             `json:"length"`
	Hashes map[string]string `json:"hashes"`
}

type artifactEntry struct {
	Path string       `json:"path"`
	Info artifactInfo `json:"info"`
}

type artifactsRequest struct {
	Targets []artifactEntry `json:"targets"`
}

type postResponse struct {
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

type taskResponse struct {
	Data struct {
		State string `json:"state"`
	} `json:"data"`
}

// ErrHTTP - the service answered with an unexpected HTTP status.
type ErrHTTP struct {
	StatusCode int
	URL        string
}

func (e ErrHTTP) Error() string {
	return fmt.Sprintf("update service request to %s failed, http status code: %d", e.URL, e.StatusCode)
}

// ErrTaskFailure - the job failed (FAILURE state or poll budget exhausted
// while still in progress). The caller should check the payload and
// resubmit.
type ErrTaskFailure struct {
	TaskID string
}

func (e ErrTaskFailure) Error() string {
	return fmt.Sprintf("update service task %s failed, check the payload and retry", e.TaskID)
}

// ErrServiceHealth - the job ended in an infrastructure failure state
// (ERRORED, REVOKED or REJECTED). The caller should check the service's
// health rather than blindly resubmitting.
type ErrServiceHealth struct {
	TaskID string
	State  TaskState
}

func (e ErrServiceHealth) Error() string {
	return fmt.Sprintf("update service task %s ended in state %s, check the update service health", e.TaskID, e.State)
}

// ErrUnexpectedTaskState - the service reported a state outside the known
// set; the literal string is surfaced for diagnosis.
type ErrUnexpectedTaskState struct {
	TaskID string
	State  string
}

func (e ErrUnexpectedTaskState) Error() string {
	return fmt.Sprintf("update service task %s reported unexpected state %q", e.TaskID, e.State)
}

// PostArtifacts submits a batch of artifacts and returns the identifier of
// the task the service created for it.
func (c *Client) PostArtifacts(artifacts []Artifact) (string, error) {
	request := artifactsRequest{Targets: make([]artifactEntry, 0, len(artifacts))}
	for _, a := range artifacts {
		request.Targets = append(request.Targets, artifactEntry{
			Path: a.Path,
			Info: artifactInfo{
				Length: a.Length,
				Hashes: map[string]string{metadata.HashAlgorithmBLAKE2b256: a.BLAKE2b256},
			},
		})
	}
	body, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	endpoint := c.baseURL + "/api/v1/artifacts"
	res, err := c.httpc.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		return "", ErrHTTP{StatusCode: res.StatusCode, URL: endpoint}
	}
	var decoded postResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Data.TaskID == "" {
		return "", metadata.ErrValue{Msg: "update service response is missing a task id"}
	}
	return decoded.Data.TaskID, nil
}

// GetTaskState queries the current state of a task.
func (c *Client) GetTaskState(taskID string) (TaskState, error) {
	endpoint := c.baseURL + "/api/v1/task?task_id=" + url.QueryEscape(taskID)
	res, err := c.httpc.Get(endpoint)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", ErrHTTP{StatusCode: res.StatusCode, URL: endpoint}
	}
	var decoded taskResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return "", err
	}
	return TaskState(decoded.Data.State), nil
}

// WaitForSuccess polls the task until it reaches a terminal state or the
// poll budget runs out. In-progress states are retried after the fixed
// delay; exhausting the budget while still in progress is itself a task
// failure.
func (c *Client) WaitForSuccess(taskID string) error {
	poll := func() error {
		state, err := c.GetTaskState(taskID)
		if err != nil {
			return backoff.Permanent(err)
		}
		metadata.GetLogger().Info("Polled update service task", "taskID", taskID, "state", string(state))
		switch state {
		case StatePending, StateStarted, StateReceived, StateRunning:
			// still in progress; this error only surfaces if the poll
			// budget runs out
			return ErrTaskFailure{TaskID: taskID}
		case StateSuccess:
			return nil
		case StateFailure:
			return backoff.Permanent(ErrTaskFailure{TaskID: taskID})
		case StateErrored, StateRevoked, StateRejected:
			return backoff.Permanent(ErrServiceHealth{TaskID: taskID, State: state})
		default:
			return backoff.Permanent(ErrUnexpectedTaskState{TaskID: taskID, State: string(state)})
		}
	}
	retries := c.retries
	if retries == 0 {
		retries = 1
	}
	// retries counts total polls, so the first attempt consumes one
	budget := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.delay), retries-1)
	return backoff.Retry(poll, budget)
}
