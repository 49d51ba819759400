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

package updateservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// taskServer serves a scripted sequence of task states; once the script is
// exhausted it keeps answering with the last state.
type taskServer struct {
	states []TaskState
	polls  int
}

func (s *taskServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := s.polls
		if i >= len(s.states) {
			i = len(s.states) - 1
		}
		s.polls++
		fmt.Fprintf(w, `{"data": {"state": %q}}`, s.states[i])
	}
}

func newTaskClient(t *testing.T, states []TaskState, opts ...ClientOption) (*Client, *taskServer) {
	t.Helper()
	ts := &taskServer{states: states}
	server := httptest.NewServer(ts.handler())
	t.Cleanup(server.Close)
	opts = append([]ClientOption{WithDelay(0)}, opts...)
	return NewClient(server.URL, opts...), ts
}

func TestPostArtifacts(t *testing.T) {
	var got artifactsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/artifacts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"data": {"task_id": "task-123"}}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)
	taskID, err := client.PostArtifacts([]Artifact{{
		Path:       "py/sampleproject-1.0.tar.gz",
		Length:     42,
		BLAKE2b256: "deadbeef",
	}})
	require.NoError(t, err)
	assert.Equal(t, "task-123", taskID)

	require.Len(t, got.Targets, 1)
	assert.Equal(t, "py/sampleproject-1.0.tar.gz", got.Targets[0].Path)
	assert.Equal(t, int64(42), got.Targets[0].Info.Length)
	assert.Equal(t, map[string]string{"blake2b-256": "deadbeef"}, got.Targets[0].Info.Hashes)
}

func TestPostArtifactsMissingTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {}}`)
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(server.URL).PostArtifacts(nil)
	assert.ErrorContains(t, err, "missing a task id")
}

func TestPostArtifactsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(server.URL).PostArtifacts(nil)
	var httpErr ErrHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestWaitForSuccess(t *testing.T) {
	client, server := newTaskClient(t, []TaskState{StatePending, StateStarted, StateSuccess})
	require.NoError(t, client.WaitForSuccess("task-123"))
	// one poll per scripted state, stopping at the terminal one
	assert.Equal(t, 3, server.polls)
}

func TestWaitForSuccessBudgetExhausted(t *testing.T) {
	client, server := newTaskClient(t, []TaskState{StatePending}, WithRetries(5))
	err := client.WaitForSuccess("task-123")
	assert.ErrorIs(t, err, ErrTaskFailure{TaskID: "task-123"})
	// the budget counts total polls, not retries after the first
	assert.Equal(t, 5, server.polls)
}

func TestWaitForSuccessFailureIsTerminal(t *testing.T) {
	client, server := newTaskClient(t, []TaskState{StateFailure})
	err := client.WaitForSuccess("task-123")
	assert.ErrorIs(t, err, ErrTaskFailure{TaskID: "task-123"})
	assert.Equal(t, 1, server.polls)
}

func TestWaitForSuccessServiceHealth(t *testing.T) {
	for _, state := range []TaskState{StateErrored, StateRevoked, StateRejected} {
		client, server := newTaskClient(t, []TaskState{state})
		err := client.WaitForSuccess("task-123")
		assert.ErrorIs(t, err, ErrServiceHealth{TaskID: "task-123", State: state})
		assert.Equal(t, 1, server.polls)
	}
}

func TestWaitForSuccessUnexpectedState(t *testing.T) {
	client, _ := newTaskClient(t, []TaskState{"BOGUS"})
	err := client.WaitForSuccess("task-123")
	var unexpected ErrUnexpectedTaskState
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, "BOGUS", unexpected.State)
	assert.Contains(t, err.Error(), `"BOGUS"`)
}

func TestWaitForSuccessHTTPErrorStopsPolling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, WithDelay(0))
	err := client.WaitForSuccess("task-123")
	var httpErr ErrHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}
