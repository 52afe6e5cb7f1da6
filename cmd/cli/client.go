// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("TOOLGATE_API_URL"); u != "" {
		return u
	}
	return "http://127.0.0.1:4097"
}

func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

// checkResult POST /api/tools/before 的响应
type checkResult struct {
	Allowed      bool   `json:"allowed"`
	CallID       string `json:"call_id"`
	Reason       string `json:"reason"`
	FailedClosed bool   `json:"failed_closed"`
}

func getHealth(c *resty.Client) (map[string]string, error) {
	var out map[string]string
	resp, err := c.R().
		SetResult(&out).
		Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/health: %s", resp.String())
	}
	return out, nil
}

func checkTool(c *resty.Client, sessionID, tool string, args map[string]any) (*checkResult, error) {
	var out checkResult
	resp, err := c.R().
		SetBody(map[string]any{"session_id": sessionID, "tool": tool, "args": args}).
		SetResult(&out).
		SetError(&out).
		Post("/api/tools/before")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusForbidden {
		return nil, fmt.Errorf("POST /api/tools/before: %s", resp.String())
	}
	return &out, nil
}

func reportTool(c *resty.Client, sessionID, callID, tool string, result any) error {
	resp, err := c.R().
		SetBody(map[string]any{"session_id": sessionID, "call_id": callID, "tool": tool, "result": result}).
		Post("/api/tools/after")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return fmt.Errorf("POST /api/tools/after: %s", resp.String())
	}
	return nil
}
