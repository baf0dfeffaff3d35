//go:build e2e

// Package e2e_test exercises a running videoforge stack over its public HTTP
// API. Point E2E_BASE_URL at the server (default http://localhost:8080) and
// run with the mock model so no provider credentials are needed.
package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func baseURL() string { return getenv("E2E_BASE_URL", "http://localhost:8080") }

// waitForAppReady polls /readyz until the stack reports healthy or the
// timeout expires.
func waitForAppReady(t *testing.T, client *http.Client, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL() + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("app not ready within %s", timeout)
}

func jsonBody(t *testing.T, body any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encode body: %v", err)
	}
	return bytes.NewReader(b)
}

func postJSON(t *testing.T, client *http.Client, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, baseURL()+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, decodeJSONBody(t, resp)
}

func getJSON(t *testing.T, client *http.Client, path string) (int, map[string]any) {
	t.Helper()
	resp, err := client.Get(baseURL() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, decodeJSONBody(t, resp)
}

func decodeJSONBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func stringField(t *testing.T, m map[string]any, key string) string {
	t.Helper()
	v, ok := m[key].(string)
	if !ok || v == "" {
		t.Fatalf("field %q missing or empty: %#v", key, m)
	}
	return v
}

// waitForRenderStatus polls render progress until it reaches want or a
// terminal status, or the timeout expires. Returns the last progress body.
func waitForRenderStatus(t *testing.T, client *http.Client, renderID, want string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last map[string]any
	for time.Now().Before(deadline) {
		code, body := getJSON(t, client, fmt.Sprintf("/v1/renders/%s/progress", renderID))
		if code == http.StatusOK {
			last = body
			st, _ := body["status"].(string)
			if st == want || st == "failed" {
				return body
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("render %s did not reach %q within %s; last: %#v", renderID, want, timeout, last)
	return nil
}
