//go:build e2e

package e2e_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

const (
	e2eHTTPTimeout   = 15 * time.Second
	e2eReadyTimeout  = 60 * time.Second
	e2eRenderTimeout = 120 * time.Second
)

// TestE2E_Pipeline_FullRender drives the whole pipeline: project, segments,
// render, progress polling, final asset. Expects the stack to run with the
// mock model so generation completes without provider credentials.
func TestE2E_Pipeline_FullRender(t *testing.T) {
	client := &http.Client{Timeout: e2eHTTPTimeout}
	waitForAppReady(t, client, e2eReadyTimeout)

	code, project := postJSON(t, client, "/v1/projects", map[string]any{
		"name":     "e2e full render",
		"owner_id": "e2e",
	})
	if code != http.StatusCreated {
		t.Fatalf("create project: status %d: %#v", code, project)
	}
	projectID := stringField(t, project, "id")

	for i := 0; i < 2; i++ {
		code, seg := postJSON(t, client, "/v1/projects/"+projectID+"/segments", map[string]any{
			"order_index":  i,
			"prompt":       fmt.Sprintf("e2e scene %d", i),
			"model_params": map[string]any{"model": "mock", "duration": 5},
		})
		if code != http.StatusCreated {
			t.Fatalf("add segment %d: status %d: %#v", i, code, seg)
		}
	}

	code, render := postJSON(t, client, "/v1/projects/"+projectID+"/render", nil)
	if code != http.StatusAccepted {
		t.Fatalf("create render: status %d: %#v", code, render)
	}
	renderID := stringField(t, render, "id")

	final := waitForRenderStatus(t, client, renderID, "completed", e2eRenderTimeout)
	if st, _ := final["status"].(string); st != "completed" {
		t.Fatalf("render ended in %q: %#v", st, final)
	}
	if got := final["progress_percentage"].(float64); got < 100 {
		t.Errorf("completed render reports %.1f%% progress", got)
	}

	code, job := getJSON(t, client, "/v1/renders/"+renderID)
	if code != http.StatusOK {
		t.Fatalf("get render: status %d", code)
	}
	if url, _ := job["final_asset_url"].(string); url == "" {
		t.Fatalf("completed render has no final asset: %#v", job)
	}
}

// TestE2E_Pipeline_SecondRenderReusesLiveSegments verifies the diff: an
// untouched completed segment is carried over, only edited segments
// regenerate.
func TestE2E_Pipeline_SecondRenderReusesLiveSegments(t *testing.T) {
	client := &http.Client{Timeout: e2eHTTPTimeout}
	waitForAppReady(t, client, e2eReadyTimeout)

	_, project := postJSON(t, client, "/v1/projects", map[string]any{
		"name":     "e2e diff render",
		"owner_id": "e2e",
	})
	projectID := stringField(t, project, "id")

	var segmentIDs []string
	for i := 0; i < 2; i++ {
		_, seg := postJSON(t, client, "/v1/projects/"+projectID+"/segments", map[string]any{
			"order_index":  i,
			"prompt":       fmt.Sprintf("diff scene %d", i),
			"model_params": map[string]any{"model": "mock", "duration": 5},
		})
		segmentIDs = append(segmentIDs, stringField(t, seg, "id"))
	}

	_, first := postJSON(t, client, "/v1/projects/"+projectID+"/render", nil)
	firstID := stringField(t, first, "id")
	waitForRenderStatus(t, client, firstID, "completed", e2eRenderTimeout)

	// Edit one segment; the other stays live.
	req, err := http.NewRequest(http.MethodPatch, baseURL()+"/v1/segments/"+segmentIDs[0],
		jsonBody(t, map[string]any{"prompt": "diff scene 0 revised"}))
	if err != nil {
		t.Fatalf("build patch: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("patch segment: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch segment: status %d", resp.StatusCode)
	}

	_, second := postJSON(t, client, "/v1/projects/"+projectID+"/render", nil)
	secondID := stringField(t, second, "id")
	if total := second["segments_total"].(float64); total != 1 {
		t.Fatalf("second render should regenerate 1 segment, got %.0f", total)
	}
	waitForRenderStatus(t, client, secondID, "completed", e2eRenderTimeout)
}

// TestE2E_Validation_EmptyProjectRenderRejected covers the unprocessable
// path without touching the workers.
func TestE2E_Validation_EmptyProjectRenderRejected(t *testing.T) {
	client := &http.Client{Timeout: e2eHTTPTimeout}
	waitForAppReady(t, client, e2eReadyTimeout)

	_, project := postJSON(t, client, "/v1/projects", map[string]any{
		"name":     "e2e empty project",
		"owner_id": "e2e",
	})
	projectID := stringField(t, project, "id")

	code, body := postJSON(t, client, "/v1/projects/"+projectID+"/render", nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("empty render: status %d: %#v", code, body)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "EMPTY_PROJECT" {
		t.Fatalf("unexpected error body: %#v", body)
	}
}
