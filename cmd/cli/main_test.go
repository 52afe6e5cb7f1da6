package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"command=ls -la", "n=3", "force=true", "opts={\"a\":1}", "bad", "=x"})
	if got["command"] != "ls -la" {
		t.Errorf("command: %v", got["command"])
	}
	if got["n"] != float64(3) || got["force"] != true {
		t.Errorf("json scalars: %v %v", got["n"], got["force"])
	}
	if m, ok := got["opts"].(map[string]any); !ok || m["a"] != float64(1) {
		t.Errorf("json object: %v", got["opts"])
	}
	if len(got) != 4 {
		t.Errorf("invalid pairs must be skipped: %v", got)
	}
}

func fakeSidecar(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/health":
			_, _ = w.Write([]byte(`{"status":"ok","policy":"serving"}`))
		case "/api/tools/before":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["tool"] == "rm" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"allowed":false,"reason":"tool \"rm\" denied by policy: blocked"}`))
				return
			}
			_, _ = w.Write([]byte(`{"allowed":true,"call_id":"call-1"}`))
		case "/api/tools/after":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"accepted":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	c := newClient(fakeSidecar(t).URL)

	h, err := getHealth(c)
	if err != nil || h["policy"] != "serving" {
		t.Fatalf("health: %v %v", h, err)
	}

	res, err := checkTool(c, "s1", "bash", map[string]any{"command": "ls"})
	if err != nil || !res.Allowed || res.CallID != "call-1" {
		t.Fatalf("check allowed: %+v %v", res, err)
	}
	res, err = checkTool(c, "s1", "rm", nil)
	if err != nil || res.Allowed || res.Reason == "" {
		t.Fatalf("check denied: %+v %v", res, err)
	}

	if err := reportTool(c, "s1", "call-1", "bash", "ok"); err != nil {
		t.Fatalf("report: %v", err)
	}
}

func TestRun_Usage(t *testing.T) {
	if code := run("nope", nil); code != 1 {
		t.Errorf("unknown command: %d", code)
	}
	if code := run("check", []string{"only-session"}); code != 1 {
		t.Errorf("check without tool: %d", code)
	}
	if code := run("config", []string{"/does/not/exist.yaml"}); code != 1 {
		t.Errorf("config missing file: %d", code)
	}
}
