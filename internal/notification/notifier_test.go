package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGapAlert(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	end := start.Add(31 * time.Minute)

	a := GapAlert("nyse", start, end)
	if a.Level != AlertWarning {
		t.Errorf("level %s, want WARNING", a.Level)
	}
	want := "group nyse: expected 2026-01-05T14:01:00Z, got 2026-01-05T14:31:00Z"
	if a.Message != want {
		t.Errorf("message %q, want %q", a.Message, want)
	}
}

func TestBatchFailureAlert_Severity(t *testing.T) {
	ts := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

	partial := BatchFailureAlert("nyse", ts, 1, 3)
	if partial.Level != AlertWarning {
		t.Errorf("partial failure level %s, want WARNING", partial.Level)
	}
	total := BatchFailureAlert("nyse", ts, 3, 3)
	if total.Level != AlertCritical {
		t.Errorf("total failure level %s, want CRITICAL", total.Level)
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "simengine")
	alert := GapAlert("nyse", time.Now().UTC(), time.Now().UTC().Add(5*time.Minute))
	if err := n.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if received["service"] != "simengine" {
		t.Errorf("service %v, want simengine", received["service"])
	}
	if received["title"] != alert.Title {
		t.Errorf("title %v, want %q", received["title"], alert.Title)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "simengine")
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "x"}); err == nil {
		t.Error("expected error for non-2xx status")
	}
}
