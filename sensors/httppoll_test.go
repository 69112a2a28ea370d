package sensors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/watertreat/rtu/types"
)

func TestFetchFloatParsesTrimmedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  12.5\n"))
	}))
	defer srv.Close()

	v, status, err := fetchFloat(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("fetchFloat: %v", err)
	}
	if status != types.StatusOK || v != 12.5 {
		t.Fatalf("got %v/%v, want 12.5/ok", v, status)
	}
}

func TestFetchFloatNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, status, err := fetchFloat(context.Background(), srv.Client(), srv.URL)
	if err == nil {
		t.Fatal("expected an error on 500")
	}
	if status != types.StatusError {
		t.Fatalf("status = %v, want error", status)
	}
}

func TestHTTPPollerPublishesToTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("42"))
	}))
	defer srv.Close()

	table := NewTable()
	cfg := types.SensorConfig{
		ID:       7,
		Name:     "web",
		PollMS:   10,
		Hardware: types.HardwareBinding{Address: srv.URL},
	}
	poller := NewHTTPPoller(table, nil)
	bound := NewBound(cfg, nil, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	poller.Register(ctx, bound)
	go poller.Run(ctx)

	deadline := time.After(time.Second)
	for {
		if r, ok := table.Get(7); ok && r.Status == types.StatusOK {
			if r.Value != 42 {
				t.Fatalf("got %v, want 42", r.Value)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a published reading")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
