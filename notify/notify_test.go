package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/resend/resend-go/v2"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/notify"
	memstore "github.com/Pratikkale26/Flowrge/store/memory"
	"github.com/Pratikkale26/Flowrge/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resendClient(baseURL string) *resend.Client {
	c := resend.NewClient("test-key")
	u, _ := url.Parse(baseURL + "/")
	c.BaseURL = u
	return c
}

func seedRun(t *testing.T, store *memstore.Store, ownerID string) *workflow.Run {
	t.Helper()
	wf := &workflow.Workflow{
		Entity:      flowrge.NewEntity(),
		ID:          id.NewWorkflowID(),
		Name:        "payday",
		OwnerID:     ownerID,
		TriggerType: "webhook",
	}
	if err := store.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	run := workflow.NewRun(wf.ID, nil)
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func TestTransferFailureEmailsOwner(t *testing.T) {
	t.Parallel()

	var sent struct {
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		Text    string   `json:"text"`
	}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("decode email request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email_1"})
	}))
	t.Cleanup(srv.Close)

	store := memstore.New()
	run := seedRun(t, store, "owner-1")

	lookup := func(_ context.Context, ownerID string) (string, error) {
		if ownerID != "owner-1" {
			t.Errorf("lookup owner = %q, want owner-1", ownerID)
		}
		return "owner@example.com", nil
	}
	n := notify.New(store, resendClient(srv.URL), lookup, "noreply@flowrge.dev",
		notify.WithLogger(testLogger()))

	err := n.OnTransferFailed(context.Background(), run.ID, id.NewTxID(), errors.New("blockhash not found"))
	if err != nil {
		t.Fatalf("OnTransferFailed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("email calls = %d, want 1", calls)
	}
	if len(sent.To) != 1 || sent.To[0] != "owner@example.com" {
		t.Fatalf("email to = %v, want owner@example.com", sent.To)
	}
	if !strings.Contains(sent.Subject, "payday") {
		t.Fatalf("subject %q does not name the workflow", sent.Subject)
	}
	if !strings.Contains(sent.Text, "blockhash not found") {
		t.Fatalf("body %q does not carry the failure reason", sent.Text)
	}
}

func TestUnknownRunFails(t *testing.T) {
	t.Parallel()
	n := notify.New(memstore.New(), resendClient("http://127.0.0.1:0"), func(context.Context, string) (string, error) {
		return "owner@example.com", nil
	}, "noreply@flowrge.dev", notify.WithLogger(testLogger()))

	err := n.OnTransferFailed(context.Background(), id.NewRunID(), id.NewTxID(), errors.New("x"))
	if !errors.Is(err, flowrge.ErrRunNotFound) {
		t.Fatalf("error = %v, want ErrRunNotFound", err)
	}
}

func TestLookupFailureIsSurfaced(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	run := seedRun(t, store, "owner-1")

	n := notify.New(store, resendClient("http://127.0.0.1:0"), func(context.Context, string) (string, error) {
		return "", errors.New("no address on file")
	}, "noreply@flowrge.dev", notify.WithLogger(testLogger()))

	err := n.OnTransferFailed(context.Background(), run.ID, id.NewTxID(), errors.New("x"))
	if err == nil || !strings.Contains(err.Error(), "no address on file") {
		t.Fatalf("error = %v, want lookup failure", err)
	}
}
