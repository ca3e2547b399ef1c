package handler_test

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
	"sync"
	"testing"

	"github.com/resend/resend-go/v2"
	"golang.org/x/oauth2"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/action"
	"github.com/Pratikkale26/Flowrge/handler"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/workflow"
)

type memTokens struct {
	mu    sync.Mutex
	conns map[string]*handler.Connection
	saved int
}

func newMemTokens() *memTokens {
	return &memTokens{conns: make(map[string]*handler.Connection)}
}

func (m *memTokens) key(ownerID, provider string) string { return ownerID + "/" + provider }

func (m *memTokens) GetConnection(_ context.Context, ownerID, provider string) (*handler.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[m.key(ownerID, provider)]
	if !ok {
		return nil, flowrge.ErrConnectionNotFound
	}
	cp := *conn
	return &cp, nil
}

func (m *memTokens) SaveConnection(_ context.Context, conn *handler.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conn
	m.conns[m.key(conn.OwnerID, conn.Provider)] = &cp
	m.saved++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func invocation(ownerID string, payload action.Payload) *action.Invocation {
	wf := &workflow.Workflow{ID: id.NewWorkflowID(), OwnerID: ownerID}
	return &action.Invocation{
		Run:      &workflow.Run{ID: id.NewRunID(), WorkflowID: wf.ID},
		Workflow: wf,
		Action:   &workflow.Action{ID: id.NewActionID(), WorkflowID: wf.ID, SortOrder: 1},
		Payload:  payload,
	}
}

// tokenServer serves the OAuth token endpoint used by refresh.
func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
}

func oauthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
}

func resendClient(baseURL string) *resend.Client {
	c := resend.NewClient("test-key")
	u, _ := url.Parse(baseURL + "/")
	c.BaseURL = u
	return c
}

func TestEmailFallsBackWithoutConnection(t *testing.T) {
	var fallbackCalls int
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalls++
		json.NewEncoder(w).Encode(map[string]string{"id": "email_1"})
	}))
	defer fallback.Close()

	h := handler.NewEmailHandler(newMemTokens(), oauthConfig("unused"), resendClient(fallback.URL),
		"noreply@flowrge.dev", handler.WithEmailLogger(testLogger()))

	err := h.Execute(context.Background(), invocation("owner-1", &action.Email{
		To: "to@example.com", Subject: "hi", Body: "hello",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fallbackCalls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallbackCalls)
	}
}

func TestEmailUsesProviderWhenConnected(t *testing.T) {
	var providerCalls int
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalls++
		if got := r.Header.Get("Authorization"); got != "Bearer good-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})
	}))
	defer provider.Close()

	tokens := newMemTokens()
	tokens.SaveConnection(context.Background(), &handler.Connection{
		OwnerID:  "owner-1",
		Provider: handler.ProviderGoogle,
		Token:    oauth2.Token{AccessToken: "good-token"},
	})
	tokens.saved = 0

	h := handler.NewEmailHandler(tokens, oauthConfig("unused"), nil, "noreply@flowrge.dev",
		handler.WithEmailEndpoint(provider.URL), handler.WithEmailLogger(testLogger()))

	err := h.Execute(context.Background(), invocation("owner-1", &action.Email{
		To: "to@example.com", Subject: "hi", Body: "hello",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if providerCalls != 1 {
		t.Fatalf("provider calls = %d, want 1", providerCalls)
	}
}

func TestEmailRefreshesOnceOn401(t *testing.T) {
	ts := tokenServer(t, "fresh-token")
	defer ts.Close()

	var providerCalls int
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalls++
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})
	}))
	defer provider.Close()

	tokens := newMemTokens()
	tokens.SaveConnection(context.Background(), &handler.Connection{
		OwnerID:  "owner-1",
		Provider: handler.ProviderGoogle,
		Token:    oauth2.Token{AccessToken: "stale-token", RefreshToken: "refresh-1"},
	})
	tokens.saved = 0

	h := handler.NewEmailHandler(tokens, oauthConfig(ts.URL), nil, "noreply@flowrge.dev",
		handler.WithEmailEndpoint(provider.URL), handler.WithEmailLogger(testLogger()))

	err := h.Execute(context.Background(), invocation("owner-1", &action.Email{
		To: "to@example.com", Subject: "hi", Body: "hello",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if providerCalls != 2 {
		t.Fatalf("provider calls = %d, want stale then fresh", providerCalls)
	}
	if tokens.saved != 1 {
		t.Fatalf("saved connections = %d, refreshed token must be persisted", tokens.saved)
	}
	conn, _ := tokens.GetConnection(context.Background(), "owner-1", handler.ProviderGoogle)
	if conn.Token.AccessToken != "fresh-token" {
		t.Fatalf("stored access token = %q", conn.Token.AccessToken)
	}
}

func TestSocialRejectsOverlongPost(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	tokens := newMemTokens()
	tokens.SaveConnection(context.Background(), &handler.Connection{
		OwnerID:  "owner-1",
		Provider: handler.ProviderX,
		Token:    oauth2.Token{AccessToken: "tok"},
	})
	h := handler.NewSocialHandler(tokens, oauthConfig("unused"),
		handler.WithSocialEndpoint(server.URL), handler.WithSocialLogger(testLogger()))

	err := h.Execute(context.Background(), invocation("owner-1", &action.SocialPost{
		Content: strings.Repeat("x", 281),
	}))
	if err == nil {
		t.Fatal("expected length validation to fail")
	}
	if action.IsRetryable(err) {
		t.Fatal("length violation must be terminal, not retryable")
	}
	if calls != 0 {
		t.Fatalf("endpoint calls = %d, validation must happen before send", calls)
	}
}

func TestSocialRequiresConnection(t *testing.T) {
	h := handler.NewSocialHandler(newMemTokens(), oauthConfig("unused"),
		handler.WithSocialLogger(testLogger()))
	err := h.Execute(context.Background(), invocation("owner-1", &action.SocialPost{Content: "hi"}))
	if !errors.Is(err, flowrge.ErrConnectionNotFound) {
		t.Fatalf("err = %v, want connection not found", err)
	}
	if action.IsRetryable(err) {
		t.Fatal("missing connection must be terminal")
	}
}

func TestSocialRefreshesOnceOn401(t *testing.T) {
	ts := tokenServer(t, "fresh-token")
	defer ts.Close()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	tokens := newMemTokens()
	tokens.SaveConnection(context.Background(), &handler.Connection{
		OwnerID:  "owner-1",
		Provider: handler.ProviderX,
		Token:    oauth2.Token{AccessToken: "stale", RefreshToken: "refresh-1"},
	})

	h := handler.NewSocialHandler(tokens, oauthConfig(ts.URL),
		handler.WithSocialEndpoint(server.URL), handler.WithSocialLogger(testLogger()))

	err := h.Execute(context.Background(), invocation("owner-1", &action.SocialPost{Content: "hello world"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 2 {
		t.Fatalf("endpoint calls = %d, want stale then fresh", calls)
	}
}

func TestSocialRateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tokens := newMemTokens()
	tokens.SaveConnection(context.Background(), &handler.Connection{
		OwnerID:  "owner-1",
		Provider: handler.ProviderX,
		Token:    oauth2.Token{AccessToken: "tok"},
	})
	h := handler.NewSocialHandler(tokens, oauthConfig("unused"),
		handler.WithSocialEndpoint(server.URL), handler.WithSocialLogger(testLogger()))

	err := h.Execute(context.Background(), invocation("owner-1", &action.SocialPost{Content: "hi"}))
	if !action.IsRetryable(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
}

type stubSubmitter struct {
	submitted bool
	err       error
	calls     int
	flowKey   string
}

func (s *stubSubmitter) Submit(_ context.Context, _ id.RunID, _ id.WorkflowID, flowKey string) (bool, error) {
	s.calls++
	s.flowKey = flowKey
	return s.submitted, s.err
}

func TestCryptoSubmitsByActionScope(t *testing.T) {
	sub := &stubSubmitter{submitted: true}
	h := handler.NewCryptoHandler(sub, testLogger())

	inv := invocation("owner-1", &action.SolTransfer{Address: "addr", Lamports: 100})
	if err := h.Execute(context.Background(), inv); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sub.calls != 1 {
		t.Fatalf("submit calls = %d, want 1", sub.calls)
	}
	if sub.flowKey != inv.Action.ID.String() {
		t.Fatalf("flow key = %q, want action id", sub.flowKey)
	}
}

func TestCryptoNothingPendingIsNoOp(t *testing.T) {
	sub := &stubSubmitter{submitted: false}
	h := handler.NewCryptoHandler(sub, testLogger())
	inv := invocation("owner-1", &action.SolTransfer{Address: "addr", Lamports: 100})
	if err := h.Execute(context.Background(), inv); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestCryptoPropagatesSubmitError(t *testing.T) {
	sub := &stubSubmitter{err: errors.New("broadcast failed")}
	h := handler.NewCryptoHandler(sub, testLogger())
	inv := invocation("owner-1", &action.SolTransfer{Address: "addr", Lamports: 100})
	if err := h.Execute(context.Background(), inv); err == nil {
		t.Fatal("expected submit error to propagate")
	}
}

// Handlers receive whatever Parse produces, so the dynamic payload type
// handed over by the executor must satisfy their assertions.
func TestHandlersAcceptParsedMetadata(t *testing.T) {
	var fallbackCalls int
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalls++
		json.NewEncoder(w).Encode(map[string]string{"id": "email_1"})
	}))
	defer fallback.Close()

	email := handler.NewEmailHandler(newMemTokens(), oauthConfig("unused"), resendClient(fallback.URL),
		"noreply@flowrge.dev", handler.WithEmailLogger(testLogger()))
	sub := &stubSubmitter{submitted: true}
	crypto := handler.NewCryptoHandler(sub, testLogger())

	cases := []struct {
		h    action.Handler
		typ  string
		meta string
	}{
		{email, action.TypeEmail, `{"email":"to@example.com","subject":"hi","body":"hello"}`},
		{crypto, action.TypeSol, `{"address":"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin","amount":100}`},
	}
	for _, tc := range cases {
		act := &workflow.Action{ID: id.NewActionID(), Type: tc.typ, Metadata: json.RawMessage(tc.meta)}
		payload, err := action.Parse(act)
		if err != nil {
			t.Fatalf("Parse %s: %v", tc.typ, err)
		}
		inv := invocation("owner-1", payload)
		inv.Action = act
		if err := tc.h.Execute(context.Background(), inv); err != nil {
			t.Fatalf("Execute %s: %v", tc.typ, err)
		}
	}
	if fallbackCalls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallbackCalls)
	}
	if sub.calls != 1 {
		t.Fatalf("submit calls = %d, want 1", sub.calls)
	}
}
