package action_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/action"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/workflow"
)

func mkAction(t *testing.T, typ string, metadata string) *workflow.Action {
	t.Helper()
	return &workflow.Action{
		ID:       id.NewActionID(),
		Type:     typ,
		Metadata: json.RawMessage(metadata),
	}
}

func TestParseEmail(t *testing.T) {
	a := mkAction(t, action.TypeEmail,
		`{"email":"to@example.com","subject":"hi","body":"hello"}`)

	p, err := action.Parse(a)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	email, ok := p.(*action.Email)
	if !ok {
		t.Fatalf("expected Email payload, got %T", p)
	}
	if email.To != "to@example.com" || email.Subject != "hi" || email.Body != "hello" {
		t.Errorf("unexpected payload: %+v", email)
	}
}

func TestParseSol(t *testing.T) {
	a := mkAction(t, action.TypeSol, `{"address":"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin","amount":5000}`)

	p, err := action.Parse(a)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sol, ok := p.(*action.SolTransfer)
	if !ok {
		t.Fatalf("expected SolTransfer payload, got %T", p)
	}
	if sol.Lamports != 5000 {
		t.Errorf("expected 5000 lamports, got %d", sol.Lamports)
	}
}

func TestParseSocialPost(t *testing.T) {
	a := mkAction(t, action.TypeSocialPost, `{"content":"gm","connected":true}`)

	p, err := action.Parse(a)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	post, ok := p.(*action.SocialPost)
	if !ok {
		t.Fatalf("expected SocialPost payload, got %T", p)
	}
	if post.Content != "gm" || !post.Connected {
		t.Errorf("unexpected payload: %+v", post)
	}
}

func TestParseUnknownType(t *testing.T) {
	a := mkAction(t, "teleport", `{}`)

	_, err := action.Parse(a)
	if !errors.Is(err, flowrge.ErrUnknownActionType) {
		t.Fatalf("expected ErrUnknownActionType, got %v", err)
	}
}

func TestParseMalformedMetadata(t *testing.T) {
	a := mkAction(t, action.TypeEmail, `{"email":`)

	if _, err := action.Parse(a); err == nil {
		t.Fatal("expected error for malformed metadata")
	}
}

func TestRetryableClassification(t *testing.T) {
	base := errors.New("socket timeout")

	if !action.IsRetryable(action.Retryable(base)) {
		t.Error("wrapped error should be retryable")
	}
	if action.IsRetryable(base) {
		t.Error("bare error should not be retryable")
	}
	if action.Retryable(nil) != nil {
		t.Error("wrapping nil should return nil")
	}
	if !errors.Is(action.Retryable(base), base) {
		t.Error("Retryable should preserve the error chain")
	}
}

func TestRegistry(t *testing.T) {
	reg := action.NewRegistry()

	if _, ok := reg.Get(action.TypeEmail); ok {
		t.Fatal("empty registry should have no handlers")
	}

	reg.Register(stubHandler{typ: action.TypeEmail})
	h, ok := reg.Get(action.TypeEmail)
	if !ok {
		t.Fatal("expected registered handler")
	}
	if h.Type() != action.TypeEmail {
		t.Errorf("unexpected handler type %q", h.Type())
	}
}

type stubHandler struct{ typ string }

func (s stubHandler) Type() string { return s.typ }

func (s stubHandler) Execute(_ context.Context, _ *action.Invocation) error { return nil }
