package id_test

import (
	"strings"
	"testing"

	"github.com/Pratikkale26/Flowrge/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"WorkflowID", id.NewWorkflowID, "wf_"},
		{"ActionID", id.NewActionID, "act_"},
		{"RunID", id.NewRunID, "run_"},
		{"OutboxID", id.NewOutboxID, "obx_"},
		{"NonceID", id.NewNonceID, "nonce_"},
		{"TxID", id.NewTxID, "dtx_"},
		{"DLQID", id.NewDLQID, "dlq_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"WorkflowID", id.NewWorkflowID, id.ParseWorkflowID},
		{"ActionID", id.NewActionID, id.ParseActionID},
		{"RunID", id.NewRunID, id.ParseRunID},
		{"OutboxID", id.NewOutboxID, id.ParseOutboxID},
		{"NonceID", id.NewNonceID, id.ParseNonceID},
		{"TxID", id.NewTxID, id.ParseTxID},
		{"DLQID", id.NewDLQID, id.ParseDLQID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseWorkflowID rejects run_", id.NewRunID().String(), id.ParseWorkflowID},
		{"ParseRunID rejects obx_", id.NewOutboxID().String(), id.ParseRunID},
		{"ParseNonceID rejects dtx_", id.NewTxID().String(), id.ParseNonceID},
		{"ParseTxID rejects nonce_", id.NewNonceID().String(), id.ParseTxID},
		{"ParseDLQID rejects act_", id.NewActionID().String(), id.ParseDLQID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected prefix mismatch error for %q", tt.input)
			}
		})
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID
	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID should render empty, got %q", nilID.String())
	}

	v, err := nilID.Value()
	if err != nil {
		t.Fatalf("nil ID Value: %v", err)
	}
	if v != nil {
		t.Errorf("nil ID should store NULL, got %v", v)
	}
}

func TestScanRoundTrip(t *testing.T) {
	original := id.NewRunID()

	var scanned id.ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("scan round-trip mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("scan nil failed: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("scanning NULL should yield the nil ID")
	}
}
