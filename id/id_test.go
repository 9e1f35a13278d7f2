package id_test

import (
	"strings"
	"testing"

	"github.com/meridianhq/conduct/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"SessionID", id.NewSessionID, "sess_"},
		{"ParticipantID", id.NewParticipantID, "part_"},
		{"PlacementID", id.NewPlacementID, "plc_"},
		{"FlowID", id.NewFlowID, "flow_"},
		{"EventID", id.NewEventID, "evt_"},
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

func TestNew(t *testing.T) {
	i := id.New(id.PrefixSession)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixSession {
		t.Errorf("expected prefix %q, got %q", id.PrefixSession, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"SessionID", id.NewSessionID, id.ParseSessionID},
		{"ParticipantID", id.NewParticipantID, id.ParseParticipantID},
		{"PlacementID", id.NewPlacementID, id.ParsePlacementID},
		{"FlowID", id.NewFlowID, id.ParseFlowID},
		{"EventID", id.NewEventID, id.ParseEventID},
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
		{"ParseSessionID rejects part_", id.NewParticipantID().String(), id.ParseSessionID},
		{"ParseParticipantID rejects plc_", id.NewPlacementID().String(), id.ParseParticipantID},
		{"ParsePlacementID rejects flow_", id.NewFlowID().String(), id.ParsePlacementID},
		{"ParseFlowID rejects evt_", id.NewEventID().String(), id.ParseFlowID},
		{"ParseEventID rejects sess_", id.NewSessionID().String(), id.ParseEventID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestNilID(t *testing.T) {
	var zero id.ID
	if !zero.IsNil() {
		t.Error("zero value should be nil")
	}
	if zero.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", zero.String())
	}

	data, err := zero.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("nil ID MarshalText = %q, want empty", data)
	}
}

func TestScan(t *testing.T) {
	original := id.NewSessionID()

	var scanned id.ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("scanned %q, want %q", scanned.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan(nil) should produce nil ID")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}
