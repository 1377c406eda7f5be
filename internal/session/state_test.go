package session

import "testing"

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusUninitialized, "uninitialized"},
		{StatusOpening, "opening"},
		{StatusActive, "active"},
		{StatusEnded, "ended"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if StatusActive.IsTerminal() {
		t.Error("active should not be terminal")
	}
	if !StatusEnded.IsTerminal() {
		t.Error("ended should be terminal")
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusUninitialized, StatusOpening, true},
		{StatusUninitialized, StatusEnded, true},
		{StatusUninitialized, StatusActive, false},
		{StatusOpening, StatusActive, true},
		{StatusOpening, StatusUninitialized, true},
		{StatusOpening, StatusEnded, true},
		{StatusActive, StatusEnded, true},
		{StatusActive, StatusOpening, false},
		{StatusActive, StatusActive, false},
		{StatusEnded, StatusActive, false},
		{StatusEnded, StatusOpening, false},
		{StatusEnded, StatusEnded, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
