package models

import "testing"

func TestParseStackState(t *testing.T) {
	tests := []struct {
		raw      string
		expected StackState
	}{
		{"Running", StateRunning},
		{"running", StateRunning},
		{"Not Running", StateNotRunning},
		{"not-running", StateNotRunning},
		{"NOT_RUNNING", StateNotRunning},
		{" Starting ", StateStarting},
		{"Redeploying", StateRedeploying},
		{"Terminating", StateTerminating},
		{"Terminated", StateTerminated},
		{"Partly running", StateUnknown},
		{"Stopped", StateUnknown},
		{"", StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseStackState(tt.raw); got != tt.expected {
				t.Errorf("ParseStackState(%q) = %v, want %v", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestStackStateActive(t *testing.T) {
	for _, s := range []StackState{StateTerminating, StateTerminated} {
		if s.Active() {
			t.Errorf("%v.Active() = true, want false", s)
		}
	}
	for _, s := range []StackState{StateUnknown, StateNotRunning, StateStarting, StateRunning, StateRedeploying} {
		if !s.Active() {
			t.Errorf("%v.Active() = false, want true", s)
		}
	}
}
