// SPDX-License-Identifier: Apache-2.0

package core

import "testing"

func TestReportKey(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleCardiologist, "cardiologist_report"},
		{RoleGastroenterologist, "gastroenterologist_report"},
		{Role(" Dermatologist "), "dermatologist_report"},
	}
	for _, tt := range tests {
		if got := tt.role.ReportKey(); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.role, tt.want, got)
		}
	}
}

func TestKnownRoles(t *testing.T) {
	roles := KnownRoles()
	if len(roles) != 6 {
		t.Fatalf("expected 6 known roles, got %d", len(roles))
	}
	if roles[len(roles)-1] != RoleAggregator {
		t.Fatalf("expected aggregator last, got %s", roles[len(roles)-1])
	}
	if !RoleNeurologist.IsKnown() {
		t.Errorf("expected Neurologist to be known")
	}
	if Role("Dermatologist").IsKnown() {
		t.Errorf("expected Dermatologist to be unknown")
	}
}

func TestStatesTerminal(t *testing.T) {
	if AgentRetrying.Terminal() || AgentRunning.Terminal() {
		t.Errorf("retrying/running are not terminal")
	}
	if !AgentSucceeded.Terminal() || !AgentFailed.Terminal() {
		t.Errorf("succeeded/failed are terminal")
	}
	if RunAggregating.Terminal() {
		t.Errorf("aggregating is not terminal")
	}
	for _, s := range []RunState{RunCompleted, RunAggregationFailed, RunCanceled, RunRejected} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
