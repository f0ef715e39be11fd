// SPDX-License-Identifier: Apache-2.0

package core

import "strings"

// Role identifies a specialist or the aggregator. Once bound to an agent it
// never changes.
type Role string

const (
	RoleCardiologist       Role = "Cardiologist"
	RolePsychologist       Role = "Psychologist"
	RolePulmonologist      Role = "Pulmonologist"
	RoleNeurologist        Role = "Neurologist"
	RoleGastroenterologist Role = "Gastroenterologist"

	// RoleAggregator synthesizes every specialist report.
	RoleAggregator Role = "MultidisciplinaryTeam"
)

// KnownRoles lists the built-in roles in presentation order.
func KnownRoles() []Role {
	return []Role{
		RoleCardiologist,
		RolePsychologist,
		RolePulmonologist,
		RoleNeurologist,
		RoleGastroenterologist,
		RoleAggregator,
	}
}

// IsKnown reports whether r is one of the built-in roles.
func (r Role) IsKnown() bool {
	for _, k := range KnownRoles() {
		if k == r {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (r Role) String() string { return string(r) }

// ReportKey is the placeholder name under which this role's output is
// exposed to the aggregator template, e.g. "cardiologist_report".
func (r Role) ReportKey() string {
	return strings.ToLower(strings.TrimSpace(string(r))) + "_report"
}
