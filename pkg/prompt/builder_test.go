// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"reflect"
	"strings"
	"testing"

	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
)

const reportText = "Patient Name: Michael Johnson\nAge: 29\nChief complaint: episodes of chest tightness."

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(map[core.Role]string{
		core.RoleCardiologist: "Act like a cardiologist.\n\nMedical Report:\n{{.medical_report}}\n",
		core.RoleAggregator:   "Act like a multidisciplinary team.\n\n{{.specialist_reports}}\n",
	})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	return b
}

func TestBuildEmbedsSourceVerbatim(t *testing.T) {
	b := testBuilder(t)
	out, err := b.Build(core.RoleCardiologist, reportText, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(out, reportText) {
		t.Errorf("expected prompt to contain report verbatim, got %q", out)
	}
	if strings.Contains(out, "{{") || strings.Contains(out, "}}") {
		t.Errorf("unresolved placeholder left in %q", out)
	}
}

func TestBuildDoesNotEscapeSource(t *testing.T) {
	b := testBuilder(t)
	src := `BP <120/80> & "stable" {{.not_a_field}}`
	out, err := b.Build(core.RoleCardiologist, src, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(out, src) {
		t.Errorf("expected source to be embedded untouched, got %q", out)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	b := testBuilder(t)
	first, err := b.Build(core.RoleCardiologist, reportText, map[string]string{"extra": "x"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build(core.RoleCardiologist, reportText, map[string]string{"extra": "x"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if first != second {
		t.Errorf("expected byte-identical prompts")
	}
}

func TestBuildMissingPlaceholder(t *testing.T) {
	b := testBuilder(t)
	_, err := b.Build(core.RoleAggregator, "", nil)
	if !errors.IsCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION error, got %v", err)
	}
}

func TestBuildUnknownRole(t *testing.T) {
	b := testBuilder(t)
	if _, err := b.Build(core.RoleNeurologist, reportText, nil); !errors.IsCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION error, got %v", err)
	}
}

func TestNewBuilderRejectsBadTemplates(t *testing.T) {
	tests := map[string]string{
		"empty":  "   ",
		"syntax": "{{.medical_report",
		"dot":    "{{.medical_report}}\n{{.}}",
		"if dot": "{{if .medical_report}}{{.}}{{end}}",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewBuilder(map[core.Role]string{core.RoleCardiologist: text})
			if !errors.IsCode(err, errors.CodeConfiguration) {
				t.Fatalf("expected CONFIGURATION error, got %v", err)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	b, err := NewBuilder(map[core.Role]string{
		core.RoleAggregator: `{{.cardiologist_report}}
{{if .psychologist_report}}{{.psychologist_report}}{{else}}{{.fallback}}{{end}}
{{with .neurologist_report}}{{.}}{{end}}
{{printf "%s" .medical_report}}`,
	})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	got := b.Placeholders(core.RoleAggregator)
	want := []string{"cardiologist_report", "fallback", "medical_report", "neurologist_report", "psychologist_report"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSections(t *testing.T) {
	out := Sections(
		[]core.Role{core.RoleCardiologist, core.RolePsychologist},
		map[core.Role]string{core.RoleCardiologist: " A ", core.RolePsychologist: "B"},
	)
	want := "Cardiologist Report:\nA\n\nPsychologist Report:\nB"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"abcdef", 3, "abc"},
		{"abc", 3, "abc"},
		{"abc", 0, "abc"},
		{"ñandú años", 5, "ñandú"},
		{"", 10, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
