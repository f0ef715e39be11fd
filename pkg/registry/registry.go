// SPDX-License-Identifier: Apache-2.0

// Package registry holds the read-only table of specialist roles and their
// prompt templates. Adding a specialist is an edit of that table.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/prompt"
)

//go:embed templates.yaml
var defaultTable []byte

// Kind tells specialists apart from the aggregator.
type Kind string

const (
	KindSpecialist Kind = "specialist"
	KindAggregator Kind = "aggregator"
)

// Entry is one row of the table.
type Entry struct {
	Role     core.Role `yaml:"role"`
	Kind     Kind      `yaml:"kind"`
	Required []string  `yaml:"required"`
	Template string    `yaml:"template"`
}

type table struct {
	Roles []Entry `yaml:"roles"`
}

// Registry is immutable once constructed.
type Registry struct {
	entries     []Entry
	specialists []core.Role
	aggregator  core.Role
	builder     *prompt.Builder
}

// Default returns the embedded five-specialist table.
func Default() (*Registry, error) {
	return Parse(defaultTable)
}

// Load reads a table from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "read template table", err).
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse decodes a YAML table and validates it.
func Parse(data []byte) (*Registry, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "decode template table", err)
	}
	return New(t.Roles)
}

// New builds a registry from entries. Entries keep their order; it is the
// order specialists are presented to the aggregator.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{entries: make([]Entry, 0, len(entries))}
	templates := make(map[core.Role]string, len(entries))
	for _, e := range entries {
		e.Role = core.Role(strings.TrimSpace(string(e.Role)))
		if e.Role == "" {
			return nil, configError("role name is required", "")
		}
		if _, dup := templates[e.Role]; dup {
			return nil, configError("duplicate role", e.Role)
		}
		switch e.Kind {
		case KindSpecialist, "":
			e.Kind = KindSpecialist
			if len(e.Required) == 0 {
				e.Required = []string{prompt.ReportKey}
			}
			r.specialists = append(r.specialists, e.Role)
		case KindAggregator:
			if r.aggregator != "" {
				return nil, configError("more than one aggregator", e.Role)
			}
			r.aggregator = e.Role
		default:
			return nil, configError(fmt.Sprintf("unknown kind %q", e.Kind), e.Role)
		}
		e.Required = append([]string(nil), e.Required...)
		templates[e.Role] = e.Template
		r.entries = append(r.entries, e)
	}

	b, err := prompt.NewBuilder(templates)
	if err != nil {
		return nil, err
	}
	r.builder = b

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that every template can be satisfied: specialists from the
// source document alone, the aggregator from specialist outputs alone.
func (r *Registry) Validate() error {
	if len(r.specialists) == 0 {
		return configError("at least one specialist is required", "")
	}
	if r.aggregator == "" {
		return configError("an aggregator role is required", "")
	}

	specialistKeys := map[string]bool{prompt.ReportKey: true}
	aggregatorKeys := map[string]bool{prompt.SpecialistReportsKey: true}
	for _, role := range r.specialists {
		aggregatorKeys[role.ReportKey()] = true
	}

	for _, e := range r.entries {
		allowed := specialistKeys
		if e.Kind == KindAggregator {
			allowed = aggregatorKeys
		}
		used := make(map[string]bool)
		for _, name := range r.builder.Placeholders(e.Role) {
			used[name] = true
			if !allowed[name] {
				return configError(fmt.Sprintf("placeholder %q cannot be satisfied", name), e.Role)
			}
		}
		for _, name := range e.Required {
			if !used[name] {
				return configError(fmt.Sprintf("required placeholder %q is not referenced", name), e.Role)
			}
		}
		if e.Kind == KindAggregator && !used[prompt.SpecialistReportsKey] {
			for _, role := range r.specialists {
				if !used[role.ReportKey()] {
					return configError(fmt.Sprintf("aggregator template drops the %s report", role), e.Role)
				}
			}
		}
	}
	return r.dryRun()
}

// dryRun renders every template with sample values so that failures only
// visible at execution time, such as undefined sub-templates or fields on a
// string, surface at load time.
func (r *Registry) dryRun() error {
	sections := make(map[core.Role]string, len(r.specialists))
	aux := map[string]string{}
	for _, role := range r.specialists {
		sections[role] = "sample findings"
		aux[role.ReportKey()] = sections[role]
	}
	aux[prompt.SpecialistReportsKey] = prompt.Sections(r.specialists, sections)

	for _, e := range r.entries {
		var err error
		if e.Kind == KindAggregator {
			_, err = r.builder.Build(e.Role, "", aux)
		} else {
			_, err = r.builder.Build(e.Role, "sample report", nil)
		}
		if err != nil {
			return errors.New(errors.CodeConfiguration, "prompt template cannot be rendered", err).
				WithContext("role", e.Role.String())
		}
	}
	return nil
}

// Specialists returns specialist roles in table order.
func (r *Registry) Specialists() []core.Role {
	return append([]core.Role(nil), r.specialists...)
}

// Aggregator returns the aggregator role.
func (r *Registry) Aggregator() core.Role { return r.aggregator }

// Builder returns the prompt builder for every role in the table.
func (r *Registry) Builder() *prompt.Builder { return r.builder }

// Entries returns a copy of the table.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		e.Required = append([]string(nil), e.Required...)
		out[i] = e
	}
	return out
}

func configError(msg string, role core.Role) *errors.Error {
	e := errors.New(errors.CodeConfiguration, msg, nil)
	if role != "" {
		e.WithContext("role", role.String())
	}
	return e
}
