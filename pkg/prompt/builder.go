// SPDX-License-Identifier: Apache-2.0

// Package prompt turns role templates into finished prompt strings.
//
// Templates use text/template syntax with named placeholders such as
// {{.medical_report}}. Every placeholder is discovered when the Builder is
// constructed so that a registry can reject unsatisfiable templates at
// startup; Build itself is pure and deterministic.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
)

const (
	// ReportKey carries the (truncated) source document.
	ReportKey = "medical_report"

	// SpecialistReportsKey carries every specialist output as role-labeled
	// sections. Only meaningful for the aggregator.
	SpecialistReportsKey = "specialist_reports"
)

// Builder renders prompts for a fixed set of roles.
type Builder struct {
	templates    map[core.Role]*template.Template
	placeholders map[core.Role][]string
}

// NewBuilder parses every template. Parse failures are configuration errors.
func NewBuilder(templates map[core.Role]string) (*Builder, error) {
	b := &Builder{
		templates:    make(map[core.Role]*template.Template, len(templates)),
		placeholders: make(map[core.Role][]string, len(templates)),
	}
	for role, text := range templates {
		if strings.TrimSpace(text) == "" {
			return nil, errors.New(errors.CodeConfiguration, "empty prompt template", nil).
				WithContext("role", role.String())
		}
		tmpl, err := template.New(role.String()).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, errors.New(errors.CodeConfiguration, "invalid prompt template", err).
				WithContext("role", role.String())
		}
		names, dot := placeholders(tmpl.Tree)
		if dot {
			return nil, errors.New(errors.CodeConfiguration, "prompt template renders the whole data map with {{.}}", nil).
				WithContext("role", role.String())
		}
		b.templates[role] = tmpl
		b.placeholders[role] = names
	}
	return b, nil
}

// Roles returns the roles this builder can render, sorted by name.
func (b *Builder) Roles() []core.Role {
	roles := make([]core.Role, 0, len(b.templates))
	for role := range b.templates {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Placeholders returns the sorted placeholder names referenced by the role's template.
func (b *Builder) Placeholders(role core.Role) []string {
	return append([]string(nil), b.placeholders[role]...)
}

// Build renders the prompt for role. source is embedded under ReportKey;
// aux supplies every other placeholder. A placeholder with no value is an
// error, although registry validation should have made that impossible.
func (b *Builder) Build(role core.Role, source string, aux map[string]string) (string, error) {
	tmpl, ok := b.templates[role]
	if !ok {
		return "", errors.New(errors.CodeConfiguration, "no prompt template for role", nil).
			WithContext("role", role.String())
	}

	data := make(map[string]string, len(aux)+1)
	for k, v := range aux {
		data[k] = v
	}
	data[ReportKey] = source

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errors.New(errors.CodeConfiguration, "prompt placeholder unresolved", err).
			WithContext("role", role.String())
	}
	return sb.String(), nil
}

// Sections renders role-labeled report sections in the given order.
func Sections(order []core.Role, reports map[core.Role]string) string {
	var sb strings.Builder
	for i, role := range order {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s Report:\n%s", role, strings.TrimSpace(reports[role]))
	}
	return sb.String()
}

// Truncate bounds s to max characters (runes). max <= 0 disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// dotKey marks a bare {{.}} among the collected names.
const dotKey = "."

// placeholders returns the top-level keys referenced by tree and whether it
// uses a bare dot.
func placeholders(tree *parse.Tree) ([]string, bool) {
	seen := make(map[string]struct{})
	if tree != nil && tree.Root != nil {
		walk(tree.Root, seen)
	}
	_, dot := seen[dotKey]
	delete(seen, dotKey)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, dot
}

func walk(node parse.Node, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			walk(child, seen)
		}
	case *parse.ActionNode:
		walkPipe(n.Pipe, seen)
	case *parse.IfNode:
		walkBranch(&n.BranchNode, seen)
	case *parse.RangeNode:
		walkRebound(&n.BranchNode, seen)
	case *parse.WithNode:
		walkRebound(&n.BranchNode, seen)
	case *parse.TemplateNode:
		walkPipe(n.Pipe, seen)
	}
}

func walkBranch(b *parse.BranchNode, seen map[string]struct{}) {
	walkPipe(b.Pipe, seen)
	walk(b.List, seen)
	if b.ElseList != nil {
		walk(b.ElseList, seen)
	}
}

// walkRebound walks a branch whose body rebinds dot to the piped value.
func walkRebound(b *parse.BranchNode, seen map[string]struct{}) {
	walkPipe(b.Pipe, seen)
	body := make(map[string]struct{})
	walk(b.List, body)
	delete(body, dotKey)
	for name := range body {
		seen[name] = struct{}{}
	}
	if b.ElseList != nil {
		walk(b.ElseList, seen)
	}
}

func walkPipe(p *parse.PipeNode, seen map[string]struct{}) {
	if p == nil {
		return
	}
	for _, cmd := range p.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) > 0 {
					seen[a.Ident[0]] = struct{}{}
				}
			case *parse.DotNode:
				seen[dotKey] = struct{}{}
			case *parse.PipeNode:
				walkPipe(a, seen)
			}
		}
	}
}
