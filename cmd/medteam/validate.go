// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/jllopis/medteam/pkg/registry"
)

type validateResult struct {
	Valid       bool     `json:"valid"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Specialists []string `json:"specialists"`
	Aggregator  string   `json:"aggregator"`
	Templates   string   `json:"templates"`
}

// runValidate checks configuration, credentials and the specialist table
// without calling the provider.
func (c *cli) runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("validate", err.Error())
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return NewConfigError(err, "")
	}
	if err := orchestratorConfig(cfg).Validate(); err != nil {
		return NewConfigError(err, "")
	}

	res := validateResult{
		Valid:      true,
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		Aggregator: string(reg.Aggregator()),
		Templates:  cfg.Orchestrator.TemplatesPath,
	}
	if res.Templates == "" {
		res.Templates = "embedded"
	}
	for _, r := range reg.Specialists() {
		res.Specialists = append(res.Specialists, string(r))
	}

	if c.global.JSON {
		return c.printJSON(res)
	}
	fmt.Fprintln(c.stdout, "Configuration OK")
	fmt.Fprintf(c.stdout, "  provider:    %s (%s)\n", res.Provider, res.Model)
	fmt.Fprintf(c.stdout, "  templates:   %s\n", res.Templates)
	fmt.Fprintf(c.stdout, "  specialists: %s\n", roleNames(reg.Specialists()))
	fmt.Fprintf(c.stdout, "  aggregator:  %s\n", res.Aggregator)
	return nil
}

type roleEntry struct {
	Role         string   `json:"role"`
	Kind         string   `json:"kind"`
	Placeholders []string `json:"placeholders"`
}

// runRoles lists the specialist table. Credentials are not required.
func (c *cli) runRoles(args []string) error {
	fs := flag.NewFlagSet("roles", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	templates := fs.String("templates", "", "template table to list (default: configured table)")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("roles", err.Error())
	}

	path := *templates
	if path == "" {
		if cfg, err := c.loadConfigUnchecked(); err == nil {
			path = cfg.Orchestrator.TemplatesPath
		}
	}
	var (
		reg *registry.Registry
		err error
	)
	if path == "" {
		reg, err = registry.Default()
	} else {
		reg, err = registry.Load(path)
	}
	if err != nil {
		return NewConfigError(err, "")
	}

	entries := make([]roleEntry, 0, len(reg.Entries()))
	for _, e := range reg.Entries() {
		entries = append(entries, roleEntry{
			Role:         string(e.Role),
			Kind:         string(e.Kind),
			Placeholders: reg.Builder().Placeholders(e.Role),
		})
	}

	if c.global.JSON {
		return c.printJSON(entries)
	}
	w := c.newTabWriter()
	writeRow(w, "ROLE", "KIND", "PLACEHOLDERS")
	for _, e := range entries {
		writeRow(w, e.Role, e.Kind, strings.Join(e.Placeholders, ","))
	}
	return w.Flush()
}
