// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/orchestrator"
	"github.com/jllopis/medteam/pkg/report"
)

type specialistOutput struct {
	Role     string `json:"role"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

type diagnoseOutput struct {
	RunID       string             `json:"run_id"`
	State       string             `json:"state"`
	Patient     report.Patient     `json:"patient"`
	Truncated   bool               `json:"truncated"`
	Degraded    []string           `json:"degraded,omitempty"`
	Specialists []specialistOutput `json:"specialists"`
	Diagnosis   string             `json:"diagnosis,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	OutputPath  string             `json:"output_path,omitempty"`
	Duration    string             `json:"duration"`
}

func (c *cli) runDiagnose(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	input := fs.String("report", "", "medical report file (- reads stdin)")
	output := fs.String("output", "", "diagnosis file (overrides output.path)")
	summary := fs.Bool("summary", false, "print a bullet summary instead of the full diagnosis")
	timeout := fs.Duration("timeout", 0, "abort the run after this long (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("diagnose", err.Error())
	}
	path := *input
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		return NewInvalidArgumentError("report", "a report file is required (use - for stdin)")
	}

	text, err := c.readReport(path)
	if err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if *output != "" {
		cfg.Output.Path = *output
	}

	a, err := c.newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	rep, runErr := a.orch.Run(ctx, text)
	out := buildOutput(rep, report.ParsePatient(text))

	if diagnosis, ok := rep.Diagnosis(); ok {
		if *summary {
			out.Summary = report.FormatBullets(report.Summarize(diagnosis))
		}
		if cfg.Output.Path != "" {
			if err := report.WriteDiagnosis(cfg.Output.Path, diagnosis); err != nil {
				return err
			}
			out.OutputPath = cfg.Output.Path
		}
	}

	if c.global.JSON {
		if err := c.printJSON(out); err != nil {
			return err
		}
	} else {
		c.printDiagnosis(out, *summary)
	}
	if runErr != nil {
		return NewRunError(runErr)
	}
	return nil
}

func (c *cli) readReport(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", NewCLIError(
			errors.New(errors.CodeInvalidInput, "cannot read report", err).WithContext("path", path),
			"pass a readable text file with --report",
		)
	}
	return string(data), nil
}

func buildOutput(rep *orchestrator.Report, patient report.Patient) diagnoseOutput {
	out := diagnoseOutput{
		RunID:     rep.RunID,
		State:     string(rep.State),
		Patient:   patient,
		Truncated: rep.Truncated,
		Duration:  rep.Duration().Round(time.Millisecond).String(),
	}
	for _, role := range rep.Degraded() {
		out.Degraded = append(out.Degraded, string(role))
	}
	for _, res := range rep.Specialists {
		so := specialistOutput{
			Role:     string(res.Role),
			State:    string(res.State),
			Attempts: res.Attempts,
			Duration: res.Duration.Round(time.Millisecond).String(),
		}
		if res.Err != nil {
			so.Error = res.Err.Message
			so.Code = string(res.Err.Code)
		}
		out.Specialists = append(out.Specialists, so)
	}
	if diagnosis, ok := rep.Diagnosis(); ok {
		out.Diagnosis = diagnosis
	}
	return out
}

func (c *cli) printDiagnosis(out diagnoseOutput, summary bool) {
	fmt.Fprintf(c.stdout, "Patient: %s (age %s, contact %s)\n", out.Patient.Name, out.Patient.Age, out.Patient.Contact)
	fmt.Fprintf(c.stdout, "Run: %s  state=%s  duration=%s\n\n", out.RunID, out.State, out.Duration)

	w := c.newTabWriter()
	writeRow(w, "SPECIALIST", "STATE", "ATTEMPTS", "DURATION", "ERROR")
	for _, s := range out.Specialists {
		errText := s.Code
		if s.Error != "" {
			errText = s.Code + ": " + s.Error
		}
		writeRow(w, s.Role, s.State, fmt.Sprint(s.Attempts), s.Duration, errText)
	}
	_ = w.Flush()

	if len(out.Degraded) > 0 {
		fmt.Fprintf(c.stdout, "\nDegraded: %s\n", strings.Join(out.Degraded, ", "))
	}
	if out.Diagnosis == "" {
		return
	}
	fmt.Fprintln(c.stdout)
	if summary && out.Summary != "" {
		fmt.Fprintln(c.stdout, out.Summary)
	} else {
		fmt.Fprintln(c.stdout, strings.TrimRight(report.DiagnosisHeader+out.Diagnosis, "\n"))
	}
	if out.OutputPath != "" {
		fmt.Fprintf(c.stdout, "\nFinal diagnosis has been saved to %s\n", out.OutputPath)
	}
}

// roleNames renders roles for listings.
func roleNames(roles []core.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
