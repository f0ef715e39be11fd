// SPDX-License-Identifier: Apache-2.0

// Package report holds the host-side presentation helpers around a
// diagnosis: patient header extraction, bullet summaries and the output
// file.
package report

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jllopis/medteam/pkg/errors"
)

const (
	UnknownPatient = "Unknown Patient"
	NotAvailable   = "N/A"

	// DiagnosisHeader prefixes the text written by WriteDiagnosis.
	DiagnosisHeader = "### Final Diagnosis:\n\n"

	maxSummaryPoints = 6
	minPointRunes    = 10
)

var (
	nameRe    = regexp.MustCompile(`Patient Name:[ \t]*(.*)`)
	ageRe     = regexp.MustCompile(`Age:[ \t]*(.*)`)
	contactRe = regexp.MustCompile(`Contact:[ \t]*(.*)`)

	pointSplit = regexp.MustCompile(`\n|•|-`)

	markdown = strings.NewReplacer("**", "", "* ", "• ")
)

// Patient is the header printed above a diagnosis.
type Patient struct {
	Name    string `json:"name"`
	Age     string `json:"age"`
	Contact string `json:"contact"`
}

// ParsePatient extracts the first "Patient Name:", "Age:" and "Contact:"
// lines of a report. Missing fields take UnknownPatient or NotAvailable.
func ParsePatient(text string) Patient {
	return Patient{
		Name:    firstMatch(nameRe, text, UnknownPatient),
		Age:     firstMatch(ageRe, text, NotAvailable),
		Contact: firstMatch(contactRe, text, NotAvailable),
	}
}

func firstMatch(re *regexp.Regexp, text, fallback string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	if v := strings.TrimSpace(m[1]); v != "" {
		return v
	}
	return fallback
}

// Summarize strips markdown from text and keeps its first six points
// longer than ten characters, one "• " bullet per line.
func Summarize(text string) string {
	cleaned := markdown.Replace(text)
	cleaned = strings.NewReplacer("*", "", "#", "").Replace(cleaned)

	var points []string
	for _, part := range pointSplit.Split(cleaned, -1) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) <= minPointRunes {
			continue
		}
		points = append(points, part)
		if len(points) == maxSummaryPoints {
			break
		}
	}
	if len(points) == 0 {
		return ""
	}
	return "• " + strings.Join(points, "\n• ")
}

// FormatBullets puts every bullet on its own line and drops blank lines.
func FormatBullets(text string) string {
	text = strings.ReplaceAll(text, "•", "\n•")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// WriteDiagnosis writes the final diagnosis under DiagnosisHeader to path,
// creating parent directories as needed.
func WriteDiagnosis(path, diagnosis string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New(errors.CodeInvalidInput, "output path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.CodeInternal, "failed to create output directory", err).
			WithContext("path", path)
	}
	if err := os.WriteFile(path, []byte(DiagnosisHeader+diagnosis), 0o644); err != nil {
		return errors.New(errors.CodeInternal, "failed to write diagnosis", err).
			WithContext("path", path)
	}
	return nil
}
