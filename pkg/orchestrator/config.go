// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"strings"

	"github.com/jllopis/medteam/pkg/agent"
	"github.com/jllopis/medteam/pkg/errors"
)

// DefaultFailurePlaceholder stands in for the text of a failed specialist.
const DefaultFailurePlaceholder = "No data: analysis failed"

// Config is the immutable run configuration passed at construction time.
type Config struct {
	// Policy applies to every specialist and to the aggregator.
	Policy agent.Policy
	// MaxReportChars bounds the source document embedded in prompts.
	MaxReportChars int
	// FailurePlaceholder replaces the output of a failed specialist.
	FailurePlaceholder string
	// MaxConcurrency caps concurrent specialists. Zero runs all at once.
	MaxConcurrency int
	// Model is sent with every completion request.
	Model string
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Policy:             agent.DefaultPolicy(),
		MaxReportChars:     2500,
		FailurePlaceholder: DefaultFailurePlaceholder,
	}
}

// Validate reports out-of-range settings as configuration errors.
func (c Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if c.MaxReportChars < 0 {
		return errors.New(errors.CodeConfiguration, "max report chars must not be negative", nil).
			WithContext("max_report_chars", c.MaxReportChars)
	}
	if c.MaxConcurrency < 0 {
		return errors.New(errors.CodeConfiguration, "max concurrency must not be negative", nil).
			WithContext("max_concurrency", c.MaxConcurrency)
	}
	if strings.TrimSpace(c.FailurePlaceholder) == "" {
		return errors.New(errors.CodeConfiguration, "failure placeholder is required", nil)
	}
	return nil
}
