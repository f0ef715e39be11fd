// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"time"

	"github.com/jllopis/medteam/pkg/agent"
	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
)

// AggregationInput maps every specialist role to its text or to the failure
// placeholder. It is complete before the aggregator starts.
type AggregationInput map[core.Role]string

// Report is the outcome of one run. It is returned even when the run failed.
type Report struct {
	RunID string
	State core.RunState
	// Input is the source document after truncation.
	Input     string
	Truncated bool
	// Specialists holds one Result per specialist in registry order.
	Specialists []agent.Result
	Aggregation AggregationInput
	// AggregatorPrompt is the finished prompt sent to the aggregator.
	AggregatorPrompt string
	// Final is nil when the run stopped before aggregation.
	Final      *agent.Result
	Err        *errors.Error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Specialist returns the result for role.
func (r *Report) Specialist(role core.Role) (agent.Result, bool) {
	for _, res := range r.Specialists {
		if res.Role == role {
			return res, true
		}
	}
	return agent.Result{}, false
}

// Degraded returns the specialists whose output was replaced by the placeholder.
func (r *Report) Degraded() []core.Role {
	var out []core.Role
	for _, res := range r.Specialists {
		if !res.OK() {
			out = append(out, res.Role)
		}
	}
	return out
}

// Diagnosis returns the final text and whether the run produced one.
func (r *Report) Diagnosis() (string, bool) {
	if r.State != core.RunCompleted || r.Final == nil || !r.Final.OK() {
		return "", false
	}
	return r.Final.Text, true
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
