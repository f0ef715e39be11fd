// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"

	"github.com/jllopis/medteam/pkg/agent"
	"github.com/jllopis/medteam/pkg/prompt"
)

// aggregationInput keys every specialist result by role, substituting the
// placeholder for failures.
func (o *Orchestrator) aggregationInput(results []agent.Result) AggregationInput {
	in := make(AggregationInput, len(results))
	for _, res := range results {
		if res.OK() {
			in[res.Role] = res.Text
			continue
		}
		in[res.Role] = o.cfg.FailurePlaceholder
	}
	return in
}

// aggregatorPrompt renders the aggregator template. Specialist outputs are
// offered both as role-labeled sections and under per-role keys.
func (o *Orchestrator) aggregatorPrompt(in AggregationInput) (string, error) {
	order := o.reg.Specialists()
	aux := make(map[string]string, len(order)+1)
	aux[prompt.SpecialistReportsKey] = prompt.Sections(order, in)
	for _, role := range order {
		aux[role.ReportKey()] = in[role]
	}
	return o.reg.Builder().Build(o.reg.Aggregator(), "", aux)
}

// aggregate builds and executes the aggregator agent.
func (o *Orchestrator) aggregate(ctx context.Context, in AggregationInput) (string, agent.Result, error) {
	text, err := o.aggregatorPrompt(in)
	if err != nil {
		return "", agent.Result{}, err
	}
	a, err := o.newAgent(o.reg.Aggregator(), text)
	if err != nil {
		return text, agent.Result{}, err
	}
	return text, a.Execute(ctx), nil
}

