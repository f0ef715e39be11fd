// SPDX-License-Identifier: Apache-2.0

package core

// AgentState describes the lifecycle of one agent execution:
// Pending -> Running -> {Succeeded | Retrying -> Running | Failed}.
type AgentState string

const (
	AgentPending   AgentState = "pending"
	AgentRunning   AgentState = "running"
	AgentRetrying  AgentState = "retrying"
	AgentSucceeded AgentState = "succeeded"
	AgentFailed    AgentState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s AgentState) Terminal() bool {
	return s == AgentSucceeded || s == AgentFailed
}

// RunState describes the lifecycle of one orchestration run:
// Dispatched -> AwaitingAll -> Aggregating -> Completed | AggregationFailed.
// Rejected and Canceled are the two early exits.
type RunState string

const (
	RunDispatched        RunState = "dispatched"
	RunAwaitingAll       RunState = "awaiting_all"
	RunAggregating       RunState = "aggregating"
	RunCompleted         RunState = "completed"
	RunAggregationFailed RunState = "aggregation_failed"
	RunCanceled          RunState = "canceled"
	RunRejected          RunState = "rejected"
)

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	switch s {
	case RunCompleted, RunAggregationFailed, RunCanceled, RunRejected:
		return true
	}
	return false
}
