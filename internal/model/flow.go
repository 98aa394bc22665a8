package model

import "time"

// StepStatus is the outcome of one lifecycle step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepWarning StepStatus = "warning"
	StepFailed  StepStatus = "failed"
)

// StepResult is the structured record a lifecycle step emits.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// FlowResult is returned by every lifecycle workflow.
type FlowResult struct {
	Client   string       `json:"client"`
	Flow     string       `json:"flow"`
	Steps    []StepResult `json:"steps"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (r *FlowResult) Add(step StepResult) {
	r.Steps = append(r.Steps, step)
	if step.Status == StepWarning && step.Message != "" {
		r.Warnings = append(r.Warnings, step.Name+": "+step.Message)
	}
}

// Failed returns the first failed step, if any.
func (r *FlowResult) Failed() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return s, true
		}
	}
	return StepResult{}, false
}

// Lifecycle flow names.
const (
	FlowDeploy   = "deploy"
	FlowRebuild  = "rebuild"
	FlowDestroy  = "destroy"
	FlowVersions = "collect-versions"
	FlowResize   = "resize-volume"
)

// ProgressQuery returns the FlowResult accumulated so far.
const ProgressQuery = "progress"

// WorkflowID is shared by every lifecycle flow of a client so that at most
// one runs at a time.
func WorkflowID(client string) string {
	return "client-" + client
}

// Phase selects a configuration pass.
type Phase string

const (
	PhaseBase Phase = "base"
	PhaseApps Phase = "apps"
)

// Playbook returns the playbook path (relative to the ansible dir) for p.
func (p Phase) Playbook() string {
	switch p {
	case PhaseBase:
		return "playbooks/setup.yml"
	case PhaseApps:
		return "playbooks/deploy.yml"
	}
	return ""
}
