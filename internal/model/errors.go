package model

import (
	"fmt"
	"strings"
)

// PreconditionKind names the missing prerequisite.
type PreconditionKind string

const (
	MissingEnv         PreconditionKind = "missing_env"
	MissingAgeKey      PreconditionKind = "missing_age_key"
	MissingSSHKey      PreconditionKind = "missing_ssh_key"
	MissingSecrets     PreconditionKind = "missing_secrets"
	MissingDeclaration PreconditionKind = "missing_declaration"
	MissingRegistry    PreconditionKind = "missing_registry_entry"
	NotInteractive     PreconditionKind = "not_interactive"
	Aborted            PreconditionKind = "aborted"
	InvalidClientName  PreconditionKind = "invalid_client_name"
)

// PreconditionError reports a missing file, variable or confirmation.
// These are never retried.
type PreconditionError struct {
	Kind   PreconditionKind
	Client string
	Detail string
	Remedy string
	Err    error
}

func (e *PreconditionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Client != "" {
		fmt.Fprintf(&b, " (client %s)", e.Client)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Remedy != "" {
		b.WriteString("; ")
		b.WriteString(e.Remedy)
	}
	return b.String()
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// ToolError wraps a non-zero exit from an external tool.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: exit %d", e.Tool, strings.Join(e.Args, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLines(out, 5)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
