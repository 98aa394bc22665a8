package lifecycle

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/edvin/clientops/internal/model"
)

// Prompter collects operator decisions.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(title, description string) (bool, error)
	// TypeToConfirm asks the operator to type want back.
	TypeToConfirm(title, want string) (bool, error)
}

// NewPrompter returns a prompter for in. With yes every question is
// answered affirmatively; on a non-interactive input every question fails
// with a NotInteractive precondition.
func NewPrompter(yes bool, in *os.File) Prompter {
	switch {
	case yes:
		return AssumeYes{}
	case in == nil || !(isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())):
		return NonInteractive{}
	}
	return Huh{}
}

// AssumeYes answers yes to everything.
type AssumeYes struct{}

func (AssumeYes) Confirm(string, string) (bool, error)       { return true, nil }
func (AssumeYes) TypeToConfirm(string, string) (bool, error) { return true, nil }

// NonInteractive refuses to guess.
type NonInteractive struct{}

func (NonInteractive) Confirm(title, _ string) (bool, error) {
	return false, notInteractive(title)
}

func (NonInteractive) TypeToConfirm(title, _ string) (bool, error) {
	return false, notInteractive(title)
}

func notInteractive(question string) error {
	return &model.PreconditionError{
		Kind:   model.NotInteractive,
		Detail: fmt.Sprintf("cannot ask %q without a terminal", question),
		Remedy: "re-run with --yes",
	}
}

// Huh prompts on the terminal.
type Huh struct{}

func (Huh) Confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func (Huh) TypeToConfirm(title, want string) (bool, error) {
	var typed string
	err := huh.NewInput().
		Title(title).
		Description(fmt.Sprintf("Type %q to continue.", want)).
		Value(&typed).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return typed == want, nil
}

// ConfirmDestroy requires the operator to type the client name before a
// destructive flow starts.
func ConfirmDestroy(p Prompter, client, action string) error {
	ok, err := p.TypeToConfirm(fmt.Sprintf("%s %s? This deletes its server and data volume.", action, client), client)
	if err != nil {
		return err
	}
	if !ok {
		return &model.PreconditionError{
			Kind:   model.Aborted,
			Client: client,
			Detail: action + " not confirmed",
		}
	}
	return nil
}
