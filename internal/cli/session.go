package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	temporalclient "go.temporal.io/sdk/client"
	temporalworker "go.temporal.io/sdk/worker"

	"github.com/edvin/clientops/internal/lifecycle"
	"github.com/edvin/clientops/internal/logging"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/secrets"
	"github.com/edvin/clientops/internal/style"
	"github.com/edvin/clientops/internal/toolexec"
	"github.com/edvin/clientops/internal/worker"
)

// embedded reports whether the registry lives in a local Badger directory.
// Badger holds an exclusive lock, so the worker must run inside clientctl.
func embedded(dsn string) bool {
	return strings.HasPrefix(dsn, "badger://") || dsn == "memory://"
}

func openRegistry(ctx context.Context) (*registry.Registry, error) {
	if err := cfg.Validate("registry"); err != nil {
		return nil, err
	}
	return registry.Open(ctx, cfg.RegistryDSN)
}

func dialTemporal() (temporalclient.Client, error) {
	opts, err := cfg.TemporalOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = logging.NewTemporalLogger(logger)
	tc, err := temporalclient.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", cfg.TemporalAddress, err)
	}
	return tc, nil
}

// session is everything a lifecycle command needs.
type session struct {
	reg      *registry.Registry
	tc       temporalclient.Client
	worker   temporalworker.Worker
	launcher *lifecycle.Launcher
}

func openSession(ctx context.Context) (*session, error) {
	if err := cfg.Validate("lifecycle"); err != nil {
		return nil, err
	}
	reg, err := openRegistry(ctx)
	if err != nil {
		return nil, err
	}
	tc, err := dialTemporal()
	if err != nil {
		reg.Close()
		return nil, err
	}
	s := &session{reg: reg, tc: tc, launcher: lifecycle.NewLauncher(tc, cfg.TaskQueue, logger)}

	if embedded(cfg.RegistryDSN) {
		w, err := worker.New(cfg, tc, reg, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := w.Start(); err != nil {
			s.Close()
			return nil, fmt.Errorf("start embedded worker: %w", err)
		}
		s.worker = w
		logger.Debug().Str("task_queue", cfg.TaskQueue).Msg("embedded worker started")
	}
	return s, nil
}

func (s *session) Close() {
	if s.worker != nil {
		s.worker.Stop()
	}
	s.tc.Close()
	s.reg.Close()
}

func (s *session) local() *lifecycle.Local {
	return &lifecycle.Local{
		KeysDir:      cfg.SSHKeysDir(),
		BaseDomain:   cfg.BaseDomain,
		Secrets:      secretsAccessor(),
		Declarations: provision.NewDeclarations(cfg.DeclarationsFile()),
		Prompt:       lifecycle.NewPrompter(assumeYes, os.Stdin),
		Logger:       logger,
	}
}

func secretsAccessor() *secrets.Accessor {
	return secrets.NewAccessor(cfg.SecretsDir(), cfg.SOPSBin, cfg.SOPSAgeKeyFile, toolexec.OSRunner{})
}

func printSteps(w io.Writer, steps []model.StepResult) {
	for _, s := range steps {
		line := fmt.Sprintf("  %s %s", style.Step(s.Status), style.Bold.Render(s.Name))
		if s.Message != "" {
			line += "  " + style.DimText.Render(s.Message)
		}
		fmt.Fprintln(w, line)
	}
}

// printFlow renders a flow's steps and then its warnings. A nil result
// prints nothing.
func printFlow(w io.Writer, res *model.FlowResult) {
	if res == nil {
		return
	}
	fmt.Fprintln(w, style.Title.Render(res.Flow+" "+res.Client))
	printSteps(w, res.Steps)

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, style.WarningBox.Render("warnings\n"+strings.Join(res.Warnings, "\n")))
		return
	}
	if _, failed := res.Failed(); !failed {
		fmt.Fprintln(w, style.SuccessBox.Render(res.Flow+" finished"))
	}
}
