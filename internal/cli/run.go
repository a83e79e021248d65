package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/tripwire/internal/child"
	"github.com/Paintersrp/tripwire/internal/config"
	"github.com/Paintersrp/tripwire/internal/engine"
	"github.com/Paintersrp/tripwire/internal/logsink"
	"github.com/Paintersrp/tripwire/internal/metrics"
	"github.com/Paintersrp/tripwire/internal/pattern"
)

func newRunCmd(opts *options) *cobra.Command {
	var (
		envKVs []string
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command and terminate it on detected errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Already wrapped: run the command directly so nested
			// integrations cannot stack detection on top of detection.
			if os.Getenv(config.GuardEnv) == "1" {
				return runDirect(cmd, args, envKVs, dir)
			}

			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			overlay, err := parseEnvOverlay(envKVs)
			if err != nil {
				return err
			}
			overlay[config.GuardEnv] = "1"

			return runWrapped(cmd, cfg, child.Spec{
				Argv:  args,
				Dir:   dir,
				Env:   overlay,
				Stdin: os.Stdin,
			}, opts.noColor)
		},
	}
	cmd.Flags().StringArrayVar(&envKVs, "env", nil, "Additional KEY=VALUE pairs for the child environment")
	cmd.Flags().StringVar(&dir, "dir", "", "Working directory for the child")
	return cmd
}

func runWrapped(cmd *cobra.Command, cfg config.Config, spec child.Spec, noColor bool) error {
	sets, err := resolveSets(cfg)
	if err != nil {
		return err
	}
	matcher, err := pattern.NewMatcher(sets...)
	if err != nil {
		return err
	}

	var sink *logsink.Sink
	if cfg.LogDir != "" {
		var sinkOpts []logsink.Option
		if cfg.Retention.MaxFileAge > 0 {
			sinkOpts = append(sinkOpts, logsink.WithMaxFileAge(cfg.Retention.MaxFileAge))
		}
		if cfg.Retention.MaxFileCount > 0 {
			sinkOpts = append(sinkOpts, logsink.WithMaxFileCount(cfg.Retention.MaxFileCount))
		}
		if cfg.Retention.MaxTotalSize > 0 {
			sinkOpts = append(sinkOpts, logsink.WithMaxTotalSize(cfg.Retention.MaxTotalSize))
		}
		sink, err = logsink.Open(cfg.LogDir, sinkOpts...)
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() { _ = srv.ListenAndServe() }()
		defer srv.Close()
	}

	color := !noColor && term.IsTerminal(int(os.Stderr.Fd()))
	notices := engine.NewNotifier(os.Stderr, color)
	runner := &engine.Runner{
		Matcher: matcher,
		Config:  cfg,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Notices: notices,
		Sink:    sink,
	}

	rep, err := runner.Run(cmd.Context(), spec)
	if err != nil {
		// The child never started; no outcome exists.
		fmt.Fprintf(os.Stderr, "[tripwire] %v\n", err)
		return &exitError{code: cfg.ExitCodes.WrapperFailure}
	}

	rep.Summary(os.Stderr)
	if rep.Outcome == engine.OutcomeSuccess {
		notices.Successf("command completed with no fatal detections")
	}
	if code := rep.Code(cfg.ExitCodes); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// runDirect executes the command with inherited stdio and no observation.
// The exit status follows the same shell convention the wrapped path uses,
// including 128 plus the signal number for a signal-killed child.
func runDirect(cmd *cobra.Command, args, envKVs []string, dir string) error {
	overlay, err := parseEnvOverlay(envKVs)
	if err != nil {
		return err
	}
	direct := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
	direct.Stdin = os.Stdin
	direct.Stdout = os.Stdout
	direct.Stderr = os.Stderr
	direct.Dir = dir
	env := os.Environ()
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	direct.Env = env
	if err := direct.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &exitError{code: child.ExitStatus(err)}
		}
		return err
	}
	return nil
}

func resolveSets(cfg config.Config) ([]*pattern.Set, error) {
	var sets []*pattern.Set
	for _, name := range cfg.Rulesets {
		set, err := pattern.Builtin(name)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	for _, path := range cfg.RuleFiles {
		set, err := pattern.LoadFile(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func parseEnvOverlay(pairs []string) (map[string]string, error) {
	overlay := make(map[string]string, len(pairs)+1)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q, want KEY=VALUE", pair)
		}
		overlay[key] = value
	}
	return overlay, nil
}
