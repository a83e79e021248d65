package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/tripwire/internal/config"
)

// NewRootCmd builds the tripwire command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "tripwire",
		Short: "Run commands under real-time error detection",
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to an optional tripwire.yaml")
	root.PersistentFlags().StringSliceVar(&opts.rulesets, "rules", defaults.Rulesets, "Built-in rule sets to apply")
	root.PersistentFlags().StringSliceVar(&opts.ruleFiles, "rules-file", nil, "Rule set files to apply")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Overall wall-clock bound, 0 for unbounded")
	root.PersistentFlags().DurationVar(&opts.grace, "grace", defaults.Grace, "Wait between graceful and forceful termination")
	root.PersistentFlags().DurationVar(&opts.reap, "reap", defaults.Reap, "Post-kill window to confirm the process group gone")
	root.PersistentFlags().DurationVar(&opts.idleFlush, "idle-flush", defaults.IdleFlush, "Flush partial output lines after this idle time")
	root.PersistentFlags().StringVar(&opts.logDir, "log-dir", "", "Directory to persist structured run logs")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored notices")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newRulesCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configFile  string
	rulesets    []string
	ruleFiles   []string
	timeout     time.Duration
	grace       time.Duration
	reap        time.Duration
	idleFlush   time.Duration
	logDir      string
	metricsAddr string
	noColor     bool
}

// resolve builds the effective configuration with the documented
// precedence: defaults, then config file, then TRIPWIRE_* env, then flags.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.Load(o.configFile, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("rules") {
		cfg.Rulesets = o.rulesets
	}
	if flags.Changed("rules-file") {
		cfg.RuleFiles = o.ruleFiles
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("grace") {
		cfg.Grace = o.grace
	}
	if flags.Changed("reap") {
		cfg.Reap = o.reap
	}
	if flags.Changed("idle-flush") {
		cfg.IdleFlush = o.idleFlush
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = o.logDir
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// exitError carries a synthesized exit code through cobra's error return.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
