package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/cis-audit/internal/config"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/engine"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/policy"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/providers/aws/common"
	"github.com/pankaj-dahiya-devops/cis-audit/internal/scans"
)

// deps are the collaborators commands build their work from. Tests replace
// them with fakes.
type deps struct {
	newValidator func() common.CredentialValidator
	newResolver  func(regions []string) common.RegionResolver
	newEngine    func(cfg *config.Config, pol *policy.PolicyConfig) (engine.Engine, error)
	profiles     func() ([]string, error)
	readSecret   func() (string, error)
}

func defaultDeps() deps {
	return deps{
		newValidator: func() common.CredentialValidator { return common.NewDefaultValidator() },
		newResolver:  func(regions []string) common.RegionResolver { return common.NewRegionResolver(regions) },
		newEngine: func(cfg *config.Config, pol *policy.PolicyConfig) (engine.Engine, error) {
			return scans.NewAWSEngine(cfg, pol)
		},
		profiles:   common.DiscoverProfiles,
		readSecret: promptSecret,
	}
}

// app is the state shared by every subcommand once the root command has
// loaded configuration.
type app struct {
	deps

	configPath string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(defaultDeps())
}

func newRootCmdWith(d deps) *cobra.Command {
	a := &app{deps: d}

	root := &cobra.Command{
		Use:           "cisaudit",
		Short:         "Audit an AWS account against the CIS AWS Foundations Benchmark",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default ~/.config/cisaudit/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override: trace, debug, info, warn, error")

	root.AddCommand(
		newAuditCmd(a),
		newServeCmd(a),
		newDoctorCmd(a),
		newProfilesCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the process logger.
func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.NewFileLoader(a.configPath).Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	levelName := cfg.Log.Level
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: !isTerminal(stderr)}).
		Level(level).
		With().Timestamp().Logger()
	return nil
}

// withLogger returns parent carrying the process logger.
func (a *app) withLogger(parent context.Context) context.Context {
	return a.logger.WithContext(parent)
}

// loadPolicy reads and validates the policy file at path. An empty path
// means no policy.
func loadPolicy(path string) (*policy.PolicyConfig, error) {
	if path == "" {
		return nil, nil
	}
	pol, err := policy.LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	if errs := policy.Validate(pol, knownServices(), knownChecks()); len(errs) > 0 {
		return nil, &policyError{path: path, errs: errs}
	}
	return pol, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminalFd(int(f.Fd()))
}
