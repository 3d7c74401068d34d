// stevedore runs the Linux docker engine in a WSL distribution and makes it
// the default engine of the native docker CLI.
//
// Commands:
//
//	stevedore          Start the engine and sit in the system tray until Quit
//	stevedore doctor   Print platform, configuration and distribution info
//	stevedore version  Print the version
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slonopotamus/stevedore/internal/config"
	"github.com/slonopotamus/stevedore/internal/distro"
	"github.com/slonopotamus/stevedore/internal/dockerctx"
	"github.com/slonopotamus/stevedore/internal/instance"
	"github.com/slonopotamus/stevedore/internal/journal"
	"github.com/slonopotamus/stevedore/internal/logging"
	"github.com/slonopotamus/stevedore/internal/logstore"
	"github.com/slonopotamus/stevedore/internal/process"
	"github.com/slonopotamus/stevedore/internal/supervisor"
	"github.com/slonopotamus/stevedore/internal/version"
	"github.com/slonopotamus/stevedore/internal/wsl"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		showError(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "stevedore",
		Short:         "Run the Linux docker engine in WSL",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStevedore(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to config.toml (default <data dir>/config.toml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newDoctorCommand(&opts), newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// loadConfig reads the configuration and sets up logging. The closer
// flushes the log file.
func loadConfig(opts rootOptions) (*config.Config, io.Closer, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, fmt.Errorf("create data dirs: %w", err)
	}
	closer, err := logging.Setup(cfg.LogLevel, cfg.LogsDir())
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

func runStevedore(cmd *cobra.Command, opts rootOptions) error {
	if err := config.DetectPlatform().Require(); err != nil {
		return err
	}

	cfg, closer, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer closer.Close()

	logrus.WithField("version", version.Version()).
		WithField("data_dir", cfg.DataDir).
		Info("stevedore starting")

	logs := logstore.NewStore(cfg.LogsDir())
	defer logs.Close()

	sup := newSupervisor(cfg, logs)

	// The lock comes first: a second instance must not touch the journal,
	// the tray, the distribution or docker.
	db, err := lockAndOpenJournal(sup, cfg.JournalPath())
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	if err := runSession(cmd.Context(), sup); err != nil {
		return err
	}
	logrus.Info("stevedore stopped")
	return nil
}

// lockAndOpenJournal takes the instance lock and only then opens the session
// journal. A journal that cannot be opened disables crash recovery and
// returns a nil DB.
func lockAndOpenJournal(sup *supervisor.Supervisor, path string) (*journal.DB, error) {
	if err := sup.Lock(); err != nil {
		return nil, err
	}
	db, err := journal.Open(path)
	if err != nil {
		logrus.WithError(err).Warn("session journal unavailable, crash recovery disabled")
		return nil, nil
	}
	sup.SetJournal(db)
	return db, nil
}

// newSupervisor wires the session components from configuration.
func newSupervisor(cfg *config.Config, logs *logstore.Store) *supervisor.Supervisor {
	runner := process.ExecRunner{}

	guest := wsl.New(cfg.WSLBin, runner)
	ctl := distro.New(distro.Options{
		Name:                   cfg.Distribution,
		InstallDir:             cfg.DistributionDir(),
		Artifact:               cfg.ImportArtifact,
		GuestVersion:           cfg.GuestVersion,
		ProxyBin:               cfg.ProxyBin,
		GuestSocket:            cfg.GuestSocket,
		ProxyListen:            cfg.LinuxContext.Host,
		Logs:                   logs,
		CommandTimeout:         cfg.CommandTimeout,
		ImportTimeout:          cfg.ImportTimeout,
		ReadyTimeout:           cfg.ReadyTimeout,
		ReimportOnProbeFailure: cfg.ReimportOnProbeFailure,
	}, guest, nil)

	router := dockerctx.NewManager(dockerctx.NewCLI(cfg.DockerBin, runner), cfg.CommandTimeout)

	contexts := []config.Context{cfg.LinuxContext}
	if cfg.WindowsContext.Name != "" && cfg.WindowsContext.Host != "" {
		contexts = append(contexts, cfg.WindowsContext)
	}

	return supervisor.New(supervisor.Options{
		LockName:     cfg.LockName,
		Contexts:     contexts,
		Activate:     cfg.LinuxContext.Name,
		Artifact:     cfg.ImportArtifact,
		GuestVersion: cfg.GuestVersion,
	}, ctl, router, nil)
}

// errorMessage renders a startup error for the dialog.
func errorMessage(err error) string {
	if errors.Is(err, instance.ErrAlreadyRunning) {
		return "Another instance of Stevedore is already running."
	}
	return "Stevedore failed to start: " + err.Error()
}
