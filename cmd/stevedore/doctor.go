package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/slonopotamus/stevedore/internal/artifact"
	"github.com/slonopotamus/stevedore/internal/config"
	"github.com/slonopotamus/stevedore/internal/dockerctx"
	"github.com/slonopotamus/stevedore/internal/journal"
	"github.com/slonopotamus/stevedore/internal/process"
	"github.com/slonopotamus/stevedore/internal/version"
	"github.com/slonopotamus/stevedore/internal/wsl"
)

func newDoctorCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Print platform, configuration and distribution info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configFile)
			if err != nil {
				return err
			}
			runDoctor(cmd.Context(), cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

// runDoctor prints what it can find out without changing anything. Every
// probe failure is printed and the report goes on.
func runDoctor(ctx context.Context, out io.Writer, cfg *config.Config) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	row := func(k, format string, a ...any) {
		fmt.Fprintf(w, "%s:\t%s\n", k, fmt.Sprintf(format, a...))
	}

	row("version", "%s", version.String())
	row("platform", "%s", config.DetectPlatform())
	row("app dir", "%s", cfg.AppDir)
	row("data dir", "%s", cfg.DataDir)
	row("distribution", "%s", cfg.Distribution)

	if rep, err := artifact.Verify(cfg.ImportArtifact); err != nil {
		row("artifact", "%s: %v", cfg.ImportArtifact, err)
	} else {
		pinned := "unpinned"
		if rep.Pinned {
			pinned = "pinned"
		}
		row("artifact", "%s (%s, %d bytes, %d entries, %s)", cfg.ImportArtifact, rep.Digest, rep.Size, rep.Entries, pinned)
	}

	row("proxy", "%s", presence(cfg.ProxyBin))

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	runner := process.ExecRunner{}
	guest := wsl.New(cfg.WSLBin, runner)
	if ok, err := guest.IsRegistered(cctx, cfg.Distribution); err != nil {
		row("registered", "unknown: %v", err)
	} else {
		row("registered", "%t", ok)
	}

	if cur, err := dockerctx.NewCLI(cfg.DockerBin, runner).Show(cctx); err != nil {
		row("docker context", "unknown: %v", err)
	} else {
		row("docker context", "%s", cur)
	}

	if _, err := os.Stat(cfg.JournalPath()); err != nil {
		row("last session", "none")
		return
	}
	db, err := journal.Open(cfg.JournalPath())
	if err != nil {
		row("last session", "unreadable: %v", err)
		return
	}
	defer db.Close()

	if reg, err := db.GetRegistration(cfg.Distribution); err == nil && reg != nil {
		row("imported", "%s from %s (%s)", reg.ImportedAt.Format(time.RFC3339), reg.Artifact, reg.Digest)
	}
	if s, err := db.LastSession(); err == nil && s != nil {
		switch {
		case !s.Finished():
			row("last session", "started %s, still running or crashed", s.StartedAt.Format(time.RFC3339))
		case s.Recovered:
			row("last session", "started %s, recovered after a crash", s.StartedAt.Format(time.RFC3339))
		default:
			row("last session", "started %s, ended %s", s.StartedAt.Format(time.RFC3339), s.EndedAt.Format(time.RFC3339))
		}
	}
}

func presence(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path + " (missing)"
	}
	return path
}
