package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tgienger/checker/internal/derived"
	"github.com/tgienger/checker/internal/mirror"
	"github.com/tgienger/checker/internal/models"
)

const watchWrapWidth = 80

var watchProject string

var watchCmd = &cobra.Command{
	Use:   "watch --project ID",
	Short: "Print a notification whenever a task in the project is marked done",
	Args:  cobra.NoArgs,
	RunE:  runWatchCmd,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchProject, "project", "", "project id")
	_ = watchCmd.MarkFlagRequired("project")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.role != models.RoleTeamLead {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: role is %s; only TeamLead receives notifications\n", e.role)
	}
	if stopMetrics := startMetricsServer(e); stopMetrics != nil {
		defer stopMetrics()
	}
	return runWatch(ctx, e, watchProject, cmd.OutOrStdout(), nil)
}

// runWatch mirrors the project's tasks and prints notifications to out until
// ctx is done. ready, if set, is called once the first batch has arrived.
func runWatch(ctx context.Context, e *env, projectID string, out io.Writer, ready func()) error {
	tasks := mirror.New(e.store, mirror.DecodeTask, e.mirrorOptions()...)
	if err := tasks.Activate(ctx, mirror.TaskParams(projectID)); err != nil {
		return err
	}
	defer tasks.Deactivate()

	notifier := derived.NewNotifier(e.role, &derived.WriterEmitter{W: out, Width: watchWrapWidth}, e.metrics)
	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-tasks.Updates():
			if ev.Err != nil {
				return ev.Err
			}
			e.logger.Printf("watch: %d task(s), %d change(s)", len(ev.Snapshot), len(ev.Changes))
			if first {
				first = false
				if ready != nil {
					ready()
				}
				continue
			}
			if _, err := notifier.Handle(ev); err != nil {
				return err
			}
		}
	}
}
