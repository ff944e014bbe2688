package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/pipeline"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/render"
)

func newRunCmd() *cobra.Command {
	var (
		metricsAddr string
		cancelOnInt bool
	)
	cmd := &cobra.Command{
		Use:   "run <notebook-id>",
		Short: "Run the agent pipeline on a notebook",
		Long: `Run all seven agents in order on a notebook. The first interrupt pauses the
session after the current stage (resume it with "evoc resume"); with
--cancel-on-interrupt it is cancelled instead. A second interrupt aborts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openPipeline(cmd.Context(), metricsAddr)
			if err != nil {
				return err
			}
			defer e.close()

			id, err := e.coord.Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "session %s started\n", id)
			return wait(cmd.Context(), e, id, cancelOnInt)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().BoolVar(&cancelOnInt, "cancel-on-interrupt", false, "cancel instead of pausing on interrupt")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a paused or interrupted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openPipeline(cmd.Context(), metricsAddr)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.coord.Resume(cmd.Context(), args[0]); err != nil {
				return err
			}
			return wait(cmd.Context(), e, args[0], false)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a paused or running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			coord := e.inspector()
			defer coord.Close()

			if err := coord.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			st, err := coord.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(render.SessionStatus(st))
			if !st.State.IsTerminal() {
				fmt.Println("cancel requested; the session stops after its current stage")
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the state of a pipeline session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			coord := e.inspector()
			defer coord.Close()

			st, err := coord.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(render.SessionStatus(st))
			for agentID, n := range st.Retries {
				fmt.Printf("  %s: %d retries\n", agentID, n)
			}
			return nil
		},
	}
}

// wait blocks until the session settles, pausing or cancelling it on the
// first interrupt.
func wait(ctx context.Context, e *env, sessionID string, cancelOnInt bool) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
		case <-done:
			return
		}
		if cancelOnInt {
			fmt.Fprintln(os.Stderr, "cancelling after the current stage...")
			_ = e.coord.Cancel(ctx, sessionID)
		} else {
			fmt.Fprintln(os.Stderr, "pausing after the current stage...")
			_ = e.coord.Pause(sessionID)
		}
		select {
		case <-sigs:
			fmt.Fprintln(os.Stderr, "aborting")
			e.coord.Close()
		case <-done:
		}
	}()

	st, err := e.coord.Wait(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Println(render.SessionStatus(st))

	switch st.State {
	case domain.StateCompleted:
		return printAgents(ctx, e.coord, st.NotebookID)
	case domain.StatePaused:
		fmt.Printf("resume with: evoc resume %s\n", sessionID)
		return nil
	case domain.StateCancelled:
		return nil
	default:
		return errors.New(st.Reason)
	}
}

func printAgents(ctx context.Context, coord *pipeline.Coordinator, notebookID string) error {
	statuses, err := coord.AgentStatuses(ctx, notebookID)
	if err != nil {
		return err
	}
	fmt.Println(render.AgentTable(statuses))
	return nil
}
