package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/render"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents <notebook-id>",
		Short: "Show each agent's cell version and last run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			coord := e.inspector()
			defer coord.Close()
			return printAgents(cmd.Context(), coord, args[0])
		},
	}
}

func newCellsCmd() *cobra.Command {
	var showCode bool
	cmd := &cobra.Command{
		Use:   "cells <notebook-id> [cell-type]",
		Short: "List active cells, or every version of one cell type",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			var cells []domain.Cell
			if len(args) == 2 {
				ct, err := domain.ParseCellType(args[1])
				if err != nil {
					return err
				}
				cells, err = e.store.ListVersions(ctx, args[0], ct)
				if err != nil {
					return err
				}
			} else {
				cells, err = e.store.ListActive(ctx, args[0])
				if err != nil {
					return err
				}
			}

			for _, c := range cells {
				active := ""
				if c.Active {
					active = " (active)"
				}
				fmt.Printf("%d. %-26s v%-3d %s  %s%s\n",
					c.Position, c.Type, c.Version, c.CreatedAt.Format("2006-01-02 15:04:05"), c.AgentID, active)
				if showCode {
					fmt.Println(e.hl.Python(c.Code))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCode, "code", false, "print each cell's code")
	return cmd
}

func newCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code <notebook-id>",
		Short: "Print the complete program assembled from the active cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if _, err := e.store.GetNotebook(cmd.Context(), args[0]); err != nil {
				return err
			}
			cells, err := e.store.ListActive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(e.hl.Python(render.CompleteCode(cells)))
			return nil
		},
	}
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <notebook-id> <cell-type> [from] [to]",
		Short: "Diff two versions of a cell (default: the previous and the active one)",
		Args:  cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := domain.ParseCellType(args[1])
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			to, err := e.store.GetActive(ctx, args[0], ct)
			if err != nil {
				return err
			}
			fromVersion := to.Version - 1
			if len(args) >= 3 {
				if fromVersion, err = parseVersion(args[2]); err != nil {
					return err
				}
			}
			if len(args) == 4 {
				v, err := parseVersion(args[3])
				if err != nil {
					return err
				}
				if to, err = e.store.GetVersion(ctx, args[0], ct, v); err != nil {
					return err
				}
			}
			if fromVersion < 1 {
				return fmt.Errorf("%s has a single version", ct)
			}
			from, err := e.store.GetVersion(ctx, args[0], ct, fromVersion)
			if err != nil {
				return err
			}

			d := render.CellDiff(from, to)
			fmt.Println(e.hl.Diff(d.Text))
			fmt.Printf("%d added, %d removed\n", d.Added, d.Removed)
			return nil
		},
	}
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimPrefix(s, "v"))
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return v, nil
}

func newRegenerateCmd() *cobra.Command {
	var (
		feedback string
		cascade  string
	)
	cmd := &cobra.Command{
		Use:   "regenerate <notebook-id> <cell-type>",
		Short: "Regenerate one cell from the active upstream cells",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := domain.ParseCellType(args[1])
			if err != nil {
				return err
			}

			if cascade != "" {
				if cascade != "stale" && cascade != "auto" {
					return fmt.Errorf("invalid cascade policy %q", cascade)
				}
			}
			e, err := openPipelineWith(cmd.Context(), "", func(e *env) {
				if cascade != "" {
					e.cfg.Pipeline.Cascade = cascade
				}
			})
			if err != nil {
				return err
			}
			defer e.close()

			regen, err := e.coord.RegenerateCell(cmd.Context(), args[0], ct, feedback)
			if err != nil {
				return err
			}
			fmt.Printf("%s v%d\n", regen.Cell.Type, regen.Cell.Version)
			fmt.Println(e.hl.Python(regen.Cell.Code))
			for _, c := range regen.Cascaded {
				fmt.Printf("regenerated %s v%d\n", c.Type, c.Version)
			}
			if len(regen.Stale) > 0 {
				names := make([]string, len(regen.Stale))
				for i, t := range regen.Stale {
					names[i] = string(t)
				}
				fmt.Printf("stale: %s\n", strings.Join(names, ", "))
			}
			fmt.Printf("notebook %s\n", regen.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "guidance passed to the agent")
	cmd.Flags().StringVar(&cascade, "cascade", "", "downstream policy: stale or auto (default from config)")
	return cmd
}
