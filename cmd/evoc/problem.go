package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

func newProblemCmd() *cobra.Command {
	problemCmd := &cobra.Command{
		Use:   "problem",
		Short: "Manage problem specs",
	}
	problemCmd.AddCommand(newProblemCreateCmd(), newProblemShowCmd())
	return problemCmd
}

func newProblemCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <problem.yaml>",
		Short: "Store a problem spec and create a notebook for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := domain.LoadProblemSpec(args[0])
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			if err := e.store.CreateProblem(ctx, spec); err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			nb, err := e.store.CreateNotebook(ctx, spec.ID, name)
			if err != nil {
				return err
			}

			fmt.Printf("problem  %s  %s (%s)\n", spec.ID, spec.Title, spec.Type)
			fmt.Printf("notebook %s  %s\n", nb.ID, nb.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "notebook name (default is the file name)")
	return cmd
}

func newProblemShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <notebook-id>",
		Short: "Print the problem a notebook is solving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.store.ProblemForNotebook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\ntype: %s\ndirection: %s\n", p.Title, p.Type, p.OptimizationDirection())
			if p.Description != "" {
				fmt.Printf("\n%s\n", p.Description)
			}
			for _, o := range p.Objectives {
				fmt.Printf("objective: %s\n", o)
			}
			return nil
		},
	}
}

func newNotebooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notebooks",
		Short: "List notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			nbs, err := e.store.ListNotebooks(cmd.Context())
			if err != nil {
				return err
			}
			for _, nb := range nbs {
				fmt.Printf("%s  %-10s %s  %s\n", nb.ID, nb.Status, nb.UpdatedAt.Format("2006-01-02 15:04"), nb.Name)
			}
			return nil
		},
	}
}
