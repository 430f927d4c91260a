package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgienger/checker/internal/mirror"
	"github.com/tgienger/checker/internal/models"
	"github.com/tgienger/checker/internal/repository"
)

var projectCustomer string

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	Short:   "Manage a customer's projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add --customer ID NAME",
	Short: "Create a project and print its id",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectListCmd = &cobra.Command{
	Use:     "list --customer ID",
	Aliases: []string{"ls"},
	Short:   "List a customer's projects, newest first",
	Args:    cobra.NoArgs,
	RunE:    runProjectList,
}

var projectRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a project and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectRm,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectAddCmd, projectListCmd, projectRmCmd)

	for _, cmd := range []*cobra.Command{projectAddCmd, projectListCmd} {
		cmd.Flags().StringVar(&projectCustomer, "customer", "", "customer id")
		_ = cmd.MarkFlagRequired("customer")
	}
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	if err := requireName("project name", args[0]); err != nil {
		return err
	}
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	customer, err := e.findCustomer(cmd.Context(), projectCustomer)
	if err != nil {
		return err
	}
	id, err := e.repo.CreateProject(cmd.Context(), args[0], customer)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	projects, err := mirror.Load(cmd.Context(), e.store, mirror.DecodeProject, mirror.ProjectParams(projectCustomer), e.mirrorOptions()...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects found.")
		return nil
	}
	fmt.Fprint(out, formatProjectTable(projects))
	return nil
}

func formatProjectTable(projects []models.Project) string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		created := p.CreatedAt.Local().Format("2006-01-02 15:04")
		if p.Deleting {
			created = "deleting"
		}
		rows = append(rows, []string{p.ID, cell(p.Name), cell(p.ClientNameSnapshot), created})
	}
	return formatTable([]string{"ID", "NAME", "CLIENT", "CREATED"}, rows)
}

func runProjectRm(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireTeamLead(e, "delete projects"); err != nil {
		return err
	}

	err = e.repo.DeleteProject(cmd.Context(), args[0])
	var cascade *repository.CascadeError
	if errors.As(err, &cascade) {
		for _, id := range cascade.Survivors {
			fmt.Fprintf(cmd.ErrOrStderr(), "orphaned task %s\n", id)
		}
		return fmt.Errorf("%w; run 'checker doctor --fix' to clean up", err)
	}
	return err
}
