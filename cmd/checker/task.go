package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tgienger/checker/internal/derived"
	"github.com/tgienger/checker/internal/mirror"
	"github.com/tgienger/checker/internal/models"
)

var (
	taskProject     string
	taskDescription string
	taskDeadline    string
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"tasks"},
	Short:   "Manage a project's tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add --project ID TITLE",
	Short: "Create a task and print its id",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:     "list --project ID",
	Aliases: []string{"ls"},
	Short:   "List a project's tasks, newest first",
	Args:    cobra.NoArgs,
	RunE:    runTaskList,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done ID",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskSetDone(cmd, args[0], true)
	},
}

var taskUndoCmd = &cobra.Command{
	Use:   "undo ID",
	Short: "Mark a task not done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskSetDone(cmd, args[0], false)
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRm,
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskUndoCmd, taskRmCmd)

	for _, cmd := range []*cobra.Command{taskAddCmd, taskListCmd} {
		cmd.Flags().StringVar(&taskProject, "project", "", "project id")
		_ = cmd.MarkFlagRequired("project")
	}
	taskAddCmd.Flags().StringVar(&taskDescription, "description", "", "task description (markdown)")
	taskAddCmd.Flags().StringVar(&taskDeadline, "deadline", "", "deadline as YYYY-MM-DD")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	if err := requireName("task title", args[0]); err != nil {
		return err
	}
	deadline, err := models.ParseDeadline(taskDeadline)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	project, err := e.findProject(ctx, taskProject)
	if err != nil {
		return err
	}
	customer, err := e.findCustomer(ctx, project.CustomerID)
	if err != nil {
		return err
	}

	input := models.TaskInput{Title: args[0], Description: taskDescription, Deadline: deadline}
	id, err := e.repo.CreateTask(ctx, input, customer, project.ID, []models.Project{*project})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	tasks, err := mirror.Load(cmd.Context(), e.store, mirror.DecodeTask, mirror.TaskParams(taskProject), e.mirrorOptions()...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return nil
	}
	fmt.Fprint(out, formatTaskTable(tasks, time.Now()))
	return nil
}

func formatTaskTable(tasks []models.Task, now time.Time) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		status := "open"
		switch {
		case t.IsDone:
			status = "done"
		case derived.IsOverdueAt(t.Deadline, t.IsDone, now):
			status = "overdue"
		}
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.UTC().Format(models.DeadlineLayout)
		}
		rows = append(rows, []string{t.ID, status, deadline, cell(t.Title)})
	}
	return formatTable([]string{"ID", "STATUS", "DEADLINE", "TITLE"}, rows)
}

// runTaskSetDone reads the task's current status and toggles it if it
// differs from done
func runTaskSetDone(cmd *cobra.Command, id string, done bool) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	task, err := e.findTask(cmd.Context(), id)
	if err != nil {
		return err
	}
	if task.IsDone == done {
		return nil
	}
	return e.repo.ToggleTaskDone(cmd.Context(), id, task.IsDone)
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()
	return e.repo.DeleteTask(cmd.Context(), args[0])
}
