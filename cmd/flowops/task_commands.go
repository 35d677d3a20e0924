package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"flowops/internal/api"
	"flowops/internal/apiclient"
)

type taskAction func(client *apiclient.Client, ctx context.Context, releaseID, taskID, developerID string) (api.Task, error)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Move tasks through their lifecycle",
	}
	cmd.AddCommand(newTaskActionCommand(ctx, "start", "Start a task as a developer", "Started", (*apiclient.Client).StartTask))
	cmd.AddCommand(newTaskActionCommand(ctx, "complete", "Complete a task as its developer", "Completed", (*apiclient.Client).CompleteTask))
	cmd.AddCommand(newTaskActionCommand(ctx, "assign", "Assign a developer to a task without starting it", "Assigned", (*apiclient.Client).AssignDeveloper))
	return cmd
}

func newTaskActionCommand(ctx *commandContext, use, short, verb string, action taskAction) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   use + " <releaseId> <taskId> <developerId>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			releaseID, taskID, developerID := args[0], args[1], args[2]
			task, err := action(client, cmd.Context(), releaseID, taskID, developerID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.TaskResponse{ReleaseID: releaseID, Task: task})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s task %s (%s) for %s: %s\n",
				verb, task.ID, task.Title, dash(task.DeveloperID), statusLabel(task.Status))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
