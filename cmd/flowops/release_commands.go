package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowops/internal/api"
)

func newReleaseCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Create and inspect releases",
	}
	cmd.AddCommand(newReleaseCreateCommand(ctx))
	cmd.AddCommand(newReleaseListCommand(ctx))
	cmd.AddCommand(newReleaseShowCommand(ctx))
	cmd.AddCommand(newReleaseHotfixCommand(ctx))
	return cmd
}

func newReleaseCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		title  string
		id     string
		tasks  []string
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a release from --task flags or a YAML file",
		Long: `Create a release.

Tasks are ordered as given and may be omitted; hotfix tasks can be
added later. Each --task value is "title" or
"title|developer". With --file, the release is read from YAML:

  title: Spring release
  tasks:
    - title: Migrate schema
      developer_id: dev-1
    - title: Deploy`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := buildCreateRequest(file, id, title, tasks)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			rel, err := client.CreateRelease(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rel)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created release %s (%d tasks)\n", rel.ID, len(rel.Tasks))
			fmt.Fprintln(out, releaseTaskTable(rel))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Release title")
	cmd.Flags().StringVar(&id, "id", "", "Release id (generated when empty)")
	cmd.Flags().StringArrayVar(&tasks, "task", nil, `Task as "title" or "title|developer" (repeatable)`)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the release from a YAML file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// buildCreateRequest merges flag values over an optional YAML file.
func buildCreateRequest(file, id, title string, tasks []string) (api.CreateReleaseRequest, error) {
	var req api.CreateReleaseRequest
	if strings.TrimSpace(file) != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return req, fmt.Errorf("read release file: %w", err)
		}
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse release file %s: %w", file, err)
		}
	}
	if strings.TrimSpace(id) != "" {
		req.ID = strings.TrimSpace(id)
	}
	if strings.TrimSpace(title) != "" {
		req.Title = title
	}
	for _, raw := range tasks {
		req.Tasks = append(req.Tasks, parseTaskFlag(raw))
	}
	if strings.TrimSpace(req.Title) == "" {
		return req, fmt.Errorf("release title is required (--title or title: in --file)")
	}
	return req, nil
}

func parseTaskFlag(raw string) api.TaskInput {
	title, developer, _ := strings.Cut(raw, "|")
	return api.TaskInput{
		Title:       strings.TrimSpace(title),
		DeveloperID: strings.TrimSpace(developer),
	}
}

func newReleaseListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List releases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			rels, err := client.ListReleases(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rels)
			}
			out := cmd.OutOrStdout()
			if len(rels) == 0 {
				fmt.Fprintln(out, "No releases")
				return nil
			}
			fmt.Fprintln(out, releaseListTable(rels))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReleaseShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <releaseId>",
		Short: "Show a release and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			rel, err := client.GetRelease(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rel)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", rel.ID, rel.Title)
			fmt.Fprintf(out, "Completed: %s  Version: %d  Updated: %s\n", yesNo(rel.Completed), rel.Version, displayTime(rel.UpdatedAt))
			fmt.Fprintln(out, releaseTaskTable(rel))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReleaseHotfixCommand(ctx *commandContext) *cobra.Command {
	var (
		input  api.TaskInput
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "hotfix <releaseId>",
		Short: "Append a hotfix task to a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input.Title) == "" {
				return fmt.Errorf("--title is required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			task, err := client.AddHotfixTask(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.TaskResponse{ReleaseID: args[0], Task: task})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added hotfix task %s at position %d to release %s\n", task.ID, task.OrderIndex, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Title, "title", "", "Task title")
	cmd.Flags().StringVar(&input.Description, "description", "", "Task description")
	cmd.Flags().StringVar(&input.DeveloperID, "developer", "", "Developer to notify about the task")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
