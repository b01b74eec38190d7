package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zenibako/cuems-golang/cuems"
	"github.com/zenibako/cuems-golang/messages"
	"github.com/zenibako/cuems-golang/templates"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	var trash bool

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects on the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withControl(cmd.Context(), func(s *controlSession) error {
				list, err := fetchProjects(cmd.Context(), s, trash, ctx.timeout())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderProjects(list))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&trash, "trash", false, "List trashed projects instead")
	return cmd
}

func fetchProjects(ctx context.Context, s *controlSession, trash bool, timeout time.Duration) ([]cuems.ProjectSummary, error) {
	action, request := messages.ActionProjectList, s.projects.List
	if trash {
		action, request = messages.ActionProjectTrashList, s.projects.TrashList
	}
	replied, detach := s.expect(action)
	defer detach()
	if err := request(ctx); err != nil {
		return nil, err
	}
	if _, err := await(ctx, s, replied, timeout); err != nil {
		return nil, err
	}
	if trash {
		return s.projects.TrashedProjects(), nil
	}
	return s.projects.Projects(), nil
}

func renderProjects(list []cuems.ProjectSummary) string {
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{p.Name, p.UnixName, p.UUID, p.Created, p.Modified})
	}
	return renderTable(
		[]string{"Name", "Unix name", "UUID", "Created", "Modified"},
		rows,
		nil,
	)
}

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Create and manage projects",
	}
	projectCmd.AddCommand(newProjectNewCommand(ctx))
	projectCmd.AddCommand(newProjectRequestCommand(ctx, "delete", "Move a project to the trash", false,
		messages.ActionProjectDelete, (*cuems.ProjectService).Delete))
	projectCmd.AddCommand(newProjectRequestCommand(ctx, "restore", "Restore a trashed project", false,
		messages.ActionProjectRestore, (*cuems.ProjectService).Restore))
	projectCmd.AddCommand(newProjectRequestCommand(ctx, "purge", "Permanently delete a trashed project", true,
		messages.ActionProjectTrashDelete, (*cuems.ProjectService).PermanentDelete))
	return projectCmd
}

func newProjectNewCommand(ctx *commandContext) *cobra.Command {
	var description string
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a project from the engine's template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ok, err := confirm(
				fmt.Sprintf("Create project %q?", name),
				fmt.Sprintf("It will be stored as %s", templates.Slug(name)),
				assumeYes,
			)
			if err != nil {
				return err
			}
			if !ok {
				log.Info("Cancelled")
				return nil
			}

			return ctx.withControl(cmd.Context(), func(s *controlSession) error {
				if _, err := s.waitForTopology(cmd.Context()); err != nil {
					return err
				}

				created := make(chan string, 1)
				s.projects.OnCreated(func(id string) {
					select {
					case created <- id:
					default:
					}
				})
				if _, err := s.projects.Create(cmd.Context(), name, description); err != nil {
					return err
				}
				id, err := await(cmd.Context(), s, created, ctx.timeout())
				if err != nil {
					return err
				}
				if id == "" {
					return errors.New("engine did not create the project")
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Project description")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newProjectRequestCommand(
	ctx *commandContext,
	use, short string,
	destructive bool,
	action messages.Action,
	send func(*cuems.ProjectService, context.Context, string) error,
) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   use + " <project-uuid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if destructive {
				ok, err := confirm(fmt.Sprintf("Permanently delete %s?", id), "This cannot be undone", assumeYes)
				if err != nil {
					return err
				}
				if !ok {
					log.Info("Cancelled")
					return nil
				}
			}
			return ctx.withControl(cmd.Context(), func(s *controlSession) error {
				replied, detach := s.expect(action)
				defer detach()
				if err := send(s.projects, cmd.Context(), id); err != nil {
					return err
				}
				_, err := await(cmd.Context(), s, replied, ctx.timeout())
				return err
			})
		},
	}
	if destructive {
		cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	}
	return cmd
}

func (c *commandContext) withControl(ctx context.Context, fn func(*controlSession) error) error {
	s, err := c.openControl(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
