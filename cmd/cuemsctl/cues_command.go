package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zenibako/cuems-golang/cuems"
	"github.com/zenibako/cuems-golang/messages"
)

func newCuesCommand(ctx *commandContext) *cobra.Command {
	var pick bool
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "cues <project-uuid>",
		Short: "Show the cue list of a project",
		Long:  "Loads a project and prints its cue list. With --pick-outputs each audio and video cue's outputs can be reassigned and the project saved.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			return ctx.withControl(cmd.Context(), func(s *controlSession) error {
				if _, err := s.waitForTopology(cmd.Context()); err != nil {
					if pick {
						return err
					}
					log.Warn("Output mappings unavailable, outputs shown as raw references", "error", err)
				}

				files, detachFiles := s.expect(messages.ActionFileList)
				defer detachFiles()
				if err := s.media.RequestList(cmd.Context()); err != nil {
					return err
				}
				if _, err := await(cmd.Context(), s, files, ctx.timeout()); err != nil {
					log.Warn("Media list unavailable", "error", err)
				}

				editor := cuems.NewEditor(projectID, s.projects, s.media, s.drafts)
				defer editor.Close()

				loaded := make(chan string, 1)
				s.projects.OnLoaded(func(doc cuems.Document) {
					if doc.UUID() != projectID {
						return
					}
					select {
					case loaded <- doc.Name():
					default:
					}
				})
				if err := editor.Load(cmd.Context()); err != nil {
					return err
				}
				name, err := await(cmd.Context(), s, loaded, ctx.timeout())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", name, projectID)
				fmt.Fprintln(out, renderCues(editor))

				if !pick {
					return nil
				}
				if err := pickCueOutputs(editor, s.projects.Topology()); err != nil {
					return err
				}
				if !editor.IsDirty() {
					log.Info("No changes to save")
					return nil
				}
				fmt.Fprintln(out, renderCues(editor))

				ok, err := confirm("Save the project?", "The engine stores the new output assignment", assumeYes)
				if err != nil {
					return err
				}
				if !ok {
					editor.Discard()
					log.Info("Changes discarded")
					return nil
				}

				saved := make(chan string, 1)
				s.projects.OnSaved(func(id string) {
					select {
					case saved <- id:
					default:
					}
				})
				if err := editor.Save(cmd.Context()); err != nil {
					return err
				}
				if _, err := await(cmd.Context(), s, saved, ctx.timeout()); err != nil {
					return err
				}
				log.Info("Project saved", "project", projectID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&pick, "pick-outputs", false, "Interactively reassign cue outputs and save")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Save without asking")
	return cmd
}

func pickCueOutputs(editor *cuems.Editor, topo *cuems.Topology) error {
	for _, c := range editor.Cues() {
		if !c.Type.HasMedia() {
			continue
		}
		options := topo.OptionsOf(c.Type.OutputType())
		if len(options) == 0 {
			log.Warn("No outputs available", "cue", c.Name, "type", c.Type)
			continue
		}
		labels := make([]string, len(options))
		for i, opt := range options {
			labels[i] = opt.Label
		}
		chosen, err := pickOutputs(c.Name, labels, editor.OutputLabels(c.ID))
		if err != nil {
			return err
		}
		if err := editor.SelectOutputLabels(c.ID, chosen); err != nil {
			return err
		}
	}
	return nil
}

func renderCues(editor *cuems.Editor) string {
	cues := editor.Cues()
	rows := make([][]string, 0, len(cues))
	for _, c := range cues {
		loop := strconv.Itoa(c.LoopTimes)
		if c.IsInfinite() {
			loop = "∞"
		}
		media := ""
		if c.SelectedMediaFile != nil {
			media = c.SelectedMediaFile.UnixName
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Order),
			c.Name,
			string(c.Type),
			c.Prewait,
			c.Time,
			c.Postwait,
			string(c.PostGo),
			loop,
			media,
			strings.Join(editor.OutputLabels(c.ID), ", "),
		})
	}
	return renderTable(
		[]string{"#", "Name", "Type", "Prewait", "Time", "Postwait", "Post go", "Loop", "Media", "Outputs"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
	)
}
