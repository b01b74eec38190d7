package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenibako/cuems-golang/cuems"
)

func newOutputsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "List the outputs of every node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withControl(cmd.Context(), func(s *controlSession) error {
				topo, err := s.waitForTopology(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderOutputs(topo))
				return nil
			})
		},
	}
}

func renderOutputs(topo *cuems.Topology) string {
	options := topo.Options()
	rows := make([][]string, 0, len(options))
	for _, opt := range options {
		rows = append(rows, []string{opt.Label, string(opt.Type), opt.Ref})
	}
	return renderTable([]string{"Output", "Type", "Reference"}, rows, nil)
}
