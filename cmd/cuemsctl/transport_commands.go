package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zenibako/cuems-golang/cuems"
)

func newTransportCommands(ctx *commandContext) []*cobra.Command {
	commands := []struct {
		use, short string
		run        func(*cuems.Commander, context.Context) error
	}{
		{"go", "Fire the next cue", (*cuems.Commander).Go},
		{"stop", "Stop playback", (*cuems.Commander).Stop},
		{"pause", "Pause playback", (*cuems.Commander).Pause},
	}

	out := make([]*cobra.Command, 0, len(commands))
	for _, c := range commands {
		out = append(out, &cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withCommander(cmd.Context(), func(cmdr *cuems.Commander) error {
					if err := c.run(cmdr, cmd.Context()); err != nil {
						return err
					}
					log.Infof("Sent %s", c.use)
					return nil
				})
			},
		})
	}
	return out
}

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	volumeCmd := &cobra.Command{
		Use:   "volume",
		Short: "Set mixer volumes (0-100)",
	}

	volumeCmd.AddCommand(&cobra.Command{
		Use:   "master <node-uuid> <level>",
		Short: "Set the master volume of a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseSlider(args[1])
			if err != nil {
				return err
			}
			return ctx.withCommander(cmd.Context(), func(cmdr *cuems.Commander) error {
				return cmdr.MasterVolume(cmd.Context(), args[0], cuems.SliderToVolume(level))
			})
		},
	})

	volumeCmd.AddCommand(&cobra.Command{
		Use:   "output <node-uuid> <channel> <level>",
		Short: "Set the volume of one output channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := strconv.Atoi(args[1])
			if err != nil || channel < 0 {
				return fmt.Errorf("invalid channel %q", args[1])
			}
			level, err := parseSlider(args[2])
			if err != nil {
				return err
			}
			return ctx.withCommander(cmd.Context(), func(cmdr *cuems.Commander) error {
				return cmdr.NodeVolume(cmd.Context(), args[0], channel, cuems.SliderToVolume(level))
			})
		},
	})

	return volumeCmd
}

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Adjust video mixer outputs",
	}

	videoCmd.AddCommand(&cobra.Command{
		Use:   "scale <node-uuid> <output> <x> <y>",
		Short: "Scale a video output",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid output %q", args[1])
			}
			values, err := parseFloats(args[2:])
			if err != nil {
				return err
			}
			return ctx.withCommander(cmd.Context(), func(cmdr *cuems.Commander) error {
				return cmdr.VideoScale(cmd.Context(), args[0], output, values[0], values[1])
			})
		},
	})

	videoCmd.AddCommand(&cobra.Command{
		Use:   "warp <node-uuid> <output> <x1> <y1> <x2> <y2> <x3> <y3> <x4> <y4>",
		Short: "Set the four corner-warp points of a video output",
		Args:  cobra.ExactArgs(10),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid output %q", args[1])
			}
			values, err := parseFloats(args[2:])
			if err != nil {
				return err
			}
			corners := make([]cuems.Point, 0, 4)
			for i := 0; i < len(values); i += 2 {
				corners = append(corners, cuems.Point{X: values[i], Y: values[i+1]})
			}
			return ctx.withCommander(cmd.Context(), func(cmdr *cuems.Commander) error {
				return cmdr.CornerWarp(cmd.Context(), args[0], output, corners)
			})
		},
	})

	return videoCmd
}

func (c *commandContext) withCommander(ctx context.Context, fn func(*cuems.Commander) error) error {
	rt, err := c.openRealtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.commander)
}

func parseSlider(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("level must be a number between 0 and 100, got %q", s)
	}
	return v, nil
}

func parseFloats(args []string) ([]float32, error) {
	out := make([]float32, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = float32(v)
	}
	return out, nil
}
