package cuems

import (
	"context"
	"errors"
	"math"

	"github.com/charmbracelet/log"
	"github.com/zenibako/cuems-golang/messages"
)

// Point is one corner-warp coordinate
type Point struct {
	X float32
	Y float32
}

// Commander builds show-control events and sends them one per parameter
// change, in call order.
type Commander struct {
	sender Sender
	addrs  *messages.AddressBuilder
}

// NewCommander creates a commander sending through sender. A nil builder
// uses unprefixed engine addresses.
func NewCommander(sender Sender, addrs *messages.AddressBuilder) *Commander {
	if addrs == nil {
		addrs = messages.NewAddressBuilder("")
	}
	return &Commander{sender: sender, addrs: addrs}
}

// Go fires the next cue
func (c *Commander) Go(ctx context.Context) error {
	return c.send(ctx, messages.AddrEngineGo)
}

// Stop stops playback
func (c *Commander) Stop(ctx context.Context) error {
	return c.send(ctx, messages.AddrEngineStop)
}

// Pause pauses playback
func (c *Commander) Pause(ctx context.Context) error {
	return c.send(ctx, messages.AddrEnginePause)
}

// MasterVolume sets a node's master volume (0..1)
func (c *Commander) MasterVolume(ctx context.Context, node string, volume float32) error {
	return c.send(ctx, c.addrs.MasterVolume(node), volume)
}

// NodeVolume sets the volume of one mixer channel on a node
func (c *Commander) NodeVolume(ctx context.Context, node string, channel int, volume float32) error {
	return c.send(ctx, c.addrs.NodeVolume(node, channel), volume)
}

// VideoScale sends the x and y scale of a node output as two events
func (c *Commander) VideoScale(ctx context.Context, node string, output int, x, y float32) error {
	xAddr, yAddr := c.addrs.VideoScale(node, output)
	return errors.Join(
		c.send(ctx, xAddr, x),
		c.send(ctx, yAddr, y),
	)
}

// Corner moves one corner (1-based) of a node output
func (c *Commander) Corner(ctx context.Context, node string, output, corner int, p Point) error {
	return c.send(ctx, c.addrs.VideoCorner(node, output, corner), p.X, p.Y)
}

// CornerWarp sends one event per corner; corners[0] is corner 1
func (c *Commander) CornerWarp(ctx context.Context, node string, output int, corners []Point) error {
	var errs []error
	for i, p := range corners {
		errs = append(errs, c.Corner(ctx, node, output, i+1, p))
	}
	return errors.Join(errs...)
}

func (c *Commander) send(ctx context.Context, address string, args ...any) error {
	if err := c.sender.Send(ctx, Event{Address: address, Args: args}); err != nil {
		log.Debug("Command not delivered", "address", address, "error", err)
		return err
	}
	return nil
}

// SliderToVolume converts a 0..100 fader position to a 0..1 volume
func SliderToVolume(slider float64) float32 {
	return float32(math.Max(0, math.Min(100, slider)) / 100)
}

// VolumeToSlider converts a 0..1 volume to a 0..100 fader position
func VolumeToSlider(volume float32) float64 {
	return math.Round(math.Max(0, math.Min(1, float64(volume))) * 100)
}
