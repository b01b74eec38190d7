package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/zenibako/cuems-golang/cuems"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live engine status",
		Long:  "Follows the engine's status events and prints a line on every change. Only one live console may run per state directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := acquireConsoleLock(ctx.config.LockPath())
			if err != nil {
				return err
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					log.Debugf("Releasing console lock: %v", err)
				}
			}()

			rt, err := ctx.openRealtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			changed := make(chan struct{}, 1)
			detach := rt.transport.Subscribe(func(msg cuems.Message) {
				ev, ok := msg.(cuems.Event)
				if !ok || !rt.status.Apply(ev) {
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			defer detach()

			out := cmd.OutOrStdout()
			if once {
				select {
				case <-time.After(settle):
				case <-cmd.Context().Done():
				}
				fmt.Fprintln(out, formatStatus(rt.status))
				return nil
			}

			fmt.Fprintln(out, formatStatus(rt.status))
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-changed:
					fmt.Fprintln(out, formatStatus(rt.status))
				}
			}
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Print one status line and exit")
	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "How long to collect events before printing with --once")
	return cmd
}

func acquireConsoleLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire console lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another live console is already running")
	}
	return lock, nil
}

func formatStatus(s *cuems.Status) string {
	var b strings.Builder
	writeStatus(&b, s)
	return b.String()
}

func writeStatus(w io.Writer, s *cuems.Status) {
	state := "stopped"
	if s.Running.Get() {
		state = "running"
	}
	armed := "disarmed"
	if s.Armed.Get() {
		armed = "armed"
	}
	project := s.LoadedProject.Get()
	if project == "" {
		project = "-"
	}
	next := s.NextCue.Get()
	if next == "" {
		next = "-"
	}
	fmt.Fprintf(w, "%s  %-8s %-9s project=%s next=%s active=%d users=%d",
		cuems.TimecodeToSMPTE(s.Timecode.Get()), state, armed, project, next,
		len(s.CurrentCues.Get()), s.UserCount.Get())
}
