package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// confirm asks a yes/no question. assumeYes skips the prompt.
func confirm(title, description string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to get confirmation: %w", err)
	}
	return ok, nil
}

// pickOutputs lets the operator choose outputs for one cue, starting from
// the current selection.
func pickOutputs(cueName string, labels, selected []string) ([]string, error) {
	options := make([]huh.Option[string], 0, len(labels))
	for _, label := range labels {
		opt := huh.NewOption(label, label)
		for _, s := range selected {
			if s == label {
				opt = opt.Selected(true)
				break
			}
		}
		options = append(options, opt)
	}

	chosen := append([]string(nil), selected...)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title(fmt.Sprintf("Outputs for %s", cueName)).
				Description("An empty selection falls back to the first output").
				Options(options...).
				Value(&chosen),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("failed to get output selection: %w", err)
	}
	return chosen, nil
}
