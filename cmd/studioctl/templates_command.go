package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aura-webinar/videocreator/internal/templates"
)

func newTemplatesCommand(_ *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in looks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Key", "Name", "Effects", "Overlays"},
				buildTemplateRows(templates.NewRegistry().All()),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func buildTemplateRows(list []templates.Template) [][]string {
	rows := make([][]string, 0, len(list))
	for _, t := range list {
		var fx []string
		if t.Effects.Vignette {
			fx = append(fx, "vignette")
		}
		if t.Effects.Grain {
			fx = append(fx, "grain")
		}
		if t.Effects.Scanlines {
			fx = append(fx, "scanlines")
		}
		if t.Effects.ChromaticAberration {
			fx = append(fx, "chromatic")
		}
		effects := strings.Join(fx, ", ")
		if effects == "" {
			effects = "-"
		}
		rows = append(rows, []string{t.Key, t.DisplayName, effects, fmt.Sprint(len(t.TextLayout))})
	}
	return rows
}
