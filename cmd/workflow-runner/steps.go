package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upb/workflow-runner/models"
)

// stepsCmd lists the step catalog
var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the available steps",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSteps(cmd.OutOrStdout())
	},
}

func printSteps(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAI\tDESCRIPTION")
	for _, d := range models.StepCatalog {
		ai := "no"
		if d.AIBacked {
			ai = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, ai, d.Description)
	}
	fmt.Fprintf(tw, "\nA workflow chains %d to %d steps.\n", models.MinSteps, models.MaxSteps)
	return tw.Flush()
}
