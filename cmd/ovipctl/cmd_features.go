package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"OVIP/internal/domain/models"
)

// featuresCmd lists the canonical feature sets.
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List the model feature sets",
	RunE:  runFeatures,
}

var featuresSet string

func init() {
	rootCmd.AddCommand(featuresCmd)
	featuresCmd.Flags().StringVar(&featuresSet, "set", "", "Only list this set (nprs1|rf11)")
}

func runFeatures(cmd *cobra.Command, _ []string) error {
	sets := models.AllFeatureSets()
	if featuresSet != "" {
		fs, err := models.ParseFeatureSet(featuresSet)
		if err != nil {
			return err
		}
		sets = []models.FeatureSet{fs}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SET\t#\tFEATURE")
	for _, s := range sets {
		for i, c := range s.Canonical() {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s, i+1, c)
		}
	}
	return w.Flush()
}
