package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/evaluation"
)

var evalJSON bool

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "print the full report as JSON")
}

var evalCmd = &cobra.Command{
	Use:   "eval <store> <dataset.json>",
	Short: "Score answers against a question dataset",
	Long: "Asks every dataset question against the store and scores the answers by cited " +
		"sources, ground truth terms and grounding coverage. Clears the store's conversation history.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataset, err := evaluation.LoadDataset(args[1])
		if err != nil {
			return err
		}

		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		evaluator := evaluation.NewEvaluator(a.Service, chat.Options{})
		report, err := evaluator.RunDatasetEvaluation(cmd.Context(), args[0], dataset)
		if err != nil {
			return err
		}

		if evalJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Print(report.String())
		return nil
	},
}
