package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docbuddy/src/core/evaluation"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score retrieval against a labelled query set",
	Long: `Evaluate reads a JSON lines file of {"query", "golden_sources"} cases,
searches the store for every query and reports how many golden sources were
retrieved in the top k hits.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringP("evaluate", "e", "", "Evaluation JSON lines file path")
	evaluateCmd.MarkFlagRequired("evaluate")
	evaluateCmd.Flags().String("store", "", "vector store path (default rag.default_store)")
	evaluateCmd.Flags().IntP("k", "k", 0, "hits per query (default rag.top_k)")
	evaluateCmd.Flags().Bool("json", false, "print the full report as JSON")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	evaluatePath, _ := cmd.Flags().GetString("evaluate")
	store, _ := cmd.Flags().GetString("store")
	k, _ := cmd.Flags().GetInt("k")
	asJSON, _ := cmd.Flags().GetBool("json")

	if store == "" {
		store = viper.GetString("rag.default_store")
	}
	if k <= 0 {
		k = viper.GetInt("rag.top_k")
	}

	f, err := os.Open(evaluatePath)
	if err != nil {
		return fmt.Errorf("failed to open evaluation file: %w", err)
	}
	defer f.Close()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := evaluation.Evaluate(cmd.Context(), f, a.search, store, k)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Evaluation Results:\n")
	fmt.Fprintf(out, "Total evaluations: %d\n", report.Cases)
	fmt.Fprintf(out, "Average score: %.2f%%\n", report.AverageScore*100)
	fmt.Fprintf(out, "MRR: %.3f\n", report.MRR)
	return nil
}
