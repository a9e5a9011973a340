package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/solatis/oasconform/internal/rules"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with business rule files",
}

var rulesEvalCmd = &cobra.Command{
	Use:   "eval <document.json|->",
	Short: "Evaluate a rules file against a JSON document and print the results",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesEval,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesEvalCmd)
	rulesEvalCmd.Flags().StringP("rules-file", "r", "", "rules file (YAML or JSON)")
	_ = rulesEvalCmd.MarkFlagRequired("rules-file")
}

func runRulesEval(cmd *cobra.Command, args []string) error {
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("rules-file")
	ruleSet, err := rules.LoadFile(path)
	if err != nil {
		return err
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	results, err := rules.NewEngine(logger).EvaluateJSON(data, ruleSet)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
