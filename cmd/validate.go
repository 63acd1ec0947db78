package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/diligence-engine/internal/consistency"
	"github.com/sells-group/diligence-engine/internal/cost"
)

var (
	validateResourceID string
	validateCostID     string
	validateGeography  string
	validateApply      bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Cross-check a cost node against its resource counterpart",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.GetNode(ctx, validateResourceID)
		if err != nil {
			return err
		}
		if res == nil {
			return eris.Errorf("resource node not found: %s", validateResourceID)
		}
		costNode, err := st.GetNode(ctx, validateCostID)
		if err != nil {
			return err
		}
		if costNode == nil {
			return eris.Errorf("cost node not found: %s", validateCostID)
		}
		loadedVersion := costNode.Version

		lib, err := initLibrary()
		if err != nil {
			return err
		}
		geo := validateGeography
		if geo == "" {
			geo = cfg.Estimate.Geography
		}

		validator := consistency.NewValidator(cost.NewDeriver(lib))
		result, err := validator.Validate(res, costNode, geo)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "status: %s (variance %.1f%%)\n", result.Status, result.VariancePct)
		for _, note := range result.Notes {
			fmt.Fprintf(os.Stdout, "  - %s\n", note)
		}

		if validateApply {
			costNode.Cost.ConsistencyStatus = result.Status
			if _, err := st.SaveNode(ctx, costNode, loadedVersion); err != nil {
				return eris.Wrap(err, "save validation status")
			}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateResourceID, "resource", "", "resource node id (required)")
	validateCmd.Flags().StringVar(&validateCostID, "cost", "", "cost node id (required)")
	validateCmd.Flags().StringVar(&validateGeography, "geography", "", "rate geography (defaults to config)")
	validateCmd.Flags().BoolVar(&validateApply, "apply", false, "write the resulting status back to the cost node")
	_ = validateCmd.MarkFlagRequired("resource")
	_ = validateCmd.MarkFlagRequired("cost")
	rootCmd.AddCommand(validateCmd)
}
