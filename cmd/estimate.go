package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/diligence-engine/internal/cost"
	"github.com/sells-group/diligence-engine/internal/estimate"
	"github.com/sells-group/diligence-engine/internal/model"
	"github.com/sells-group/diligence-engine/internal/store"
)

var (
	estimateWorkstream string
	estimateInventory  string
	estimateGeography  string
	estimateBatch      string
	estimateSave       bool
	estimateNoCost     bool
)

// estimateSpec is one estimation job: a workstream plus its inventory.
// Single-run mode fills it from flags; batch mode reads a list from a file.
type estimateSpec struct {
	Workstream string                   `json:"workstream" yaml:"workstream"`
	Geography  string                   `json:"geography,omitempty" yaml:"geography,omitempty"`
	Items      []estimate.InventoryItem `json:"items" yaml:"items"`
	NonLabor   *model.Range             `json:"non_labor,omitempty" yaml:"non_labor,omitempty"`
}

// estimateResult pairs the produced nodes for output.
type estimateResult struct {
	Resource *model.EstimateNode `json:"resource"`
	Cost     *model.EstimateNode `json:"cost,omitempty"`
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate resources and costs for one or more workstreams",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lib, err := initLibrary()
		if err != nil {
			return err
		}
		engine := estimate.NewEngine(lib)
		deriver := cost.NewDeriver(lib)

		var st store.NodeStore
		if estimateSave {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
		}

		if estimateBatch != "" {
			specs, err := loadBatchSpecs(estimateBatch)
			if err != nil {
				return err
			}
			return runEstimateBatch(ctx, specs, engine, deriver, st)
		}

		if estimateWorkstream == "" {
			return eris.New("either --workstream or --batch is required")
		}
		spec := estimateSpec{Workstream: estimateWorkstream}
		if estimateInventory != "" {
			items, err := loadInventory(estimateInventory)
			if err != nil {
				return err
			}
			spec.Items = items
		}

		result, err := runEstimate(ctx, spec, engine, deriver, st)
		if err != nil {
			return err
		}
		printSummary(result)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateWorkstream, "workstream", "", "workstream to estimate (e.g. application_migration)")
	estimateCmd.Flags().StringVar(&estimateInventory, "inventory", "", "inventory file (yaml or json)")
	estimateCmd.Flags().StringVar(&estimateGeography, "geography", "", "rate geography (defaults to config)")
	estimateCmd.Flags().StringVar(&estimateBatch, "batch", "", "batch file listing multiple estimate specs")
	estimateCmd.Flags().BoolVar(&estimateSave, "save", false, "persist the produced nodes")
	estimateCmd.Flags().BoolVar(&estimateNoCost, "no-cost", false, "skip cost derivation")
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(ctx context.Context, spec estimateSpec, engine *estimate.Engine, deriver *cost.Deriver, st store.NodeStore) (*estimateResult, error) {
	res, err := engine.CalculateResource(spec.Workstream, spec.Items, cfg.Estimate.Factors)
	if err != nil {
		return nil, err
	}

	result := &estimateResult{Resource: res}
	if !estimateNoCost {
		geo := spec.Geography
		if geo == "" {
			geo = estimateGeography
		}
		if geo == "" {
			geo = cfg.Estimate.Geography
		}
		costNode, err := deriver.DeriveCost(res, geo, spec.NonLabor)
		if err != nil {
			return nil, err
		}
		result.Cost = costNode
	}

	if st != nil {
		if _, err := st.SaveNode(ctx, result.Resource, 0); err != nil {
			return nil, err
		}
		if result.Cost != nil {
			if _, err := st.SaveNode(ctx, result.Cost, 0); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func runEstimateBatch(ctx context.Context, specs []estimateSpec, engine *estimate.Engine, deriver *cost.Deriver, st store.NodeStore) error {
	if len(specs) == 0 {
		zap.L().Info("batch file contains no estimate specs")
		return nil
	}

	zap.L().Info("processing estimate batch",
		zap.Int("specs", len(specs)),
		zap.Int("concurrency", cfg.Batch.MaxConcurrentEstimates),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Batch.MaxConcurrentEstimates)

	var succeeded, failed atomic.Int64
	results := make([]*estimateResult, len(specs))

	for i, spec := range specs {
		g.Go(func() error {
			log := zap.L().With(zap.String("workstream", spec.Workstream))

			result, err := runEstimate(gctx, spec, engine, deriver, st)
			if err != nil {
				failed.Add(1)
				log.Error("estimate failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			results[i] = result
			log.Info("estimate complete",
				zap.Float64("effort_pm", result.Resource.TotalEffortPM()),
				zap.Float64("peak_headcount", result.Resource.PeakHeadcount()),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch estimation")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	var out []*estimateResult
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printSummary writes a one-glance summary line per node to stderr so the
// JSON on stdout stays machine-readable.
func printSummary(result *estimateResult) {
	p := message.NewPrinter(language.English)
	res := result.Resource

	p.Fprintf(os.Stderr, "%s: %.1f person-months, peak headcount %.1f, confidence %.0f%%\n",
		res.DisplayName, res.TotalEffortPM(), res.PeakHeadcount(), res.Resource.Confidence*100)

	if result.Cost != nil && result.Cost.Cost != nil {
		c := result.Cost.Cost
		p.Fprintf(os.Stderr, "estimated cost: %s – %s", formatUSD(p, c.Total.Low), formatUSD(p, c.Total.High))
		if c.BlendedRate != nil {
			p.Fprintf(os.Stderr, " (blended rate %s/PM)", formatUSD(p, c.BlendedRate.Mid()))
		}
		p.Fprintf(os.Stderr, "\n")
	}
}

// formatUSD renders a dollar amount with thousands grouping.
func formatUSD(p *message.Printer, v float64) string {
	return p.Sprintf("$%.0f", v)
}

func loadInventory(path string) ([]estimate.InventoryItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read inventory file %s", path)
	}

	// Accept either a bare item list or a full spec with an items key.
	var spec estimateSpec
	if err := unmarshalByExt(path, data, &spec); err == nil && len(spec.Items) > 0 {
		return spec.Items, nil
	}
	var items []estimate.InventoryItem
	if err := unmarshalByExt(path, data, &items); err != nil {
		return nil, eris.Wrapf(err, "parse inventory file %s", path)
	}
	return items, nil
}

func loadBatchSpecs(path string) ([]estimateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch file %s", path)
	}

	var wrapper struct {
		Estimates []estimateSpec `json:"estimates" yaml:"estimates"`
	}
	if err := unmarshalByExt(path, data, &wrapper); err == nil && len(wrapper.Estimates) > 0 {
		return wrapper.Estimates, nil
	}
	var specs []estimateSpec
	if err := unmarshalByExt(path, data, &specs); err != nil {
		return nil, eris.Wrapf(err, "parse batch file %s", path)
	}
	return specs, nil
}

func unmarshalByExt(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Unmarshal(data, v)
	default:
		return yaml.Unmarshal(data, v)
	}
}
