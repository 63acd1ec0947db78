package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/diligence-engine/internal/hierarchy"
	"github.com/sells-group/diligence-engine/internal/model"
	"github.com/sells-group/diligence-engine/internal/store"
)

var (
	nodesWorkstream string
	nodesKind       string
	nodesLimit      int
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Inspect stored estimate nodes",
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		nodes, err := st.ListNodes(ctx, store.NodeFilter{
			Workstream: nodesWorkstream,
			Kind:       model.NodeKind(nodesKind),
			Limit:      nodesLimit,
		})
		if err != nil {
			return err
		}

		for _, n := range nodes {
			fmt.Fprintf(os.Stdout, "%s  %-8s  v%-3d  L%d  %s (%s)\n",
				n.ID, n.Kind, n.Version, n.Level, n.DisplayName, n.Workstream)
		}
		fmt.Fprintf(os.Stdout, "%d node(s)\n", len(nodes))
		return nil
	},
}

var nodesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one node as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		node, err := st.GetNode(ctx, args[0])
		if err != nil {
			return err
		}
		if node == nil {
			return eris.Errorf("node not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(node)
	},
}

var nodesTreeCmd = &cobra.Command{
	Use:   "tree <root-id>",
	Short: "Render a node's subtree with effort and cost rollups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		root, err := st.GetNode(ctx, args[0])
		if err != nil {
			return err
		}
		if root == nil {
			return eris.Errorf("node not found: %s", args[0])
		}

		flat, err := loadSubtree(cmd.Context(), st, root)
		if err != nil {
			return err
		}

		tree := hierarchy.Build(flat)
		hierarchy.Aggregate(tree)

		p := message.NewPrinter(language.English)
		for _, r := range tree.Roots {
			renderTree(os.Stdout, p, r, 0)
		}
		return nil
	},
}

func init() {
	nodesListCmd.Flags().StringVar(&nodesWorkstream, "workstream", "", "filter by workstream")
	nodesListCmd.Flags().StringVar(&nodesKind, "kind", "", "filter by kind (resource or cost)")
	nodesListCmd.Flags().IntVar(&nodesLimit, "limit", 50, "max nodes to list")
	nodesCmd.AddCommand(nodesListCmd, nodesShowCmd, nodesTreeCmd)
	rootCmd.AddCommand(nodesCmd)
}

// loadSubtree collects the root and all its descendants breadth-first.
func loadSubtree(ctx context.Context, st store.NodeStore, root *model.EstimateNode) ([]*model.EstimateNode, error) {
	flat := []*model.EstimateNode{root}
	frontier := []*model.EstimateNode{root}
	for len(frontier) > 0 {
		var next []*model.EstimateNode
		for _, parent := range frontier {
			children, err := st.ListNodes(ctx, store.NodeFilter{ParentID: parent.ID})
			if err != nil {
				return nil, err
			}
			next = append(next, children...)
		}
		flat = append(flat, next...)
		frontier = next
	}
	return flat, nil
}

func renderTree(w io.Writer, p *message.Printer, n *hierarchy.Node, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}

	line := fmt.Sprintf("%s%s [%s]", indent, n.DisplayName, n.Kind)
	switch {
	case n.Kind == model.KindResource:
		line += p.Sprintf("  %.1f PM, peak %.1f", n.TotalEffortPM(), n.PeakHeadcount())
	case n.Kind == model.KindCost && n.Cost != nil:
		line += p.Sprintf("  %s – %s (%s)",
			formatUSD(p, n.Cost.Total.Low), formatUSD(p, n.Cost.Total.High), n.Cost.ConsistencyStatus)
	}
	fmt.Fprintln(w, line)

	for _, c := range n.Children {
		renderTree(w, p, c, depth+1)
	}
}
