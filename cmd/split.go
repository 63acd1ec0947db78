package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-engine/internal/hierarchy"
	"github.com/sells-group/diligence-engine/internal/model"
	"github.com/sells-group/diligence-engine/internal/store"
)

var splitCmd = &cobra.Command{
	Use:   "split <id>",
	Short: "Decompose a leaf node into template-based child tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		children, err := splitNode(ctx, st, args[0])
		if err != nil {
			return err
		}

		for _, child := range children {
			fmt.Fprintf(os.Stdout, "%s  %s\n", child.ID, child.DisplayName)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(splitCmd)
}

// splitNode decomposes a stored leaf into template children and persists the
// result. The parent save is version-guarded: if someone edited the node
// since it was loaded, the save fails with a conflict instead of clobbering
// their work. The parent is saved first so a conflict aborts the whole split
// before any child reaches the store; otherwise orphaned children would
// reference a parent whose stored record still looks like a leaf.
func splitNode(ctx context.Context, st store.NodeStore, id string) ([]*model.EstimateNode, error) {
	parent, err := st.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, eris.Errorf("node not found: %s", id)
	}
	loadedVersion := parent.Version

	children, err := hierarchy.GenerateChildren(parent, hierarchy.TemplateFor(parent.Workstream))
	if err != nil {
		return nil, err
	}

	if _, err := st.SaveNode(ctx, parent, loadedVersion); err != nil {
		return nil, eris.Wrapf(err, "save parent %s", parent.ID)
	}
	for _, child := range children {
		if _, err := st.SaveNode(ctx, child, 0); err != nil {
			return nil, eris.Wrapf(err, "save child %s", child.ID)
		}
	}

	zap.L().Info("node decomposed",
		zap.String("id", parent.ID),
		zap.Int("children", len(children)),
	)
	return children, nil
}
