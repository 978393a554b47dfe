package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/comparables"
	"github.com/sells-group/listing-intel/internal/config"
)

var comparablesCmd = &cobra.Command{
	Use:   "comparables",
	Short: "Manage comparable-market price data",
}

var comparablesLoadCmd = &cobra.Command{
	Use:   "load <seed.yaml>",
	Short: "Load comparable prices from a YAML seed file into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := loadComparables(cmd.Context(), cfg.Comparables, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d comparables\n", n)
		return nil
	},
}

// loadComparables upserts the records of a seed file into the postgres or
// sqlite store selected by cc.
func loadComparables(ctx context.Context, cc config.ComparablesConfig, path string) (int64, error) {
	records, err := comparables.LoadSeedFile(path)
	if err != nil {
		return 0, err
	}

	st, err := comparables.OpenStore(ctx, cc)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := st.Close(); err != nil {
			zap.L().Warn("close comparables store", zap.Error(err))
		}
	}()

	n, err := st.Upsert(ctx, records)
	if err != nil {
		return 0, eris.Wrap(err, "upsert comparables")
	}
	zap.L().Info("comparables loaded",
		zap.String("file", path),
		zap.String("driver", cc.Driver),
		zap.Int64("rows", n),
	)
	return n, nil
}

func init() {
	comparablesCmd.AddCommand(comparablesLoadCmd)
	rootCmd.AddCommand(comparablesCmd)
}
