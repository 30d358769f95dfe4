// File: cmd/bulk.go
package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/bulk"
	"github.com/shoptalk-labs/shoptalk/internal/commerce"
	"github.com/shoptalk-labs/shoptalk/internal/config"
	"github.com/shoptalk-labs/shoptalk/internal/observability"
)

// newBulkCmd creates the `bulk` command for offline CSV order ingestion.
func newBulkCmd() *cobra.Command {
	bulkCmd := &cobra.Command{
		Use:   "bulk [file.csv]",
		Short: "Parses a bulk order CSV and reports accepted rows, errors and threats",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			path, err := homedir.Expand(args[0])
			if err != nil {
				return fmt.Errorf("expanding path: %w", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			parser := bulk.NewParser(cfg.Bulk(), logger)
			result, err := parser.Parse(string(data))
			if err != nil {
				return fmt.Errorf("rejected: %w", err)
			}

			if viper.GetBool("resolve") {
				if err := resolveRows(cmd, cfg, result, logger); err != nil {
					return err
				}
			}

			out := jsoniter.ConfigCompatibleWithStandardLibrary
			encoded, err := out.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

			logger.Info("Bulk parse finished",
				zap.Int("total", result.Summary.TotalRows),
				zap.Int("valid", result.Summary.ValidRows),
				zap.Int("errors", result.Summary.ErrorRows),
				zap.Int("threats", len(result.Threats)))
			return nil
		},
	}

	bulkCmd.Flags().Bool("resolve", false, "resolve accepted rows against the product catalog")
	return bulkCmd
}

// resolveRows checks each accepted row against the catalog and prints
// per-batch progress to stderr so large files stay observable.
func resolveRows(cmd *cobra.Command, cfg config.Interface, result *schemas.CSVParseResult, logger *zap.Logger) error {
	client := commerce.NewHTTPClient(cfg.Commerce(), logger)
	cache := bulk.NewProductCache(cfg.Bulk().CacheCapacity, cfg.Bulk().CacheTTL)
	processor := bulk.NewProcessor(cfg.Bulk(), client, cache, logger)

	resolved, err := processor.Resolve(cmd.Context(), result.Rows, func(p bulk.Progress) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d/%d (%.0f%%)\n", p.Phase, p.Completed, p.Total, p.Percent)
	})
	if err != nil {
		return fmt.Errorf("resolving rows: %w", err)
	}

	unavailable := 0
	for _, r := range resolved {
		if r.Error != "" {
			unavailable++
		}
	}
	logger.Info("Catalog resolution finished",
		zap.Int("resolved", len(resolved)-unavailable),
		zap.Int("unresolved", unavailable))
	return nil
}
