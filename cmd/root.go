package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "imgmeta",
	Short: "Microscopy image metadata recorder",
	Long:  "Walks a directory of TIFF, QPTIFF, and CZI images, extracts embedded metadata, and writes JSON, key-path, and markdown report artifacts for each file.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
