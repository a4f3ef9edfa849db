package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/docstore"
)

var docstoreCmd = &cobra.Command{
	Use:   "docstore",
	Short: "Manage data source, pipeline and dictionary definitions",
}

var docstoreImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import definitions from a YAML file",
	Long: `Import folders, data sources, pipelines and dictionaries into the doc store.
Existing documents with the same uuid are replaced.

Example:
  fedsearch docstore import -f defs.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		cfg, env, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(env, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		f, err := os.Open(filepath.Clean(file))
		if err != nil {
			return fmt.Errorf("open %s: %w", file, err)
		}
		defer f.Close()

		defs, err := docstore.Decode(f)
		if err != nil {
			return err
		}

		docs, err := openDocStore(cfg, logger)
		if err != nil {
			return err
		}
		defer docs.Close()

		st, err := docs.Import(cmd.Context(), defs)
		if err != nil {
			return err
		}
		logger.Info("Import finished",
			zap.Int("folders", st.Folders),
			zap.Int("data_sources", st.DataSources),
			zap.Int("pipelines", st.Pipelines),
			zap.Int("dictionaries", st.Dictionaries),
		)
		return nil
	},
}

func init() {
	docstoreImportCmd.Flags().StringP("file", "f", "", "YAML definitions file")
}
