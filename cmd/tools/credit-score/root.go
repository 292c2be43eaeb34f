package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"credit-prediction/internal/common/config"
	httpclient "credit-prediction/internal/common/http"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/store"
)

type rootOptions struct {
	configPath   string
	artifactsDir string
	verbose      bool
	server       string
	timeout      time.Duration
}

// newRootCmd builds the command tree. Subcommands score offline against the
// artifact files unless --server points predict and batch at a running server.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "credit-score",
		Short:         "Score credit records with the exported pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (defaults are used when empty)")
	root.PersistentFlags().StringVar(&opts.artifactsDir, "artifacts", "", "artifact directory, overrides the config")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline loading")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "base URL of a prediction server to score against instead of local artifacts")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout in --server mode")

	root.AddCommand(newSchemaCmd(opts), newPredictCmd(opts), newBatchCmd(opts), newTasksCmd())
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.artifactsDir != "" {
		cfg.Artifacts.Dir = o.artifactsDir
	}
	return cfg, nil
}

func (o *rootOptions) loadStore(ctx context.Context, cfg *config.Config) *store.Store {
	log := logger.NewNoOpLogger()
	if o.verbose {
		log = logger.NewStructured("debug", "console")
	}
	return store.Load(ctx, store.SourcesFrom(cfg.Artifacts), log)
}

// remote returns a client for --server, or nil when scoring locally.
func (o *rootOptions) remote() *httpclient.Client {
	if o.server == "" {
		return nil
	}
	return httpclient.NewClient(o.server, o.timeout)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
