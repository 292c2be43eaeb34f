package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"credit-prediction/internal/batch"
	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/inference"
	"credit-prediction/pkg/registry"
)

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the input columns a pipeline expects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if kind == "" {
				kind = cfg.Serving.DefaultSchemaKind
			}
			st := opts.loadStore(cmd.Context(), cfg)
			sc, err := st.Schema(kind)
			if err != nil {
				return errors.NewSchemaEmptyError("schema", kind)
			}
			return writeJSON(cmd.OutOrStdout(), sc)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "regression or classification")
	return cmd
}

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var kind, payloadArg string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score one JSON record",
		Long: `Score one record given as a flat JSON object. The record is read from
--payload, or from stdin when --payload is "-" or empty.`,
		Example: `  credit-score predict --kind regression --payload '{"Customer_Age": 45, "Gender": "M"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			raw := []byte(payloadArg)
			if payloadArg == "" || payloadArg == "-" {
				if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			var payload map[string]interface{}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&payload); err != nil {
				return errors.NewInvalidPayloadError("predict", fmt.Sprintf("payload: %v", err))
			}

			if client := opts.remote(); client != nil {
				raw, err := client.Predict(cmd.Context(), kind, payload)
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := json.Indent(&buf, raw, "", "  "); err != nil {
					return err
				}
				buf.WriteByte('\n')
				_, err = buf.WriteTo(cmd.OutOrStdout())
				return err
			}

			engine := inference.NewEngine(opts.loadStore(cmd.Context(), cfg))
			res, err := engine.Predict(cmd.Context(), kind, payload)
			if err != nil {
				return err
			}

			if kind == config.KindRegression {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"model_name":             res.ModelName,
					"predicted_credit_limit": res.Value,
					"runtime_ms":             res.RuntimeMS,
				})
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"model_name":     res.ModelName,
				"predicted_tier": res.Label,
				"proba":          res.Probabilities,
				"runtime_ms":     res.RuntimeMS,
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", config.KindRegression, "regression or classification")
	cmd.Flags().StringVar(&payloadArg, "payload", "", "JSON object to score")
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var mode, inPath, outPath string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Score every row of a CSV file",
		Example: `  credit-score batch --mode classification --in customers.csv --out scored.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if inPath != "" && inPath != "-" {
				f, err := os.Open(inPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			score := func(w io.Writer) (string, error) {
				if client := opts.remote(); client != nil {
					return "into " + outPath + " via " + opts.server, client.ScoreBatch(cmd.Context(), mode, in, w)
				}
				engine := batch.NewEngine(opts.loadStore(cmd.Context(), cfg), cfg.Batch)
				summary, err := engine.Score(cmd.Context(), mode, in, w)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d rows with %s into %s", summary.Rows, summary.ModelName, outPath), nil
			}

			if outPath == "" || outPath == "-" {
				_, err = score(cmd.OutOrStdout())
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			done, err := score(f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(outPath)
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "scored %s\n", done)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", config.KindRegression, "regression or classification")
	cmd.Flags().StringVar(&inPath, "in", "-", "input CSV file, - for stdin")
	cmd.Flags().StringVar(&outPath, "out", "-", "output CSV file, - for stdout")
	return cmd
}

func newTasksCmd() *cobra.Command {
	var registryPath string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the Zeebe task types the service can work",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Default()
			if registryPath != "" {
				var err error
				if reg, err = registry.LoadRegistry(registryPath); err != nil {
					return err
				}
			}
			for _, a := range reg.Activities {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %s\n", a.TaskType, a.ImplementationStatus, a.DisplayName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&registryPath, "registry", "", "activity registry JSON file (defaults to the built-in registry)")
	return cmd
}
