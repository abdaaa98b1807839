package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ekaya-inc/sensorql/pkg/app"
	"github.com/ekaya-inc/sensorql/pkg/config"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

type rootOptions struct {
	configPath string
	output     string
	verbose    bool
}

type askOptions struct {
	rowLimit int
	detail   bool
}

// errQuestionFailed signals a non-zero exit after the failure envelope was printed.
var errQuestionFailed = errors.New("question could not be answered")

func newRootCommand() *cobra.Command {
	root := &rootOptions{}
	ask := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about sensor data",
		Long: "Translates a plain-English question about devices, readings, logs and alerts " +
			"into SQL, runs it against the configured backend and prints the result.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutputFormat(root.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, ask, strings.Join(args, " "))
		},
	}

	cmd.PersistentFlags().StringVarP(&root.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	cmd.PersistentFlags().StringVarP(&root.output, "output", "o", "", "output format (table|json); defaults to table on a terminal")
	cmd.PersistentFlags().BoolVarP(&root.verbose, "verbose", "v", false, "log pipeline activity to stderr")

	cmd.Flags().IntVar(&ask.rowLimit, "row-limit", 0, "maximum rows for list questions (0 uses the configured default)")
	cmd.Flags().BoolVar(&ask.detail, "detail", false, "include the resolved intent and bound parameters")

	cmd.AddCommand(newHistoryCommand(root))
	return cmd
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var (
		limit  int
		target string
		failed bool
		stats  bool
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently asked questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.History == nil {
				return errors.New("query history is disabled (history.enabled is false)")
			}

			filters := models.QueryHistoryFilters{Limit: limit, Target: target, OnlyFailed: failed}
			if since > 0 {
				from := time.Now().Add(-since)
				filters.Since = &from
			}
			out := cmd.OutOrStdout()

			if stats {
				summary, err := a.History.Stats(cmd.Context(), filters.Since)
				if err != nil {
					return err
				}
				if outputFormat(root.output, out) == "json" {
					return writeJSON(out, summary)
				}
				fmt.Fprint(out, renderHistoryStats(summary))
				return nil
			}

			entries, total, err := a.History.List(cmd.Context(), filters)
			if err != nil {
				return err
			}

			if outputFormat(root.output, out) == "json" {
				return writeJSON(out, map[string]any{"entries": entries, "total": total})
			}
			fmt.Fprint(out, renderHistory(entries, total))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	cmd.Flags().StringVar(&target, "target", "", "only questions about this table")
	cmd.Flags().BoolVar(&failed, "failed", false, "only questions that failed")
	cmd.Flags().BoolVar(&stats, "stats", false, "summarize outcomes per table instead of listing questions")
	cmd.Flags().DurationVar(&since, "since", 0, "only questions asked within this duration, e.g. 24h")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootOptions, opts *askOptions, question string) error {
	if opts.rowLimit < 0 {
		return fmt.Errorf("--row-limit must not be negative")
	}

	a, err := openApp(cmd, root)
	if err != nil {
		return err
	}
	defer a.Close()

	env := a.Queries.ProcessQuestion(cmd.Context(), question, models.QueryOptions{
		JSONOutput: opts.detail,
		RowLimit:   opts.rowLimit,
	})

	out := cmd.OutOrStdout()
	if outputFormat(root.output, out) == "json" {
		if err := writeJSON(out, env); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, renderEnvelope(env))
	}

	if !env.Success {
		return errQuestionFailed
	}
	return nil
}

func openApp(cmd *cobra.Command, root *rootOptions) (*app.App, error) {
	cfg, err := config.Load(root.configPath, Version)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if root.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}
	return app.New(cmd.Context(), cfg, logger)
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// outputFormat resolves an empty --output: table for terminals, json for pipes.
func outputFormat(output string, w io.Writer) string {
	if output != "" {
		return output
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "table"
	}
	return "json"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
