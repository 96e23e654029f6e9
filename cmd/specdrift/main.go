package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/config"
	"github.com/robinmordasiewicz/specdrift/document"
	"github.com/robinmordasiewicz/specdrift/i18n"
	"github.com/robinmordasiewicz/specdrift/pipeline"
	"github.com/robinmordasiewicz/specdrift/report"
	"github.com/robinmordasiewicz/specdrift/schema"
)

// Version is set at build time via ldflags.
var version = "dev"

var (
	configPath string
	verbose    bool
	lang       string

	baseURL    string
	outPath    string
	reportPath string
	outFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "specdrift",
	Short:        "Reconcile an OpenAPI document with the live API it describes",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		i18n.SetLanguage(lang)
	},
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [openapi.yaml]",
	Short: "Check that a document loads and its references resolve",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	m, err := schema.Load(raw, schema.Options{UnrollDepth: cfg.UnrollDepth})
	if err != nil {
		printIssues(cmd.ErrOrStderr(), err)
		return fmt.Errorf("%s: invalid document", args[0])
	}
	out := cmd.OutOrStdout()
	for _, w := range m.Diag().Warnings() {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	fmt.Fprintf(out, "%s: OpenAPI %s, %d operations, %d schemas\n", args[0], m.Version(), len(m.Operations()), len(m.AllPaths()))
	return nil
}

func printIssues(w io.Writer, err error) {
	iss, ok := specdrift.AsIssues(err)
	if !ok {
		fmt.Fprintf(w, "  %v\n", err)
		return
	}
	for i, is := range iss {
		fmt.Fprintf(w, "  %d. [%s] %s: %s\n", i+1, is.Code, i18n.T(is.Code), is.Message)
		if is.Path != "" {
			fmt.Fprintf(w, "     at: %s\n", is.Path)
		}
	}
}

// --- plan ---

var planCmd = &cobra.Command{
	Use:   "plan [openapi.yaml]",
	Short: "List the constraints and probes a reconcile run would use, without network access",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	prep, err := pipeline.Prepare(raw, cfg, slog.Default())
	if err != nil {
		printIssues(cmd.ErrOrStderr(), err)
		return fmt.Errorf("%s: invalid document", args[0])
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONSTRAINT\tDECLARED\tCONTEXT\tPROBES")
	for _, s := range prep.Sets {
		probes := fmt.Sprint(len(s.Probes))
		if s.Static() {
			probes = "static: " + s.Contradiction
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", s.Descriptor.Key, s.Descriptor.Declared, s.Descriptor.Context, probes)
	}
	for _, d := range prep.Plan.Descriptors {
		if !d.Context.Location.Probeable() {
			fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", d.Key, d.Declared, d.Context, "not probed")
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, s := range prep.Plan.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", s.Operation, s.Err)
	}
	return nil
}

// --- reconcile ---

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [openapi.yaml]",
	Short: "Probe the live API and write the corrected document",
	Args:  cobra.ExactArgs(1),
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := pipeline.Run(ctx, raw, cfg, pipeline.Deps{Logger: slog.Default(), Source: args[0]})
	if err != nil {
		var mse *specdrift.MalformedSpecError
		if errors.As(err, &mse) {
			printIssues(cmd.ErrOrStderr(), err)
		}
		if res == nil {
			return err
		}
		slog.Error("run finished with errors", slog.Any("error", err))
	}

	var out []byte
	if outFormat != "" {
		f, err := document.ParseFormat(outFormat)
		if err != nil {
			return err
		}
		out, err = res.Document.SerializeAs(f)
		if err != nil {
			return err
		}
	} else if out, err = res.Document.Serialize(); err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), outPath, out); err != nil {
		return err
	}

	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := res.Report.WriteJSON(f); err != nil {
			return err
		}
	}
	printSummary(cmd.ErrOrStderr(), res.Report)
	return nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printSummary(w io.Writer, rep *report.Report) {
	s := rep.Summary()
	for i, st := range []report.Status{report.StatusConfirmed, report.StatusCorrected, report.StatusReview, report.StatusNotEvaluated} {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%s %d", i18n.T(string(st)), s[st])
	}
	fmt.Fprintln(w)
	for rec := range rep.All() {
		if rec.Status == report.StatusCorrected || rec.Status == report.StatusReview {
			fmt.Fprintf(w, "  %-9s %s#%s: %v -> %v (%s, confidence %.2f)\n",
				i18n.T(string(rec.Status)), rec.Path, rec.Kind, rec.Declared, rec.Observed, rec.Verdict, rec.Confidence)
		}
	}
}

// --- report-schema ---

var reportSchemaCmd = &cobra.Command{
	Use:   "report-schema",
	Short: "Print the JSON Schema of the reconciliation report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := report.RecordJSONSchema()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "specdrift %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every probe")
	rootCmd.PersistentFlags().StringVar(&lang, "lang", "en", "Message language (en, ja)")

	reconcileCmd.Flags().StringVar(&baseURL, "base-url", "", "Live API base URL (overrides config and "+config.EnvBaseURL+")")
	reconcileCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the reconciled document here instead of stdout")
	reconcileCmd.Flags().StringVar(&reportPath, "report", "", "Write the JSON report to this path")
	reconcileCmd.Flags().StringVar(&outFormat, "format", "", "Output format: json or yaml (default: same as input)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(reportSchemaCmd)
	rootCmd.AddCommand(versionCmd)
}
