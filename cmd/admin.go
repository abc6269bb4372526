package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/config"
	"github.com/sells-group/claims-cli/internal/corpus"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/report"
)

// -- documents --

var documentsCmd = &cobra.Command{
	Use:   "documents <event>",
	Short: "List the source PDFs and text artifacts of an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l := layoutFromConfig(cfg.Paths)
		listing, err := l.ListAt(eventRoot(l, args[0]))
		if err != nil {
			return eris.Wrap(err, "documents")
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(listing)
		}
		groups := []struct {
			title string
			names []string
		}{
			{"sensitive PDFs", listing.SensitivePDF},
			{"general PDFs", listing.GeneralPDF},
			{"raw OCR", listing.Raw},
			{"redacted", listing.Redacted},
			{"general text", listing.General},
		}
		for _, g := range groups {
			fmt.Printf("%s (%d)\n", g.title, len(g.names))
			for _, n := range g.names {
				fmt.Printf("  %s\n", n)
			}
		}
		if listing.Analysis != "" {
			fmt.Printf("analysis: %s\n", listing.Analysis)
		}
		return nil
	},
}

// -- compare --

var compareCmd = &cobra.Command{
	Use:   "compare <event-id> <filename>",
	Short: "Show what redaction changed in one document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmp, err := corpus.New(layoutFromConfig(cfg.Paths)).Compare(args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "compare")
		}
		formatComparison(os.Stdout, cmp)
		return nil
	},
}

func formatComparison(w io.Writer, c *corpus.Comparison) {
	fmt.Fprintf(w, "%s: %d changed segments\n", c.Filename, c.Changes)
	for _, s := range c.Segments {
		for _, l := range s.Raw {
			fmt.Fprintf(w, "- %s\n", strings.TrimRight(l, "\n"))
		}
		for _, l := range s.Redacted {
			fmt.Fprintf(w, "+ %s\n", strings.TrimRight(l, "\n"))
		}
	}
}

// -- status --

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index counts and indexed events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		events, err := st.ListEvents(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		formatStatus(os.Stdout, counts, events)
		return nil
	},
}

func formatStatus(w io.Writer, c *model.Counts, events []model.Event) {
	fmt.Fprintf(w, "events %d, documents %d, analyses %d, prompts %d, prompt runs %d\n",
		c.Events, c.Documents, c.Analyses, c.Prompts, c.PromptRuns)
	if len(events) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tREGISTERED")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\n", e.EventID, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush() //nolint:errcheck
}

// -- export --

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export the database index to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eventID, _ := cmd.Flags().GetString("event")
		all, _ := cmd.Flags().GetBool("all-documents")
		snap, err := report.Collect(ctx, st, report.Options{EventID: eventID, AllDocuments: all})
		if err != nil {
			return err
		}

		f, err := os.Create(args[0])
		if err != nil {
			return eris.Wrapf(err, "create %s", args[0])
		}
		if err := report.WriteXLSX(f, snap); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "close %s", args[0])
		}

		for _, sheet := range []string{report.SheetEvents, report.SheetDocuments, report.SheetAnalyses, report.SheetPrompts, report.SheetPromptRuns} {
			rows, err := report.ReadSheet(args[0], sheet)
			if err != nil {
				return err
			}
			zap.L().Info("export: sheet written", zap.String("sheet", sheet), zap.Int("rows", max(len(rows)-1, 0)))
		}
		fmt.Printf("wrote %s\n", args[0])
		return nil
	},
}

// -- migrate --

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		fmt.Printf("%s schema is up to date\n", cfg.Store.Driver)
		return nil
	},
}

// -- check --

// checkResult is one configuration diagnostic.
type checkResult struct {
	Name string
	OK   bool
	Hint string
}

// diagnose inspects the settings the pipeline depends on without contacting
// any service.
func diagnose(c *config.Config) []checkResult {
	genKey, genName := c.Anthropic.Key, "anthropic.key"
	if c.Generation.Provider == "openai" {
		genKey, genName = c.OpenAI.Key, "openai.key"
	}
	needsProcessor := c.OCR.Provider == "documentai" || c.OCR.Provider == ""
	return []checkResult{
		{"gcp.project_id", c.GCP.ProjectID != "", "set CLAIMS_GCP_PROJECT_ID"},
		{"document_ai.processor_id", !needsProcessor || c.DocumentAI.ProcessorID != "", "set CLAIMS_DOCUMENT_AI_PROCESSOR_ID"},
		{"dlp.deidentify_template", strings.HasPrefix(c.DLP.DeidentifyTemplate, "projects/"), "must start with projects/"},
		{"dlp.inspect_template", c.DLP.InspectTemplate == "" || strings.HasPrefix(c.DLP.InspectTemplate, "projects/"), "must be empty or start with projects/"},
		{genName, genKey != "", "set the generation API key"},
	}
}

func formatChecks(w io.Writer, checks []checkResult) int {
	failed := 0
	for _, ch := range checks {
		if ch.OK {
			fmt.Fprintf(w, "ok       %s\n", ch.Name)
			continue
		}
		failed++
		fmt.Fprintf(w, "MISSING  %s (%s)\n", ch.Name, ch.Hint)
	}
	return failed
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Diagnose the configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if n := formatChecks(os.Stdout, diagnose(cfg)); n > 0 {
			return eris.Errorf("check: %d settings need attention", n)
		}
		return nil
	},
}

func init() {
	documentsCmd.Flags().Bool("json", false, "print the listing as JSON")
	exportCmd.Flags().String("event", "", "export only this event")
	exportCmd.Flags().Bool("all-documents", false, "include every processing run, not only the latest")

	rootCmd.AddCommand(documentsCmd, compareCmd, statusCmd, exportCmd, migrateCmd, checkCmd)
}
