package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/analysis"
	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/pipeline"
	"github.com/sells-group/claims-cli/internal/sweep"
)

// eventRoot resolves an argument to an event folder. Bare names are looked
// up under the events directory; anything else is used as a path.
func eventRoot(l layout.Layout, arg string) string {
	if filepath.Base(arg) == arg {
		return l.EventRoot(arg)
	}
	return arg
}

// -- process --

var processCmd = &cobra.Command{
	Use:   "process <event>...",
	Short: "OCR and redact the documents of one or more events",
	Long:  "Sweeps the sensitive folder (OCR, raw snapshot, redaction) and then the general folder (OCR) of each event. Arguments are event folder names or paths.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		p := env.newProcessor(cliSink())
		var failed int
		for _, arg := range args {
			rep, err := p.ProcessEvent(ctx, eventRoot(env.Layout, arg))
			if err != nil {
				return eris.Wrapf(err, "process %s", arg)
			}
			failed += rep.Failed()
		}
		if failed > 0 {
			zap.L().Warn("some documents failed", zap.Int("failed", failed))
		}
		return nil
	},
}

// -- analyze --

var analyzeCmd = &cobra.Command{
	Use:   "analyze <event-id>...",
	Short: "Summarize the processed documents of one or more events",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		a := env.newAnalyzer(cliSink())
		for _, id := range args {
			out, err := a.AnalyzeEvent(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "analyze %s", id)
			}
			if out != nil {
				formatOutcome(os.Stdout, out)
			}
		}
		return nil
	},
}

// -- run --

var runCmd = &cobra.Command{
	Use:   "run <event>",
	Short: "Process and then analyze one event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		sink := cliSink()
		runner := pipeline.NewRunner(env.newProcessor(sink), env.newAnalyzer(sink), sink)
		rep, err := runner.Run(ctx, eventRoot(env.Layout, args[0]))
		if err != nil {
			return eris.Wrapf(err, "run %s", args[0])
		}
		formatReports(os.Stdout, []*pipeline.Report{rep})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd, analyzeCmd, runCmd)
}

func formatOutcome(w io.Writer, out *analysis.Outcome) {
	fmt.Fprintf(w, "event:     %s\n", out.EventID)
	fmt.Fprintf(w, "model:     %s\n", out.Model)
	fmt.Fprintf(w, "documents: %d\n", out.Documents)
	fmt.Fprintf(w, "tokens:    %d in / %d out\n", out.InputTokens, out.OutputTokens)
	fmt.Fprintf(w, "cost:      $%.4f\n", out.CostUSD)
	if out.Path != "" {
		fmt.Fprintf(w, "saved:     %s\n", out.Path)
	}
}

// formatReports writes one row per event report.
func formatReports(w io.Writer, reports []*pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tSTATE\tSENSITIVE\tGENERAL\tFAILED\tCOST")
	for _, r := range reports {
		cost := "-"
		if r.Analysis != nil {
			cost = fmt.Sprintf("$%.4f", r.Analysis.CostUSD)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.EventID, r.State, sweepCounts(r.Sensitive), sweepCounts(r.General), r.Failed(), cost)
	}
	tw.Flush() //nolint:errcheck
}

// sweepCounts renders succeeded/matched for one sweep.
func sweepCounts(s *sweep.Stats) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", s.Succeeded, s.Matched)
}
