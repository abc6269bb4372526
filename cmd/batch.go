package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/claims-cli/internal/cost"
	"github.com/sells-group/claims-cli/internal/monitoring"
	"github.com/sells-group/claims-cli/internal/pipeline"
)

var (
	batchLimit       int
	batchProcessOnly bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [event]...",
	Short: "Process and analyze many events concurrently",
	Long:  "Runs every event folder (or the named ones) through processing and analysis, with at most batch.max_concurrent_events events in flight.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "batch"
		if batchProcessOnly {
			mode = "process"
		}
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		events := args
		if len(events) == 0 {
			events, err = env.Layout.Events()
			if err != nil {
				return eris.Wrap(err, "list events")
			}
		}
		if batchLimit > 0 && len(events) > batchLimit {
			events = events[:batchLimit]
		}
		if len(events) == 0 {
			zap.L().Info("no events to process", zap.String("events_dir", env.Layout.EventsDir))
			return nil
		}

		sink := cliSink()
		collector := monitoring.NewCollector(env.Breakers)
		res := processBatch(ctx, events, cfg.Batch.MaxConcurrentEvents, func(ctx context.Context, event string) (*pipeline.Report, error) {
			var (
				rep *pipeline.Report
				err error
			)
			p := env.newProcessor(sink)
			if batchProcessOnly {
				rep, err = p.ProcessEvent(ctx, eventRoot(env.Layout, event))
			} else {
				rep, err = pipeline.NewRunner(p, env.newAnalyzer(sink), sink).Run(ctx, eventRoot(env.Layout, event))
			}
			collector.Observe(event, rep, err)
			return rep, err
		}, env.Costs)

		formatReports(os.Stdout, res.Reports)
		formatUsage(os.Stdout, res.Usage)

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(collector.Snapshot())
		for _, a := range alerts {
			zap.L().Warn("batch: alert", zap.String("type", string(a.Type)), zap.String("message", a.Message))
		}
		alerter.SendAlerts(ctx, alerts)

		if res.Failed > 0 {
			return eris.Errorf("batch: %d of %d events failed", res.Failed, len(events))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of events to process (0 = all)")
	batchCmd.Flags().BoolVar(&batchProcessOnly, "process-only", false, "skip the analysis step")
	rootCmd.AddCommand(batchCmd)
}

type eventFunc func(ctx context.Context, event string) (*pipeline.Report, error)

// batchResult aggregates the outcome of a batch.
type batchResult struct {
	Reports []*pipeline.Report
	Usage   cost.Usage
	Failed  int
}

// processBatch runs fn for every event with at most concurrency in flight.
// A failed event is logged and counted; it does not cancel the others.
func processBatch(ctx context.Context, events []string, concurrency int, fn eventFunc, costs *cost.Calculator) *batchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu  sync.Mutex
		res batchResult
	)
	reports := make([]*pipeline.Report, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, event := range events {
		g.Go(func() error {
			rep, err := fn(gctx, event)
			reports[i] = rep

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				zap.L().Error("batch: event failed", zap.String("event", event), zap.Error(err))
				return nil
			}
			if rep != nil && rep.Analysis != nil && costs != nil {
				res.Usage.Add(costs, rep.Analysis.Model, rep.Analysis.InputTokens, rep.Analysis.OutputTokens)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range reports {
		if r != nil {
			res.Reports = append(res.Reports, r)
		}
	}
	return &res
}

func formatUsage(w io.Writer, u cost.Usage) {
	if u.Calls == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d analyses, %d input / %d output tokens, $%.4f\n",
		u.Calls, u.InputTokens, u.OutputTokens, u.USD)
}
