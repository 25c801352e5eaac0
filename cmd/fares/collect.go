package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alex-user-go/fares/internal/app"
	"github.com/alex-user-go/fares/internal/handler"
	"github.com/alex-user-go/fares/internal/obs"
	"github.com/alex-user-go/fares/internal/search"
	"github.com/alex-user-go/fares/internal/search/types"
)

var (
	collectFrom  string
	collectTo    string
	collectDate  string
	collectCabin string
	collectLimit int
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one fare collection and print the fused flights",
	Example: `  fares collect --from DEL --to BLR --date 2025-12-17
  fares collect --from DEL --to BOM --date 2025-12-20 --cabin business --limit 10`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectFrom, "from", "", "Origin airport code (required)")
	collectCmd.Flags().StringVar(&collectTo, "to", "", "Destination airport code (required)")
	collectCmd.Flags().StringVar(&collectDate, "date", "", "Journey date, YYYY-MM-DD (required)")
	collectCmd.Flags().StringVar(&collectCabin, "cabin", "", "Cabin class (economy, premium economy, business, first)")
	collectCmd.Flags().IntVar(&collectLimit, "limit", 20, "Maximum flights to print, 0 for all")
	_ = collectCmd.MarkFlagRequired("from")
	_ = collectCmd.MarkFlagRequired("to")
	_ = collectCmd.MarkFlagRequired("date")
}

func runCollect(cmd *cobra.Command, args []string) error {
	q, err := handler.NewQuery(collectFrom, collectTo, collectDate, collectCabin)
	if err != nil {
		return err
	}

	// Logs go to stderr so the tables stay readable.
	logCfg := cfg.Log
	logCfg.Format = "text"
	if logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	logger := app.NewLogger(logCfg, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, cleanup, err := app.NewPipeline(ctx, cfg, obs.NewMetrics(logger), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Collecting fares for %s from %d sources...", q, p.Sources()))
	start := time.Now()
	bundle, err := p.Run(ctx, q)
	if bundle == nil {
		if spinner != nil {
			spinner.Fail("Collection interrupted")
		}
		return err
	}
	if spinner != nil {
		spinner.Success(fmt.Sprintf("Collected %d flights in %s", bundle.Len(), time.Since(start).Round(time.Millisecond)))
	}

	pterm.Println()
	pterm.DefaultSection.Println("Sources")
	if rerr := pterm.DefaultTable.WithHasHeader().WithData(sourceRows(bundle.Runs())).Render(); rerr != nil {
		return errors.Wrap(rerr, "render sources table")
	}

	if bundle.Len() > 0 {
		pterm.DefaultSection.Println("Flights")
		if rerr := pterm.DefaultTable.WithHasHeader().WithData(flightRows(bundle, collectLimit)).Render(); rerr != nil {
			return errors.Wrap(rerr, "render flights table")
		}
		printSummary(bundle)
	}

	switch {
	case errors.Is(err, search.ErrAllSourcesFailed):
		return err
	case bundle.Outcome() == types.OutcomeEmpty:
		pterm.Warning.Println("No flights found")
	case bundle.Outcome() == types.OutcomeDegraded:
		pterm.Warning.Printf("Results are partial: %s\n", degradedSources(bundle.Runs()))
	default:
		pterm.Success.Println("All sources responded")
	}
	return nil
}

func sourceRows(runs []types.SourceRunResult) pterm.TableData {
	data := pterm.TableData{{"Source", "Status", "Records", "Elapsed", "Error"}}
	for _, r := range runs {
		data = append(data, []string{
			r.SourceID,
			string(r.Status),
			strconv.Itoa(r.RecordCount),
			r.Elapsed.Round(time.Millisecond).String(),
			r.ErrorDetail,
		})
	}
	return data
}

func flightRows(b *types.ResultBundle, limit int) pterm.TableData {
	data := pterm.TableData{{"#", "Airline", "Flight", "Departs", "Arrives", "Duration", "Stops", "Price", "Score", "Sources"}}
	scores := b.Metrics().Scores
	for i, f := range b.Records() {
		if limit > 0 && i >= limit {
			break
		}
		score := ""
		if i < len(scores) {
			score = strconv.FormatFloat(scores[i], 'f', 1, 64)
		}
		data = append(data, []string{
			strconv.Itoa(i + 1),
			f.Airline,
			f.FlightCode,
			types.FormatClock(f.DepartureTime),
			types.FormatClock(f.ArrivalTime),
			formatDuration(f.DurationMinutes),
			strconv.Itoa(f.Stops),
			strconv.FormatInt(f.Price, 10),
			score,
			strings.Join(f.MergedFrom, ","),
		})
	}
	return data
}

func printSummary(b *types.ResultBundle) {
	m := b.Metrics()
	if rec, ok := b.Record(m.Cheapest); ok {
		pterm.Info.Printf("Cheapest: %s %s at %d\n", rec.Airline, rec.FlightCode, rec.Price)
	}
	if rec, ok := b.Record(m.Fastest); ok {
		pterm.Info.Printf("Fastest: %s %s in %s\n", rec.Airline, rec.FlightCode, formatDuration(rec.DurationMinutes))
	}
	if rec, ok := b.Record(m.BestValue); ok {
		pterm.Info.Printf("Best value: %s %s (%d, %s)\n", rec.Airline, rec.FlightCode, rec.Price, formatDuration(rec.DurationMinutes))
	}
	if m.MeanPrice.Defined {
		pterm.Info.Printf("Mean price %.0f, median %.0f over %d flights\n", m.MeanPrice.Value, m.MedianPrice.Value, m.Count)
	}
}

func degradedSources(runs []types.SourceRunResult) string {
	var parts []string
	for _, r := range runs {
		if r.Status != types.StatusSuccess {
			parts = append(parts, r.SourceID+" "+string(r.Status))
		}
	}
	return strings.Join(parts, ", ")
}

func formatDuration(minutes int) string {
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
