package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/app"
	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/export"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Forecast one or more sales reports",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "input", Aliases: []string{"i"}, Usage: "Sales report (csv or xlsx); repeatable", Required: true},
			&cli.StringSliceFlag{Name: "product", Aliases: []string{"p"}, Usage: "Only forecast these product ids"},
			&cli.StringFlag{Name: "stock", Usage: "Stock file with on-hand and incoming quantities"},
			&cli.StringFlag{Name: "run-date", Usage: "Run date (YYYY-MM-DD); defaults to the date in the report name"},
			&cli.BoolFlag{Name: "publish", Usage: "Upload the recommendation workbook to object storage"},
			&cli.BoolFlag{Name: "retry-failed", Usage: "Only rerun products whose earlier jobs failed (needs a database)"},
			&cli.StringFlag{Name: "export", Usage: "Write the recommendation workbook to this local path"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write recommendations as JSON to this path (- for stdout)"},
		},
		Action: runForecast,
	}
}

func runForecast(c *cli.Context) error {
	var runDate time.Time
	if v := c.String("run-date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fmt.Errorf("invalid run date %q: %w", v, err)
		}
		runDate = d
	}

	application, err := app.New(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer application.Close()

	var recs []domain.InventoryRecommendation
	for _, path := range c.StringSlice("input") {
		resp, err := application.Forecasts.ForecastFile(c.Context, service.FileRequest{
			Path:       path,
			StockPath:  c.String("stock"),
			ProductIDs: c.StringSlice("product"),
			RunDate:    runDate,
			Publish:    c.Bool("publish"),

			RetryFailed: c.Bool("retry-failed"),
		})
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if resp.Run != nil && resp.Run.FailedProducts > 0 {
			log.Warn().Str("file", path).Int("failed", resp.Run.FailedProducts).Msg("some products could not be forecast")
		}
		if resp.ExportKey != "" {
			log.Info().Str("file", path).Str("key", resp.ExportKey).Msg("export published")
		}
		recs = append(recs, resp.Recommendations...)
	}

	if path := c.String("export"); path != "" {
		if err := writeWorkbook(path, recs); err != nil {
			return err
		}
	}

	switch out := c.String("output"); out {
	case "":
		return printSummary(os.Stdout, recs)
	case "-":
		return writeJSON(os.Stdout, recs)
	default:
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		return writeJSON(f, recs)
	}
}

func writeWorkbook(path string, recs []domain.InventoryRecommendation) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteXLSX(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, recs []domain.InventoryRecommendation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

func printSummary(w io.Writer, recs []domain.InventoryRecommendation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PRODUCT\tMEAN/DAY\tSAFETY\tREQUIRED\tTHRESHOLD\tREORDER\tQTY\t")
	for _, r := range recs {
		reorder, qty := "-", "-"
		if r.Decision != nil {
			reorder = "no"
			if r.Decision.Reorder {
				reorder = "yes"
			}
			qty = fmt.Sprintf("%.0f", r.Decision.SuggestedQuantity)
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.0f\t%.0f\t%.0f\t%s\t%s\t\n",
			r.ProductID, r.MeanDailyForecast, r.SafetyStock, r.RequiredInventory, r.EffectiveThreshold, reorder, qty)
	}
	return tw.Flush()
}
