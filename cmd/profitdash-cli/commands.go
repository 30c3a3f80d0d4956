package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"profitdash/internal/analytics"
	"profitdash/internal/backend"
	"profitdash/internal/cli"
	"profitdash/internal/core"
	"profitdash/internal/ingest"
	"profitdash/internal/sheets"
	"profitdash/internal/storage"
)

func newCheckCmd() *cobra.Command {
	var maxRows int
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a spreadsheet and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, res, err := load(cmd.Context(), args[0], maxRows)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), snap, res)
		},
	}
	cmd.Flags().IntVar(&maxRows, "max-rows", ingest.DefaultMaxRows, "maximum number of data rows")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		out     string
		maxRows int
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the normalized product rows as csv or xlsx",
		Long: "Export parses a spreadsheet the way the dashboard does and writes the\n" +
			"resulting rows with the upload headers. The output format follows the\n" +
			"extension of --output; without it, csv goes to stdout.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, _, err := load(cmd.Context(), args[0], maxRows)
			if err != nil {
				return err
			}
			rows := sheets.Rows(snap)
			if out == "" {
				return writeCSV(cmd.OutOrStdout(), rows)
			}
			if err := writeFile(out, snap, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d products to %s\n", len(snap.Products), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (.csv or .xlsx)")
	cmd.Flags().IntVar(&maxRows, "max-rows", ingest.DefaultMaxRows, "maximum number of data rows")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg := cli.LoadAndValidateConfig()
			bcfg, err := backend.FromAppConfig(cfg)
			if err != nil {
				return err
			}
			// Open runs pending migrations before returning.
			db, err := storage.Open(cmd.Context(), bcfg.Dialect(), bcfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", bcfg.Dialect())
			return nil
		},
	}
}

// load parses path into a snapshot. Ingestion errors are reported with the
// same sentence the dashboard shows.
func load(ctx context.Context, path string, maxRows int) (core.Snapshot, ingest.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := os.Open(path)
	if err != nil {
		return core.Snapshot{}, ingest.Result{}, err
	}
	defer f.Close()

	name := filepath.Base(path)
	res, err := ingest.Parse(ctx, name, f, ingest.Options{MaxRows: maxRows})
	if err != nil {
		return core.Snapshot{}, res, fmt.Errorf("%s: %s", name, ingest.Message(err))
	}
	snap := core.Snapshot{
		UserID:     "local",
		UploadID:   uuid.NewString(),
		FileName:   name,
		UploadedAt: time.Now().UTC(),
		Products:   res.Products,
	}
	return snap, res, nil
}

func printSummary(w io.Writer, snap core.Snapshot, res ingest.Result) error {
	report := analytics.Build(snap.Products)
	s := report.Summary

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "File\t%s\n", snap.FileName)
	fmt.Fprintf(tw, "Format\t%s\n", res.Format)
	if res.Sheet != "" {
		fmt.Fprintf(tw, "Sheet\t%s\n", res.Sheet)
	}
	fmt.Fprintf(tw, "Products\t%d\n", s.ProductCount)
	if res.BlankRows > 0 {
		fmt.Fprintf(tw, "Blank rows skipped\t%d\n", res.BlankRows)
	}
	fmt.Fprintf(tw, "Total sales\t%s\n", core.FormatUSD(s.TotalSales))
	fmt.Fprintf(tw, "Total profit\t%s\n", core.FormatUSD(s.TotalProfit))
	fmt.Fprintf(tw, "Total expenses\t%s\n", core.FormatUSD(s.TotalExpenses))
	fmt.Fprintf(tw, "Total credit\t%s\n", core.FormatUSD(s.TotalCredit))
	fmt.Fprintf(tw, "Profit margin\t%s\n", core.FormatPercent(s.ProfitMargin))
	fmt.Fprintf(tw, "Average profit %%\t%s\n", core.FormatPercent(s.AverageProfitPercentage))
	fmt.Fprintf(tw, "Median profit %%\t%s\n", core.FormatPercent(s.MedianProfitPercentage))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.TopProducts) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nTop products")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, p := range report.TopProducts {
		fmt.Fprintf(tw, "%d.\t%s\t%s\n", i+1, core.TruncateName(p.Name, 40), core.FormatUSD(p.Profit))
	}
	return tw.Flush()
}

func writeFile(path string, snap core.Snapshot, rows [][]any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return writeXLSX(path, sheets.TabTitle(snap), rows)
	case ".csv", "":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := writeCSV(f, rows); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported output format %q, use .csv or .xlsx", filepath.Ext(path))
	}
}

func writeCSV(w io.Writer, rows [][]any) error {
	cw := csv.NewWriter(w)
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = cell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Excel caps sheet names at 31 characters.
const maxSheetName = 31

func writeXLSX(path, title string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if r := []rune(title); len(r) > maxSheetName {
		title = strings.TrimSpace(string(r[:maxSheetName]))
	}
	if err := f.SetSheetName("Sheet1", title); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(title, addr, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return f.SaveAs(path)
}
