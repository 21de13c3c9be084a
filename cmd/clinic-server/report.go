package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dentalclinic/clinic/internal/domain/reporting"
	"github.com/dentalclinic/clinic/internal/domain/scheduling"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write an appointment export to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			providers, _ := cmd.Flags().GetStringSlice("provider")
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			lang, _ := cmd.Flags().GetString("lang")

			if format != "pdf" && format != "xlsx" {
				return fmt.Errorf("--format must be pdf or xlsx, got %q", format)
			}
			f, err := scheduling.ParseFilter(start, end, providers)
			if err != nil {
				return err
			}

			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(ctx, cfg, pool, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := writeReport(ctx, a.reporting, f, format, out, lang)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("start", "", "First appointment date, YYYY-MM-DD")
	cmd.Flags().String("end", "", "Last appointment date, YYYY-MM-DD")
	cmd.Flags().StringSlice("provider", nil, "Practitioner name (repeatable or comma separated)")
	cmd.Flags().String("format", "pdf", "Output format: pdf or xlsx")
	cmd.Flags().String("out", "", "Output file (default: the download filename)")
	cmd.Flags().String("lang", "", "Locale for report dates (default: DEFAULT_LOCALE)")
	return cmd
}

// exporter is the part of the reporting service the report command drives.
type exporter interface {
	ExportSpreadsheet(ctx context.Context, f scheduling.AppointmentFilter) (*reporting.Spreadsheet, error)
	GenerateReport(ctx context.Context, f scheduling.AppointmentFilter, acceptLanguage string, send reporting.SendFunc) error
}

// writeReport runs one export and returns the path written.
func writeReport(ctx context.Context, svc exporter, f scheduling.AppointmentFilter, format, out, lang string) (string, error) {
	if format == "xlsx" {
		sheet, err := svc.ExportSpreadsheet(ctx, f)
		if err != nil {
			return "", err
		}
		if out == "" {
			out = sheet.Filename
		}
		return out, os.WriteFile(out, sheet.Data, 0o644)
	}

	if out == "" {
		out = reporting.ReportFilename
	}
	err := svc.GenerateReport(ctx, f, lang, func(path string) error {
		return copyFile(path, out)
	})
	return out, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
