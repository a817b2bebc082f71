package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-label-extractor/internal/config"
	"github.com/maltedev/amazon-label-extractor/internal/diagnostics"
	"github.com/maltedev/amazon-label-extractor/internal/models"
	"github.com/maltedev/amazon-label-extractor/internal/ocr"
	"github.com/maltedev/amazon-label-extractor/internal/parser"
	"github.com/maltedev/amazon-label-extractor/internal/scraper"
)

var (
	showReport   bool
	runOCR       bool
	timeout      time.Duration
	profilesFile string
	logLevel     string
)

type errorOutput struct {
	Error     string           `json:"error"`
	Kind      models.ErrorKind `json:"kind"`
	Status    int              `json:"upstream_status,omitempty"`
	Retryable bool             `json:"retryable"`
}

type recordOutput struct {
	*models.ProductRecord
	OCRText []string `json:"ocr_text,omitempty"`
}

type reportOutput struct {
	*scraper.Report
	OCRText []string `json:"ocr_text,omitempty"`
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract [url]",
		Short: "Extract packaging label data from an Amazon product page",
		Long: `Fetch one Amazon product page and print its label data as JSON.

Fields that cannot be found are null. With --report the output also lists every
network attempt and the strategy that produced each field. Failures are printed
as JSON on stdout and the command exits with status 1.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runExtract,
	}

	cmd.Flags().BoolVar(&showReport, "report", false, "include fetch attempts and field candidates")
	cmd.Flags().BoolVar(&runOCR, "ocr", false, "run OCR over product images (needs OCR_SERVICE_URL)")
	cmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "deadline for each extraction")
	cmd.Flags().StringVar(&profilesFile, "profiles", "", "YAML file with client profiles and indicator phrases")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(batchCmd())

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return writeFailure(cmd.OutOrStdout(), models.NewInternalFault("failed to load config", err))
	}
	if profilesFile != "" {
		if err := cfg.LoadProfilesFile(profilesFile); err != nil {
			return writeFailure(cmd.OutOrStdout(), models.NewInternalFault("failed to load profiles", err))
		}
	}
	if err := cfg.Validate(); err != nil {
		return writeFailure(cmd.OutOrStdout(), models.NewInternalFault("invalid config", err))
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.Logging.Format = "text"
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sink, closeSink, err := diagnostics.FromConfig(ctx, cfg.Diagnostics, cfg.Redis)
	if err != nil {
		logger.Warn("diagnostics disabled", "error", err)
		sink, closeSink = diagnostics.Nop{}, func() error { return nil }
	}
	defer closeSink()

	service := scraper.NewFromConfig(cfg, logger, scraper.WithSink(sink))

	report, err := service.ExtractReport(ctx, args[0])
	if err != nil {
		return writeFailure(cmd.OutOrStdout(), err)
	}

	var texts []string
	if runOCR || cfg.OCR.Enabled {
		prices := parser.NewAmazonParser(parser.Options{
			PriceMin:        cfg.Extractor.PriceMin,
			PriceMax:        cfg.Extractor.PriceMax,
			DefaultCurrency: cfg.Extractor.DefaultCurrency,
		})
		enricher := ocr.NewEnricher(ocr.NewClient(cfg.OCR, logger), prices)
		report.Record, texts = enricher.Enrich(ctx, report.Record)
	}

	if showReport {
		return writeJSON(cmd.OutOrStdout(), reportOutput{Report: report, OCRText: texts})
	}
	return writeJSON(cmd.OutOrStdout(), recordOutput{ProductRecord: report.Record, OCRText: texts})
}

// writeFailure prints err as JSON and returns it so the command exits non-zero.
func writeFailure(w io.Writer, err error) error {
	ee := models.AsExtractError(err)
	if werr := writeJSON(w, errorOutput{
		Error:     ee.Message,
		Kind:      ee.Kind,
		Status:    ee.Status,
		Retryable: ee.Kind.Retryable(),
	}); werr != nil {
		return fmt.Errorf("%w (and failed to write output: %v)", ee, werr)
	}
	return ee
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
