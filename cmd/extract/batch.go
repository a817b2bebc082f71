package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-label-extractor/internal/config"
	"github.com/maltedev/amazon-label-extractor/internal/models"
	"github.com/maltedev/amazon-label-extractor/internal/queue"
	"github.com/maltedev/amazon-label-extractor/internal/scraper"
)

var (
	batchWorkers int
	batchRetries int
)

// batchLine is one JSON line of batch output.
type batchLine struct {
	URL     string                `json:"url"`
	Record  *models.ProductRecord `json:"record,omitempty"`
	Error   *errorOutput          `json:"error,omitempty"`
	Retries int                   `json:"retries"`
}

// batchCmd creates the "batch" subcommand.
func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Extract every URL listed in a file (one per line, - for stdin)",
		Long: `Extract a list of product pages concurrently and print one JSON object per
line. Each extraction still makes its requests sequentially. Failures that can
be retried later are put back on the queue up to --retries times. The command
exits with status 1 if any URL failed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBatch,
	}

	cmd.Flags().IntVarP(&batchWorkers, "workers", "w", 2, "number of concurrent extractions")
	cmd.Flags().IntVar(&batchRetries, "retries", 1, "requeue attempts for retryable failures")

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	urls, err := readURLs(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.Logging.Format = "text"
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := scraper.NewFromConfig(cfg, logger)

	q := queue.NewInMemoryQueue()
	for _, u := range urls {
		if err := q.Push(queue.NewTask(u, 0)); err != nil {
			return err
		}
	}

	pool := queue.NewPool(q, queue.PoolOptions{
		Workers:    batchWorkers,
		MaxRetries: batchRetries,
		Retryable: func(err error) bool {
			return models.AsExtractError(err).Kind.Retryable()
		},
	}, logger)

	handle := func(ctx context.Context, task *queue.Task) (interface{}, error) {
		taskCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		rec, err := service.Extract(taskCtx, task.URL)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan queue.Result)
	runErr := make(chan error, 1)
	go func() {
		runErr <- pool.Run(ctx, handle, results)
	}()

	start := time.Now()
	failed, err := writeResults(cmd.OutOrStdout(), results, cancel)
	if rerr := <-runErr; err == nil {
		err = rerr
	}
	if err != nil {
		return err
	}

	logger.Info("batch complete", "urls", len(urls), "failed", failed, "duration", time.Since(start))
	if failed > 0 {
		return fmt.Errorf("%d of %d extractions failed", failed, len(urls))
	}
	return nil
}

// writeResults prints one line per result until results is closed. After a write
// error the pool is cancelled and the remaining results are drained so its
// workers can exit.
func writeResults(out io.Writer, results <-chan queue.Result, cancel context.CancelFunc) (int, error) {
	failed := 0
	var writeErr error
	for r := range results {
		if writeErr != nil {
			continue
		}
		line := batchLine{URL: r.Task.URL, Retries: r.Task.Retries}
		if r.Err != nil {
			failed++
			ee := models.AsExtractError(r.Err)
			line.Error = &errorOutput{Error: ee.Message, Kind: ee.Kind, Status: ee.Status, Retryable: ee.Kind.Retryable()}
		} else {
			line.Record, _ = r.Value.(*models.ProductRecord)
		}
		if err := writeLine(out, line); err != nil {
			writeErr = fmt.Errorf("failed to write result: %w", err)
			cancel()
		}
	}
	return failed, writeErr
}

func readURLs(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read urls: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no urls in %s", path)
	}
	return urls, nil
}

func writeLine(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
