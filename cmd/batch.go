package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/extract-cli/internal/extract"
)

var (
	batchInput       string
	batchOutput      string
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract content from a file of URLs",
	Long:  "Reads URLs one per line (use \"-\" for stdin) and writes one JSON result per line. Blank lines and lines starting with # are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtractor("extract")
		if err != nil {
			return err
		}

		urls, err := readURLList(batchInput)
		if err != nil {
			return err
		}

		out := os.Stdout
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "batch: create output file")
			}
			defer func() { _ = f.Close() }()
			out = f
		}

		extractOne := func(ctx context.Context, url string) (*extract.Result, error) {
			return env.Orchestrator.Extract(ctx, url, extract.Options{})
		}
		return processBatch(ctx, urls, batchLimit, batchConcurrency, out, extractOne)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "-", "URL list file, one URL per line")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "result file, JSON per line (default stdout)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of URLs to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "max concurrent extractions")
	rootCmd.AddCommand(batchCmd)
}

// readURLList loads a URL-per-line file, skipping blanks and # comments.
func readURLList(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "batch: open input file")
		}
		defer func() { _ = f.Close() }()
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
		return nil, eris.Wrap(err, "batch: read input")
	}
	return urls, nil
}

// extractFunc is the callback signature for extracting one URL.
type extractFunc func(ctx context.Context, url string) (*extract.Result, error)

// processBatch applies limit, then extracts URLs concurrently, writing one
// JSON result per line. Individual failures never abort the batch; the
// rendering service circuit breaker is shared across all workers.
func processBatch(ctx context.Context, urls []string, limit, concurrency int, out io.Writer, extractOne extractFunc) error {
	if len(urls) == 0 {
		zap.L().Info("no urls to process")
		return nil
	}

	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", concurrency),
	)

	var mu sync.Mutex
	enc := json.NewEncoder(out)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, degraded, failed atomic.Int64

	for _, url := range urls {
		url := url
		g.Go(func() error {
			log := zap.L().With(zap.String("url", url))

			res, err := extractOne(gctx, url)
			if err != nil {
				// Malformed URL: report it as a failed result so the output
				// stays one line per input.
				failed.Add(1)
				log.Error("extraction rejected", zap.Error(err))
				res = &extract.Result{URL: url, Status: extract.StatusFailed, Error: err.Error()}
			} else {
				switch res.Status {
				case extract.StatusSuccess:
					succeeded.Add(1)
				case extract.StatusDegraded:
					degraded.Add(1)
					log.Warn("extraction degraded", zap.String("note", res.Error))
				case extract.StatusFailed:
					failed.Add(1)
					log.Error("extraction failed", zap.String("note", res.Error))
				}
			}

			mu.Lock()
			encErr := enc.Encode(res)
			mu.Unlock()
			if encErr != nil {
				return eris.Wrap(encErr, "batch: write result")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("degraded", degraded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
