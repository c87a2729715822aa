package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/synqronlabs/posture"
)

const (
	formatText    = "text"
	formatJSON    = "json"
	formatMsgpack = "msgpack"
)

var (
	checkFormat   string
	checkLimit    int
	checkParallel int
)

var checkCmd = &cobra.Command{
	Use:   "check <domain>...",
	Short: "Analyze the email authentication records of domains",
	Long: `Look up and score the DMARC, SPF and DKIM records of each domain and
print the report with its action plan. Domains are analyzed concurrently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch checkFormat {
		case formatText, formatJSON, formatMsgpack:
		default:
			return fmt.Errorf("unknown format %q (want text, json or msgpack)", checkFormat)
		}

		logger := newLogger()
		checker, err := newChecker(logger, nil)
		if err != nil {
			return err
		}

		limit := checkLimit
		if limit <= 0 {
			limit = cfg.ActionLimit
		}
		return runCheck(cmd.Context(), checker, args, checkOptions{
			format:   checkFormat,
			limit:    limit,
			parallel: checkParallel,
			logger:   logger,
		}, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", formatText, "output format: text, json or msgpack")
	checkCmd.Flags().IntVarP(&checkLimit, "limit", "n", 0, "maximum action plan items (default from config)")
	checkCmd.Flags().IntVarP(&checkParallel, "parallel", "p", 4, "domains analyzed at once")
	rootCmd.AddCommand(checkCmd)
}

type checkOptions struct {
	format   string
	limit    int
	parallel int
	logger   *slog.Logger
}

type analyzer interface {
	Analyze(ctx context.Context, domain string, limit int) (*posture.Analysis, error)
}

// runCheck analyzes domains and writes the results in argument order. A
// domain that fails does not stop the others.
func runCheck(ctx context.Context, a analyzer, domains []string, opts checkOptions, stdout, stderr io.Writer) error {
	results := make([]*posture.Analysis, len(domains))
	errs := make([]error, len(domains))

	g, ctx := errgroup.WithContext(ctx)
	if opts.parallel > 0 {
		g.SetLimit(opts.parallel)
	}
	for i, domain := range domains {
		g.Go(func() error {
			results[i], errs[i] = a.Analyze(ctx, domain, opts.limit)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, res := range results {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", domains[i], errs[i])
			continue
		}
		if err := write(stdout, opts.format, res); err != nil {
			return err
		}
		if opts.logger != nil {
			opts.logger.Debug("domain checked",
				slog.String("domain", res.Report.Domain),
				slog.Int("score", res.Report.TotalScore))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d domains could not be checked", failed, len(domains))
	}
	return nil
}

func write(w io.Writer, format string, a *posture.Analysis) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	case formatMsgpack:
		b, err := a.Report.MarshalMsg(nil)
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		_, err = w.Write(b)
		return err
	default:
		return renderText(w, a)
	}
}
