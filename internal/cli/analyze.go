package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/analysis"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/ingest"
	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

type analyzeOptions struct {
	Output  string
	Source  string
	Profile string
	Compact bool
}

func newAnalyzeCommand() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a log file offline and print the results",
		Long: `Read a log file (or stdin when no file is given), run the analysis
engine in-process, and print the full result set as JSON.

The acquisition path is picked from the input head: JSONL records from
the native-format parser take the jar_parsed path, raw AR server log
text takes the built-in computed scanner. Use --source to force one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runAnalyze(ctx, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write results to file instead of stdout")
	cmd.Flags().StringVar(&opts.Source, "source", "", "force acquisition path (jar_parsed|computed)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "analysis profile file (YAML thresholds)")
	cmd.Flags().BoolVar(&opts.Compact, "compact", false, "single-line JSON output")
	return cmd
}

func runAnalyze(ctx context.Context, args []string, opts *analyzeOptions) error {
	var in io.Reader = os.Stdin
	name := "stdin"
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		in = f
		name = filepath.Base(args[0])
	}

	br := bufio.NewReaderSize(in, 64<<10)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading input: %w", err)
	}

	var source model.Source
	switch opts.Source {
	case "":
		source = ingest.DetectSource(head)
	case string(model.SourceJarParsed):
		source = model.SourceJarParsed
	case string(model.SourceComputed):
		source = model.SourceComputed
	default:
		return fmt.Errorf("unknown source %q (want jar_parsed or computed)", opts.Source)
	}

	var (
		recs        []model.TransactionRecord
		quarantined int
	)
	if source == model.SourceJarParsed {
		recs, quarantined, err = ingest.ReadJSONL(br)
	} else {
		recs, quarantined, err = ingest.ScanRawLog(br)
	}
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}

	th := analysis.DefaultThresholds()
	if opts.Profile != "" {
		th, err = analysis.LoadProfile(opts.Profile)
		if err != nil {
			return fmt.Errorf("loading analysis profile: %w", err)
		}
	}

	job := model.Job{
		ID:          uuid.NewString(),
		Name:        name,
		Source:      source,
		Quarantined: quarantined,
		RecordCount: len(recs),
		CreatedAt:   time.Now().UTC(),
	}

	eng := analysis.New(analysis.Options{Thresholds: th})
	rs, err := eng.Analyze(ctx, job, recs)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	out := os.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	if !opts.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	if quarantined > 0 {
		fmt.Fprintf(os.Stderr, "quarantined %d malformed lines\n", quarantined)
	}
	return nil
}
