package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/analyze"
	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/ingest"
	"github.com/examtile/examtile/internal/sink"
	"github.com/examtile/examtile/internal/tiling"
)

// reportInRunDir is the --report value used when the flag has no argument.
const reportInRunDir = "run"

var (
	runFormat    string
	runOut       string
	runReport    string
	runSaveTiles bool
	runMode      string
	runDPI       int
	runProvider  string
	runSubject   string
)

var runCmd = &cobra.Command{
	Use:   "run <file.pdf>",
	Short: "Analyze an exam PDF locally",
	Long: `Rasterize an exam PDF, split each page into tiles and print the model's
answer for every tile as soon as it arrives.

Tiles are processed strictly in reading order with at least
rate_limit.min_interval between requests. A tile that fails is reported in
place; the run only stops early for an exhausted quota with
inference.on_quota=halt, or when interrupted.

Output formats:
  markdown  Headed sections per page and tile (default)
  ndjson    One JSON event per line: start, tile, page, error, done
  json      One JSON document written when the run ends
  yaml      One YAML document written when the run ends

Examples:
  examtile run final.pdf
  examtile run final.pdf --mode quarter --dpi 200
  examtile run final.pdf --format json --out answers.json
  examtile run final.pdf --report                # PDF report in the run directory
  examtile run final.pdf --report answers.pdf --save-tiles`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		switch runFormat {
		case "markdown", "md", "ndjson", "json", "yaml":
		default:
			return fmt.Errorf("unsupported --format %q (markdown, ndjson, json or yaml)", runFormat)
		}

		h, err := getHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		cm, err := loadConfig(h, logger)
		if err != nil {
			return err
		}

		cfg := *cm.Get()
		if runProvider != "" {
			cfg.Provider = runProvider
		}
		if runSubject != "" {
			cfg.Prompt.Subject = runSubject
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		analyzer := analyze.New(analyze.Options{
			Config: &cfg,
			Home:   h,
			Logger: logger,
		})
		run, err := analyzer.Prepare(ctx, analyze.Request{
			Data:  data,
			Title: ingest.Title(args[0]),
			Mode:  runMode,
			DPI:   runDPI,
		})
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if runOut != "" {
			f, err := os.Create(runOut)
			if err != nil {
				run.Close()
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		sinks, closers, err := runSinks(out, run, &cfg)
		defer func() {
			for _, c := range closers {
				c.Close()
			}
		}()
		if err != nil {
			run.Close()
			return err
		}

		sum, err := run.Execute(ctx, sink.Multi(sinks...))
		logger.Info("run finished",
			"run_id", run.ID,
			"pages", sum.Pages,
			"answered", sum.OK,
			"failed", sum.Failed,
			"skipped", sum.Skipped,
			"elapsed", sum.Elapsed,
			"dir", run.Dir,
		)
		return err
	},
}

// runSinks builds the output sink plus any report or tile sinks the flags
// ask for. Returned closers must be closed after the run.
func runSinks(w io.Writer, run *analyze.Run, cfg *config.Config) ([]sink.Sink, []io.Closer, error) {
	var sinks []sink.Sink
	var closers []io.Closer

	switch runFormat {
	case "markdown", "md":
		sinks = append(sinks, sink.NewMarkdown(w, run.Title))
	case "ndjson":
		stream := sink.NewNDJSON(w)
		if err := stream.Start(run.ID, run.Pages); err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, stream)
	case "json", "yaml":
		doc, err := sink.NewDocument(w, runFormat, run.Title)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, doc)
	}

	if runReport != "" {
		font, err := sink.LoadReportFont(cfg.Report.Font, cfg.Report.FontBold)
		if err != nil {
			return nil, closers, err
		}
		path := runReport
		if path == reportInRunDir {
			h, err := getHome()
			if err != nil {
				return nil, closers, err
			}
			path = h.ReportPath(run.ID)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create report: %w", err)
		}
		closers = append(closers, f)
		sinks = append(sinks, sink.NewPDFReportWithFont(f, run.Title, font))
	}

	if runSaveTiles {
		h, err := getHome()
		if err != nil {
			return nil, closers, err
		}
		saver, err := sink.NewTileSaver(h.TilesDir(run.ID), tiling.Format(cfg.Tiling.ImageFormat), cfg.Tiling.JPEGQuality)
		if err != nil {
			return nil, closers, err
		}
		sinks = append(sinks, saver)
	}

	return sinks, closers, nil
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "markdown", "Output format: markdown, ndjson, json or yaml")
	runCmd.Flags().StringVar(&runOut, "out", "", "Write output to this file instead of stdout")
	runCmd.Flags().StringVar(&runReport, "report", "", "Also write a PDF report to this path (no value: the run directory)")
	runCmd.Flags().Lookup("report").NoOptDefVal = reportInRunDir
	runCmd.Flags().BoolVar(&runSaveTiles, "save-tiles", false, "Save each tile image in the run directory")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Tiling mode: quarter or half (default: tiling.mode)")
	runCmd.Flags().IntVar(&runDPI, "dpi", 0, "Rasterization resolution (default: tiling.dpi)")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "Provider to use (default: provider)")
	runCmd.Flags().StringVar(&runSubject, "subject", "", "Exam subject mentioned in the prompt (default: prompt.subject)")

	rootCmd.AddCommand(runCmd)
}
