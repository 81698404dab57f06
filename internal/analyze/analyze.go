// Package analyze assembles one exam analysis from configuration: it
// validates settings, rasterizes the upload, and runs the tile scheduler
// against a presentation sink.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/home"
	"github.com/examtile/examtile/internal/ingest"
	"github.com/examtile/examtile/internal/llmcall"
	"github.com/examtile/examtile/internal/pipeline"
	"github.com/examtile/examtile/internal/prompts"
	"github.com/examtile/examtile/internal/providers"
	"github.com/examtile/examtile/internal/ratelimit"
	"github.com/examtile/examtile/internal/sink"
	"github.com/examtile/examtile/internal/tiling"
)

// Options configure an Analyzer. Only Config is required.
type Options struct {
	Config *config.Config
	// Registry supplies inference clients. Without one, a client is built
	// from the active provider's settings for each run.
	Registry   *providers.Registry
	Prompts    *prompts.Resolver
	Rasterizer *ingest.Rasterizer
	// Home enables per-run directories holding the call log.
	Home   *home.Dir
	Clock  ratelimit.Clock
	Logger *slog.Logger
}

// Analyzer prepares and executes runs. Runs execute one at a time and
// share one rate limiter, so the provider sees a single paced stream of
// requests however many callers there are.
type Analyzer struct {
	mu      sync.RWMutex
	cfg     *config.Config
	limiter ratelimit.Limiter
	limErr  error

	registry *providers.Registry
	prompts  *prompts.Resolver
	raster   *ingest.Rasterizer
	home     *home.Dir
	clock    ratelimit.Clock
	logger   *slog.Logger

	slot chan struct{}
}

// New creates an analyzer.
func New(opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{
		registry: opts.Registry,
		prompts:  opts.Prompts,
		raster:   opts.Rasterizer,
		home:     opts.Home,
		clock:    opts.Clock,
		logger:   logger,
		slot:     make(chan struct{}, 1),
	}
	if a.prompts == nil {
		a.prompts = prompts.NewResolver(logger)
	}
	if a.raster == nil {
		a.raster = ingest.NewRasterizer(ingest.Config{Logger: logger})
	}
	if a.clock == nil {
		a.clock = ratelimit.RealClock{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a.SetConfig(cfg)
	return a
}

// SetConfig swaps the configuration used by later runs and rebuilds the
// rate limiter if its settings changed.
func (a *Analyzer) SetConfig(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg == nil || a.cfg.RateLimit != cfg.RateLimit || a.limiter == nil {
		opts := cfg.LimiterOptions()
		opts.Clock = a.clock
		a.limiter, a.limErr = ratelimit.New(opts)
	}
	a.cfg = cfg
}

// Config returns the current configuration.
func (a *Analyzer) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// LimiterStatus reports the shared limiter's state.
func (a *Analyzer) LimiterStatus() (ratelimit.Status, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.limiter == nil {
		return ratelimit.Status{}, false
	}
	return a.limiter.Status(), true
}

// Busy reports whether a run is executing.
func (a *Analyzer) Busy() bool {
	return len(a.slot) > 0
}

// Request describes one document to analyze. Zero fields fall back to
// configuration.
type Request struct {
	Data  []byte
	Title string
	Mode  string
	DPI   int
}

// Prepare validates configuration and the document. No inference happens
// until Execute. Configuration problems are *config.ConfigurationError and
// document problems *ingest.RasterizationError.
func (a *Analyzer) Prepare(ctx context.Context, req Request) (*Run, error) {
	a.mu.RLock()
	cfg, limiter, limErr := a.cfg, a.limiter, a.limErr
	a.mu.RUnlock()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if limErr != nil {
		return nil, &config.ConfigurationError{Key: "rate_limit", Msg: limErr.Error(), Err: limErr}
	}

	modeName := cfg.Tiling.Mode
	if req.Mode != "" {
		modeName = req.Mode
	}
	mode, err := tiling.ParseMode(modeName)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "tiling.mode", Msg: err.Error(), Err: err}
	}

	client, err := a.client(ctx, cfg)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "provider", Msg: err.Error(), Err: err}
	}

	prompt, err := a.prompts.Resolve(prompts.ExamKey, cfg.Prompt.File, prompts.Data{
		Subject: cfg.Prompt.Subject,
		Mode:    string(mode),
	})
	if err != nil {
		return nil, &config.ConfigurationError{Key: "prompt.file", Msg: err.Error(), Err: err}
	}

	dpi := cfg.Tiling.DPI
	if req.DPI != 0 {
		if err := config.ValidateDPI(req.DPI); err != nil {
			return nil, err
		}
		dpi = req.DPI
	}
	doc, err := a.raster.Rasterize(ctx, req.Data, dpi)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:       uuid.New().String(),
		Title:    req.Title,
		Mode:     mode,
		Pages:    doc.PageCount(),
		Provider: client.Name(),
		Model:    client.Model(),
		Prompt:   prompt,
		analyzer: a,
		doc:      doc,
	}
	logger := a.logger.With("run_id", run.ID)

	if a.home != nil {
		if err := a.home.EnsureRunDir(run.ID); err != nil {
			doc.Close()
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
		run.Dir = a.home.RunDir(run.ID)
		if cfg.Calls.Enabled {
			run.recorder, err = llmcall.OpenFile(a.home.CallsPath(run.ID), logger)
			if err != nil {
				doc.Close()
				return nil, err
			}
		}
	}

	run.sched, err = pipeline.NewScheduler(pipeline.Config{
		Client:      client,
		Limiter:     limiter,
		Clock:       a.clock,
		Instruction: prompt.Text,
		PromptKey:   prompt.Key,
		PromptHash:  prompt.Hash,
		Temperature: cfg.Inference.Temperature,
		MaxAttempts: cfg.Inference.MaxAttempts,
		RetryDelay:  cfg.Inference.RetryDelay,
		HaltOnQuota: cfg.HaltOnQuota(),
		ImageFormat: tiling.Format(cfg.Tiling.ImageFormat),
		JPEGQuality: cfg.Tiling.JPEGQuality,
		MaxTileEdge: cfg.Tiling.MaxTileEdge,
		Observer:    run,
		Recorder:    run.recorder,
		Logger:      a.logger,
		RunID:       run.ID,
	})
	if err != nil {
		run.Close()
		return nil, err
	}

	logger.Info("run prepared", "pages", run.Pages, "mode", mode, "dpi", dpi, "provider", run.Provider, "model", run.Model)
	return run, nil
}

func (a *Analyzer) client(ctx context.Context, cfg *config.Config) (providers.InferenceClient, error) {
	if a.registry != nil {
		return a.registry.Get(cfg.Provider)
	}
	pc, ok := cfg.ProviderConfigs()[cfg.Provider]
	if !ok {
		return nil, config.ErrNoProvider
	}
	return providers.NewClient(ctx, pc)
}

// Run is a prepared analysis.
type Run struct {
	ID       string
	Title    string
	Mode     tiling.Mode
	Pages    int
	Provider string
	Model    string
	Prompt   *prompts.Resolved
	// Dir is the run directory, empty without a home directory.
	Dir string

	analyzer *Analyzer
	doc      *ingest.Document
	sched    *pipeline.Scheduler
	recorder *llmcall.Recorder
	out      sink.Sink
	once     sync.Once
}

// Execute waits for any other run to finish, then processes every page,
// delivering tiles to out, and closes out with the summary. The run's
// resources are released when it returns.
func (r *Run) Execute(ctx context.Context, out sink.Sink) (pipeline.Summary, error) {
	defer r.Close()

	select {
	case r.analyzer.slot <- struct{}{}:
	case <-ctx.Done():
		sum := pipeline.Summary{RunID: r.ID}
		if err := out.Close(sum, ctx.Err()); err != nil {
			r.analyzer.logger.Warn("sink close failed", "run_id", r.ID, "error", err)
		}
		return sum, ctx.Err()
	}
	defer func() { <-r.analyzer.slot }()

	r.out = out
	err := sink.Drain(ctx, r.sched.Run(ctx, r.doc.Pages(ctx), r.Mode), out, r.sched.Summary)
	return r.sched.Summary(), err
}

// Emit forwards scheduler tiles to the sink given to Execute.
func (r *Run) Emit(ctx context.Context, ev pipeline.TileEvent) error {
	if r.out == nil {
		return nil
	}
	return r.out.Emit(ctx, ev)
}

// Close releases the document and call log. Execute calls it; callers
// that never execute a prepared run must call it themselves.
func (r *Run) Close() error {
	var err error
	r.once.Do(func() {
		err = r.doc.Close()
		if cerr := r.recorder.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
