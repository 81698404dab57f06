package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/examtile/examtile/internal/llmcall"
	"github.com/examtile/examtile/internal/providers"
	"github.com/examtile/examtile/internal/ratelimit"
	"github.com/examtile/examtile/internal/tiling"
)

// Config configures a Scheduler. Client and Limiter are required.
type Config struct {
	Client  providers.InferenceClient
	Limiter ratelimit.Limiter
	Clock   ratelimit.Clock

	Instruction string
	PromptKey   string
	PromptHash  string
	Temperature float64

	// MaxAttempts bounds attempts per tile (default 1). Every attempt waits
	// on the limiter.
	MaxAttempts int
	RetryDelay  time.Duration
	HaltOnQuota bool

	ImageFormat tiling.Format
	JPEGQuality int
	MaxTileEdge int

	Observer TileObserver
	Recorder *llmcall.Recorder
	Logger   *slog.Logger
	RunID    string
}

// Scheduler sends the tiles of each page to the inference client in order.
// One Scheduler serves one run; its limiter state spans every page.
type Scheduler struct {
	cfg    Config
	clock  ratelimit.Clock
	logger *slog.Logger

	mu      sync.Mutex
	summary Summary
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Client == nil {
		return nil, errors.New("pipeline: inference client is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("pipeline: rate limiter is required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.ImageFormat == "" {
		cfg.ImageFormat = tiling.FormatPNG
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", cfg.RunID, "provider", cfg.Client.Name())

	s := &Scheduler{cfg: cfg, clock: clock, logger: logger}
	s.summary.RunID = cfg.RunID
	return s, nil
}

// RunID returns the run identifier.
func (s *Scheduler) RunID() string { return s.cfg.RunID }

// ProcessPage processes specs in order and returns exactly len(specs)
// results in the same order. Inference failures are recorded per tile. If
// ctx is cancelled, or a quota error occurs with HaltOnQuota set, the
// remaining tiles are returned as skipped along with the reason.
func (s *Scheduler) ProcessPage(ctx context.Context, page Page, specs []tiling.TileSpec) ([]TileResult, error) {
	results := make([]TileResult, 0, len(specs))
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return s.skipRest(results, page, specs[i:], err), err
		}

		res, img := s.processTile(ctx, page, spec)
		results = append(results, res)
		s.tally(res)
		s.emit(ctx, page, spec, img, res)

		if s.cfg.HaltOnQuota && providers.IsQuota(res.Err) {
			err := fmt.Errorf("page %d tile %s: %w", page.Index, spec.Label, ErrQuotaExhausted)
			return s.skipRest(results, page, specs[i+1:], err), err
		}
	}
	return results, nil
}

func (s *Scheduler) skipRest(results []TileResult, page Page, rest []tiling.TileSpec, reason error) []TileResult {
	for _, spec := range rest {
		res := TileResult{
			PageIndex: page.Index,
			Order:     spec.Order,
			Label:     spec.Label,
			Err:       reason,
			Error:     "skipped: " + reason.Error(),
			Skipped:   true,
		}
		results = append(results, res)
		s.tally(res)
	}
	return results
}

// processTile crops, encodes and sends one tile.
func (s *Scheduler) processTile(ctx context.Context, page Page, spec tiling.TileSpec) (TileResult, *image.RGBA) {
	res := TileResult{PageIndex: page.Index, Order: spec.Order, Label: spec.Label}
	logger := s.logger.With("page", page.Index, "tile", spec.Label)

	crop := tiling.Crop(page.Image, spec)
	if spec.Empty() {
		return failed(res, ErrEmptyTile), crop
	}

	data, err := tiling.Encode(tiling.Fit(crop, s.cfg.MaxTileEdge), s.cfg.ImageFormat, s.cfg.JPEGQuality)
	if err != nil {
		return failed(res, err), crop
	}

	req := &providers.InferRequest{
		Image:       data,
		MIMEType:    s.cfg.ImageFormat.MIMEType(),
		Instruction: s.cfg.Instruction,
		Temperature: s.cfg.Temperature,
		Label:       spec.Label,
	}

	start := s.clock.Now()
	out, err := retry.DoWithData(
		func() (*providers.InferResult, error) {
			res.Attempts++
			return s.attempt(ctx, page, spec, req, res.Attempts)
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.MaxAttempts)),
		retry.Delay(s.cfg.RetryDelay),
		retry.MaxDelay(time.Minute),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 < s.cfg.MaxAttempts {
				logger.Warn("retrying tile", "attempt", n+2, "error", err)
			}
		}),
	)
	res.Latency = s.clock.Now().Sub(start)

	if err != nil {
		logger.Warn("tile failed", "attempts", res.Attempts, "error", err)
		return failed(res, err), crop
	}

	res.Text = out.Text
	res.Tokens = out.TotalTokens
	res.RequestID = out.RequestID
	logger.Info("tile complete", "attempts", res.Attempts, "tokens", out.TotalTokens, "latency", res.Latency)
	return res, crop
}

// attempt makes one rate-limited request and records it.
func (s *Scheduler) attempt(ctx context.Context, page Page, spec tiling.TileSpec, req *providers.InferRequest, n int) (*providers.InferResult, error) {
	if err := s.cfg.Limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	req.RequestID = uuid.New().String()
	started := s.clock.Now()
	out, err := s.cfg.Client.Infer(ctx, req)
	latency := s.clock.Now().Sub(started)
	s.cfg.Limiter.Done()

	temp := s.cfg.Temperature
	s.cfg.Recorder.RecordCall(llmcall.FromResult(out, err, llmcall.RecordOptions{
		RunID:       s.cfg.RunID,
		Page:        page.Index,
		Tile:        spec.Label,
		Attempt:     n,
		PromptKey:   s.cfg.PromptKey,
		PromptHash:  s.cfg.PromptHash,
		Provider:    s.cfg.Client.Name(),
		Model:       s.cfg.Client.Model(),
		Temperature: &temp,
		Started:     started,
		Latency:     latency,
	}))

	if err == nil {
		return out, nil
	}

	ie, ok := providers.AsInferenceError(err)
	if !ok {
		ie = &providers.InferenceError{Provider: s.cfg.Client.Name(), Kind: providers.KindTransport, Err: err}
	}
	if ie.Kind == providers.KindQuota {
		s.cfg.Limiter.Record429(ie.RetryAfter)
	}
	if !ie.Retryable() || s.cfg.HaltOnQuota && ie.Kind == providers.KindQuota {
		return nil, retry.Unrecoverable(ie)
	}
	return nil, ie
}

func (s *Scheduler) emit(ctx context.Context, page Page, spec tiling.TileSpec, img *image.RGBA, res TileResult) {
	if s.cfg.Observer == nil {
		return
	}
	ev := TileEvent{PageIndex: page.Index, Spec: spec, Image: img, Result: res}
	if err := s.cfg.Observer.Emit(ctx, ev); err != nil {
		s.logger.Warn("observer failed", "page", page.Index, "tile", spec.Label, "error", err)
	}
}

func failed(res TileResult, err error) TileResult {
	res.Err = err
	res.Error = err.Error()
	if ie, ok := providers.AsInferenceError(err); ok {
		res.ErrorKind = string(ie.Kind)
	}
	return res
}
