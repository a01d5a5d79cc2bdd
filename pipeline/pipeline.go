// Package pipeline orchestrates the verification flow: normalize inputs,
// consult the cache, generate a draft with a fast model, review it with a
// careful model, parse and repair the JSON, sanitize it, cache the result,
// and fan out price lookups for missing ingredients. Generator failure is
// fatal; validator failure degrades to the unvalidated draft.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/platewise/platewise/cache"
	"github.com/platewise/platewise/events"
	"github.com/platewise/platewise/execlog"
	"github.com/platewise/platewise/llm"
	"github.com/platewise/platewise/metrics"
	"github.com/platewise/platewise/normalize"
	"github.com/platewise/platewise/pricing"
	"github.com/platewise/platewise/recipe"
	"github.com/platewise/platewise/sanitize"
)

// Default per-stage deadlines.
const (
	DefaultGeneratorTimeout = 60 * time.Second
	DefaultValidatorTimeout = 45 * time.Second
)

// Pipeline runs verification requests end to end. All collaborators except
// the generator are optional; a nil collaborator disables that stage.
type Pipeline struct {
	generator Generator
	validator Validator
	sanitizer *sanitize.Sanitizer
	cache     *cache.Store
	lookup    *pricing.Lookup
	events    *events.Publisher
	logs      *execlog.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger

	generatorTimeout time.Duration
	validatorTimeout time.Duration
	modifiedDelta    int
	normalizeOpts    normalize.Options
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithValidator sets the careful-model reviewer.
func WithValidator(v Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithCache sets the verification cache.
func WithCache(c *cache.Store) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithLookup sets the price lookup fan-out.
func WithLookup(l *pricing.Lookup) Option {
	return func(p *Pipeline) { p.lookup = l }
}

// WithEvents sets the progress event publisher.
func WithEvents(pub *events.Publisher) Option {
	return func(p *Pipeline) { p.events = pub }
}

// WithExecLog sets the execution audit store.
func WithExecLog(s *execlog.Store) Option {
	return func(p *Pipeline) { p.logs = s }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithGeneratorTimeout overrides the generator stage deadline.
func WithGeneratorTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.generatorTimeout = d }
}

// WithValidatorTimeout overrides the validator stage deadline.
func WithValidatorTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.validatorTimeout = d }
}

// WithModifiedDelta overrides the correction-classification threshold.
func WithModifiedDelta(n int) Option {
	return func(p *Pipeline) { p.modifiedDelta = n }
}

// WithNormalizeOptions overrides the input normalization bounds.
func WithNormalizeOptions(opts normalize.Options) Option {
	return func(p *Pipeline) { p.normalizeOpts = opts }
}

// New returns a Pipeline around the given generator.
func New(generator Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		generator:        generator,
		sanitizer:        sanitize.New(),
		logger:           slog.Default(),
		generatorTimeout: DefaultGeneratorTimeout,
		validatorTimeout: DefaultValidatorTimeout,
		modifiedDelta:    DefaultModifiedDelta,
		normalizeOpts:    normalize.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunRequest is one verification request.
type RunRequest struct {
	// RequestID, when set, lets the caller subscribe to events before the
	// run starts. A fresh ID is minted when empty.
	RequestID string
	Items     []string
	TypeHint  string
	Kind      recipe.Kind
	// WithPrices enables the price lookup fan-out for missing ingredients.
	WithPrices bool
}

// Result is one completed verification run.
type Result struct {
	Response *recipe.Response             `json:"response"`
	Prices   map[string][]pricing.Product `json:"prices,omitempty"`
	Metadata Metadata                     `json:"metadata"`
}

// Run executes the request. Input validation failures are returned
// synchronously before any external call and leave no audit entry.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*Result, error) {
	kind := req.Kind
	if kind == "" {
		kind = recipe.KindRecipe
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}

	norm, err := normalize.Normalize(req.Items, req.TypeHint, p.normalizeOpts)
	if err != nil {
		return nil, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	start := time.Now()

	meta := Metadata{
		RequestID:      requestID,
		GeneratorModel: p.generator.Model(),
		Corrections:    []string{},
	}
	if p.validator != nil {
		meta.ValidatorModel = p.validator.Model()
	}

	p.begin(requestID, kind, norm, meta, start)
	p.publish(requestID, events.StageStarted, "verification started", nil, false, false)

	// Cache lookup short-circuits the whole run.
	var key string
	if p.cache != nil {
		key = cache.Key(kind, norm.Items, norm.TypeHint)
		meta.CacheKey = key
		if cached, ok := p.cache.Get(ctx, key); ok {
			meta.CacheHit = true
			meta.WasValidated = true
			meta.TotalMs = time.Since(start).Milliseconds()
			if p.metrics != nil {
				p.metrics.CacheHits.Inc()
			}
			p.publish(requestID, events.StageCacheHit, "served from cache", nil, false, false)
			p.publish(requestID, events.StageDone, "verification complete", meta, true, false)
			p.finalize(requestID, start, meta, "", "", nil)
			p.countRun(kind, "success")
			p.logger.Info("pipeline cache hit", "request_id", requestID, "kind", string(kind))
			return &Result{Response: cached, Metadata: meta}, nil
		}
		if p.metrics != nil {
			p.metrics.CacheMisses.Inc()
		}
	}

	// Generator stage. Any failure here is fatal for the run.
	p.publish(requestID, events.StageGenerating, "generating draft", nil, false, false)
	genStart := time.Now()
	genCtx, cancelGen := context.WithTimeout(ctx, p.generatorTimeout)
	draft, err := p.generator.GenerateDraft(genCtx, norm, kind)
	cancelGen()
	meta.GeneratorMs = time.Since(genStart).Milliseconds()
	p.observeStage("generate", time.Since(genStart))
	if err != nil {
		err = fmt.Errorf("generator (%s): %w", meta.GeneratorModel, err)
		return nil, p.fail(requestID, kind, start, meta, draft, "", err)
	}

	// Validator stage. Failure degrades to the unvalidated draft.
	validated := draft
	if p.validator != nil {
		p.publish(requestID, events.StageValidating, "validating draft", nil, false, false)
		valStart := time.Now()
		valCtx, cancelVal := context.WithTimeout(ctx, p.validatorTimeout)
		reviewed, verr := p.validator.ValidateAndCorrect(valCtx, draft, norm, kind)
		cancelVal()
		elapsed := time.Since(valStart)
		ms := elapsed.Milliseconds()
		meta.ValidatorMs = &ms
		p.observeStage("validate", elapsed)
		if verr != nil {
			meta.WasValidated = false
			meta.Corrections = append(meta.Corrections,
				fmt.Sprintf("validator unavailable (%v); response is the unvalidated draft", verr))
			if p.metrics != nil {
				p.metrics.ValidatorFallbacks.Inc()
			}
			p.logger.Warn("validator failed, falling back to draft",
				"request_id", requestID, "model", meta.ValidatorModel, "error", verr)
		} else {
			meta.WasValidated = true
			validated = reviewed
			if note := classifyCorrection(draft, validated, p.modifiedDelta); note != "" {
				meta.Corrections = append(meta.Corrections, note)
			}
		}
	}

	// Parse stage. Unrepairable output is fatal.
	p.publish(requestID, events.StageParsing, "parsing response", nil, false, false)
	resp, err := recipe.Parse(validated, kind)
	if err != nil {
		return nil, p.fail(requestID, kind, start, meta, draft, validated, err)
	}

	p.publish(requestID, events.StageSanitizing, "sanitizing response", nil, false, false)
	resp = p.sanitizer.Apply(resp)

	// Only validated results are cached; a draft fallback must not satisfy
	// later requests as if it had been reviewed.
	if p.cache != nil && meta.WasValidated {
		p.publish(requestID, events.StageCaching, "caching result", nil, false, false)
		p.cache.Put(ctx, key, resp)
	}

	// Price fan-out only runs when a recipe actually misses ingredients.
	var prices map[string][]pricing.Product
	if req.WithPrices && p.lookup != nil && kind == recipe.KindRecipe &&
		resp.Recipe != nil && len(resp.Recipe.MissingIngredients) > 0 {
		p.publish(requestID, events.StagePricing, "looking up prices", nil, false, false)
		lookupStart := time.Now()
		prices = p.lookup.LookupMany(ctx, resp.Recipe.MissingIngredients)
		meta.LookupMs = time.Since(lookupStart).Milliseconds()
		p.observeStage("pricing", time.Since(lookupStart))
		if p.metrics != nil {
			p.metrics.LookupItems.Add(float64(len(prices)))
			for _, products := range prices {
				if len(products) == 0 {
					p.metrics.LookupEmpty.Inc()
				}
			}
		}
	}

	meta.TotalMs = time.Since(start).Milliseconds()
	p.publish(requestID, events.StageDone, "verification complete", meta, true, false)
	p.finalize(requestID, start, meta, draft, validated, nil)
	p.countRun(kind, "success")
	p.logger.Info("pipeline run complete",
		"request_id", requestID,
		"kind", string(kind),
		"validated", meta.WasValidated,
		"total_ms", meta.TotalMs)

	return &Result{Response: resp, Prices: prices, Metadata: meta}, nil
}

// fail emits the terminal failure event, finalizes the audit entry, and
// returns the error annotated with elapsed time.
func (p *Pipeline) fail(requestID string, kind recipe.Kind, start time.Time, meta Metadata, draft, validated string, err error) error {
	meta.TotalMs = time.Since(start).Milliseconds()
	p.publish(requestID, events.StageFailed, err.Error(), nil, false, true)
	p.finalize(requestID, start, meta, draft, validated, err)
	p.countRun(kind, "failed")
	p.logger.Error("pipeline run failed",
		"request_id", requestID,
		"kind", string(kind),
		"total_ms", meta.TotalMs,
		"error", err)
	if llm.IsDeadline(err) {
		return fmt.Errorf("run %s timed out after %dms: %w", requestID, meta.TotalMs, err)
	}
	return fmt.Errorf("run %s failed after %dms: %w", requestID, meta.TotalMs, err)
}

func (p *Pipeline) publish(requestID string, stage events.Stage, msg string, payload any, complete, isErr bool) {
	if p.events == nil {
		return
	}
	p.events.Publish(events.Event{
		RequestID: requestID,
		Stage:     stage,
		Message:   msg,
		Payload:   payload,
		Complete:  complete,
		Error:     isErr,
		Timestamp: time.Now(),
	})
}

func (p *Pipeline) begin(requestID string, kind recipe.Kind, norm *normalize.Request, meta Metadata, start time.Time) {
	if p.logs == nil {
		return
	}
	err := p.logs.Begin(execlog.Entry{
		RequestID:      requestID,
		Kind:           string(kind),
		Items:          norm.Items,
		TypeHint:       norm.TypeHint,
		GeneratorModel: meta.GeneratorModel,
		ValidatorModel: meta.ValidatorModel,
		StartedAt:      start,
	})
	if err != nil {
		p.logger.Warn("execution log begin failed", "request_id", requestID, "error", err)
	}
}

func (p *Pipeline) finalize(requestID string, start time.Time, meta Metadata, draft, validated string, runErr error) {
	if p.logs == nil {
		return
	}
	err := p.logs.Finalize(requestID, func(e *execlog.Entry) {
		e.CompletedAt = time.Now()
		e.DraftText = draft
		e.ValidatedText = validated
		e.GeneratorMs = meta.GeneratorMs
		if meta.ValidatorMs != nil {
			e.ValidatorMs = *meta.ValidatorMs
		}
		e.TotalMs = time.Since(start).Milliseconds()
		e.Success = runErr == nil
		if runErr != nil {
			e.Error = runErr.Error()
		}
		e.Corrections = meta.Corrections
		e.CacheHit = meta.CacheHit
	})
	if err != nil {
		p.logger.Warn("execution log finalize failed", "request_id", requestID, "error", err)
	}
}

func (p *Pipeline) observeStage(stage string, d time.Duration) {
	p.metrics.ObserveStage(stage, d)
}

func (p *Pipeline) countRun(kind recipe.Kind, outcome string) {
	p.metrics.CountRun(string(kind), outcome)
}
