package image

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/fusionflow/types"
)

const tracerName = "github.com/BaSui01/fusionflow/image"

// UnknownEngineLabel replaces unregistered engine names in metrics.
const UnknownEngineLabel = "unknown"

// MetricsRecorder receives generation and poll metrics.
type MetricsRecorder interface {
	PollObserver
	ObserveGeneration(engine, outcome string, duration time.Duration)
}

// FusionRequest is what callers hand to Generator.Generate. Base may be nil
// for text-to-image; Secondary is only honoured together with Base.
type FusionRequest struct {
	ID          string
	Engine      string
	Instruction string
	Base        *ImageSlot
	Secondary   *ImageSlot
	Settings    Settings
	OnProgress  ProgressFunc
}

// Generator 为图像生成的统一入口: 选择服务商、解析图像意图、提交并归一化结果.
type Generator struct {
	providers      map[string]Provider
	defaultEngine  string
	recorder       MetricsRecorder
	tracer         trace.Tracer
	now            func() time.Time
	maxConcurrency int
	logger         *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithProvider registers an adapter under its Name.
func WithProvider(p Provider) GeneratorOption {
	return func(g *Generator) {
		if p != nil {
			g.providers[p.Name()] = p
		}
	}
}

// WithDefaultEngine sets the engine used when a request names none.
func WithDefaultEngine(name string) GeneratorOption {
	return func(g *Generator) { g.defaultEngine = name }
}

// WithMetricsRecorder attaches a metrics sink.
func WithMetricsRecorder(r MetricsRecorder) GeneratorOption {
	return func(g *Generator) { g.recorder = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithMaxConcurrency bounds GenerateBatch parallelism.
func WithMaxConcurrency(n int) GeneratorOption {
	return func(g *Generator) { g.maxConcurrency = n }
}

// NewGenerator creates a generator with the given adapters.
func NewGenerator(logger *zap.Logger, opts ...GeneratorOption) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		providers:      make(map[string]Provider),
		tracer:         otel.Tracer(tracerName),
		now:            time.Now,
		maxConcurrency: 4,
		logger:         logger.With(zap.String("component", "image_generator")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Engines returns the registered engine identifiers in sorted order.
func (g *Generator) Engines() []string {
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfiguredEngines returns the engines whose adapters have credentials.
// Adapters that do not implement Configurable count as configured.
func (g *Generator) ConfiguredEngines() []string {
	var out []string
	for _, name := range g.Engines() {
		if c, ok := g.providers[name].(Configurable); ok && !c.Configured() {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Provider looks up an adapter by engine identifier.
func (g *Generator) Provider(engine string) (Provider, bool) {
	p, ok := g.providers[engine]
	return p, ok
}

// DefaultEngine returns the engine used for requests without one.
func (g *Generator) DefaultEngine() string { return g.defaultEngine }

// BuildRequest validates req and derives the provider-neutral request.
// Intent resolution only runs when a second slot is populated.
func BuildRequest(req *FusionRequest) (*GenerationRequest, error) {
	if req == nil {
		return nil, types.NewError(types.ErrValidation, "request is required")
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, types.NewError(types.ErrValidation, "instruction is required")
	}

	out := &GenerationRequest{
		Instruction: instruction,
		Settings:    req.Settings,
		OnProgress:  req.OnProgress,
	}

	hasBase := req.Base != nil && req.Base.Image != nil
	hasSecondary := req.Secondary != nil && req.Secondary.Image != nil

	switch {
	case hasSecondary && !hasBase:
		return nil, types.NewError(types.ErrValidation, "a base image is required when a secondary image is given")
	case hasSecondary:
		if req.Base.Intent == "" {
			return nil, types.NewError(types.ErrValidation, "base image intent is required")
		}
		res := ResolveIntent(*req.Base, req.Secondary)
		out.Primary = res.Primary
		out.Controls = res.Controls
		out.Styles = res.Styles
	case hasBase:
		out.Primary = req.Base.Image
	}
	return out, nil
}

// Generate runs one request end to end. The first error is returned as is;
// nothing is retried here and there is no fallback to another engine.
func (g *Generator) Generate(ctx context.Context, req *FusionRequest) (img *GeneratedImage, err error) {
	start := g.now()
	engine := g.defaultEngine
	if req != nil && req.Engine != "" {
		engine = req.Engine
	}
	// 指标与 span 只使用已注册的引擎名，未知取值统一为 unknown
	label := engine
	if _, ok := g.providers[engine]; !ok {
		label = UnknownEngineLabel
	}

	ctx, span := g.tracer.Start(ctx, "image.Generate", trace.WithAttributes(
		attribute.String("image.engine", label),
	))
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = strings.ToLower(string(types.GetErrorCode(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if g.recorder != nil {
			g.recorder.ObserveGeneration(label, outcome, g.now().Sub(start))
		}
	}()

	genReq, err := BuildRequest(req)
	if err != nil {
		return nil, err
	}
	provider, ok := g.providers[engine]
	if !ok {
		if engine == "" {
			return nil, types.NewError(types.ErrValidation, "engine is required")
		}
		return nil, types.Errorf(types.ErrValidation, "unknown engine %q", engine)
	}
	if cErr := types.FromContext(ctx); cErr != nil {
		return nil, cErr.WithProvider(engine)
	}

	span.SetAttributes(
		attribute.Bool("image.has_primary", genReq.Primary != nil),
		attribute.Int("image.controls", len(genReq.Controls)),
		attribute.Int("image.styles", len(genReq.Styles)),
	)

	job, err := provider.Submit(ctx, genReq)
	if err != nil {
		return nil, asTypedError(engine, err)
	}

	result := job.Complete
	if result == nil {
		async, ok := provider.(AsyncProvider)
		if !ok || !job.Pending() {
			return nil, types.NewError(types.ErrProviderResponse, "provider returned neither an image nor a poll handle").WithProvider(engine)
		}
		span.AddEvent("job.pending")
		result, err = async.Await(ctx, job, genReq.OnProgress)
		if err != nil {
			return nil, asTypedError(engine, err)
		}
	}

	id := ""
	if req != nil {
		id = req.ID
	}
	img, err = Normalize(result, genReq.Instruction, engine, id, g.now())
	if err != nil {
		return nil, err
	}

	g.logger.Info("image generated",
		zap.String("id", img.ID),
		zap.String("engine", engine),
		zap.String("mime_type", img.MimeType),
		zap.Int("controls", len(genReq.Controls)),
		zap.Int("styles", len(genReq.Styles)),
		zap.Duration("duration", g.now().Sub(start)),
	)
	return img, nil
}

// BatchResult pairs one batch entry with its outcome.
type BatchResult struct {
	Image *GeneratedImage
	Err   error
}

// GenerateBatch runs independent requests concurrently. Failures do not
// cancel the other requests; results keep the input order.
func (g *Generator) GenerateBatch(ctx context.Context, reqs []*FusionRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))

	eg := new(errgroup.Group)
	if g.maxConcurrency > 0 {
		eg.SetLimit(g.maxConcurrency)
	}
	for i, req := range reqs {
		eg.Go(func() error {
			img, err := g.Generate(ctx, req)
			results[i] = BatchResult{Image: img, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	return results
}
