package image

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/testutil"
	"github.com/BaSui01/fusionflow/types"
)

// fakeProvider records submissions and answers synchronously.
type fakeProvider struct {
	name  string
	calls atomic.Int32
	last  *GenerationRequest
	mu    sync.Mutex
	err   error
	job   *ProviderJob
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) SupportedAspectRatios() []string  { return []string{"1:1"} }
func (f *fakeProvider) SupportedOutputFormats() []string { return []string{"png"} }

func (f *fakeProvider) Submit(_ context.Context, req *GenerationRequest) (*ProviderJob, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.job != nil {
		return f.job, nil
	}
	return &ProviderJob{Complete: &ImageResult{Data: testutil.PNGBytes(99), MimeType: "image/png"}}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	polls    int
}

func (r *fakeRecorder) ObservePollAttempt(string, JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
}

func (r *fakeRecorder) ObserveGeneration(engine, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, engine+":"+outcome)
}

func TestGenerator_EmptyInstructionMakesNoCalls(t *testing.T) {
	provider := &fakeProvider{name: "fake"}
	recorder := &fakeRecorder{}
	g := NewGenerator(zap.NewNop(), WithProvider(provider), WithDefaultEngine("fake"), WithMetricsRecorder(recorder))

	for _, instruction := range []string{"", "   ", "\n\t"} {
		_, err := g.Generate(testutil.TestContext(t), &FusionRequest{
			Instruction: instruction,
			Base:        &ImageSlot{Image: mustRef(t, testutil.PNGBytes(1)), Intent: IntentReferenceObject},
		})
		assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	}

	assert.Zero(t, provider.calls.Load())
	assert.Equal(t, []string{"fake:validation_error", "fake:validation_error", "fake:validation_error"}, recorder.outcomes)
}

func TestGenerator_EmptyInstructionNoNetwork(t *testing.T) {
	stub, srv := newFluxStub(t)
	g := NewGenerator(zap.NewNop(), WithProvider(newTestFlux(srv.URL, &testutil.SleepRecorder{})))

	_, err := g.Generate(testutil.TestContext(t), &FusionRequest{Engine: "flux", Instruction: " "})

	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	assert.Zero(t, stub.submits.Load())
	assert.Zero(t, stub.polls.Load())
}

func TestBuildRequest(t *testing.T) {
	base := mustRef(t, testutil.PNGBytes(1))
	secondary := mustRef(t, testutil.JPEGBytes(2))

	t.Run("text only", func(t *testing.T) {
		req, err := BuildRequest(&FusionRequest{Instruction: " hello "})
		require.NoError(t, err)
		assert.Equal(t, "hello", req.Instruction)
		assert.Nil(t, req.Primary)
	})

	t.Run("base only skips resolution", func(t *testing.T) {
		req, err := BuildRequest(&FusionRequest{
			Instruction: "x",
			Base:        &ImageSlot{Image: base, Intent: IntentStyleTransferTarget},
		})
		require.NoError(t, err)
		assert.Same(t, base, req.Primary)
		assert.Empty(t, req.Styles)
		assert.Empty(t, req.Controls)
	})

	t.Run("two slots resolve intents", func(t *testing.T) {
		req, err := BuildRequest(&FusionRequest{
			Instruction: "x",
			Base:        &ImageSlot{Image: base, Intent: IntentReferenceObject},
			Secondary:   &ImageSlot{Image: secondary, Intent: IntentImageMergePrimary},
		})
		require.NoError(t, err)
		assert.Same(t, secondary, req.Primary)
		assert.Equal(t, []*ImageRef{base}, req.Controls)
	})

	t.Run("secondary without base", func(t *testing.T) {
		_, err := BuildRequest(&FusionRequest{
			Instruction: "x",
			Secondary:   &ImageSlot{Image: secondary, Intent: IntentReferenceObject},
		})
		assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	})

	t.Run("base intent required with secondary", func(t *testing.T) {
		_, err := BuildRequest(&FusionRequest{
			Instruction: "x",
			Base:        &ImageSlot{Image: base},
			Secondary:   &ImageSlot{Image: secondary, Intent: IntentReferenceObject},
		})
		assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := BuildRequest(nil)
		assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	})
}

func TestGenerator_UnknownEngine(t *testing.T) {
	g := NewGenerator(nil, WithProvider(&fakeProvider{name: "fake"}))

	_, err := g.Generate(testutil.TestContext(t), &FusionRequest{Engine: "dalle", Instruction: "x"})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	_, err = g.Generate(testutil.TestContext(t), &FusionRequest{Instruction: "x"})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation), "no default engine configured")
}

func TestGenerator_UnknownEngineLabelIsBounded(t *testing.T) {
	rec := &fakeRecorder{}
	g := NewGenerator(nil, WithProvider(&fakeProvider{name: "fake"}), WithMetricsRecorder(rec))

	for _, engine := range []string{"nope-0", "nope-1", "nope-2", ""} {
		_, err := g.Generate(testutil.TestContext(t), &FusionRequest{Engine: engine, Instruction: "x"})
		require.Error(t, err)
	}
	_, err := g.Generate(testutil.TestContext(t), &FusionRequest{Engine: "fake", Instruction: "x"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"unknown:validation_error",
		"unknown:validation_error",
		"unknown:validation_error",
		"unknown:validation_error",
		"fake:success",
	}, rec.outcomes)
}

func TestGenerator_SyncProvider(t *testing.T) {
	provider := &fakeProvider{name: "fake"}
	recorder := &fakeRecorder{}
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(zap.NewNop(),
		WithProvider(provider),
		WithDefaultEngine("fake"),
		WithMetricsRecorder(recorder),
		WithClock(func() time.Time { return created }),
	)

	img, err := g.Generate(testutil.TestContext(t), &FusionRequest{ID: "req-7", Instruction: "  brighten  "})

	require.NoError(t, err)
	assert.Equal(t, "req-7", img.ID)
	assert.Equal(t, "fake", img.Engine)
	assert.Equal(t, "brighten", img.Instruction)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, created, img.CreatedAt)
	assert.Equal(t, testutil.Base64(testutil.PNGBytes(99)), img.ImageBase64)
	assert.Equal(t, []string{"fake:success"}, recorder.outcomes)
	assert.Equal(t, []string{"fake"}, g.Engines())
}

func TestGenerator_PropagatesProviderError(t *testing.T) {
	upstream := types.NewError(types.ErrProviderHTTP, "boom").WithHTTPStatus(http.StatusBadGateway).WithProvider("fake")
	provider := &fakeProvider{name: "fake", err: upstream}
	g := NewGenerator(nil, WithProvider(provider), WithDefaultEngine("fake"))

	_, err := g.Generate(testutil.TestContext(t), &FusionRequest{Instruction: "x"})

	assert.Same(t, upstream, err)
	assert.EqualValues(t, 1, provider.calls.Load(), "no retry at this layer")
}

func TestGenerator_WrapsUntypedErrors(t *testing.T) {
	provider := &fakeProvider{name: "fake", err: fmt.Errorf("wrapped: %w", context.Canceled)}
	g := NewGenerator(nil, WithProvider(provider), WithDefaultEngine("fake"))

	_, err := g.Generate(testutil.TestContext(t), &FusionRequest{Instruction: "x"})

	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
}

func TestGenerator_PendingJobOnSyncProvider(t *testing.T) {
	provider := &fakeProvider{name: "fake", job: &ProviderJob{PollHandle: "http://example.invalid/poll"}}
	g := NewGenerator(nil, WithProvider(provider), WithDefaultEngine("fake"))

	_, err := g.Generate(testutil.TestContext(t), &FusionRequest{Instruction: "x"})

	assert.True(t, types.IsErrorCode(err, types.ErrProviderResponse))
}

func TestGenerator_CancelledBeforeSubmit(t *testing.T) {
	provider := &fakeProvider{name: "fake"}
	g := NewGenerator(nil, WithProvider(provider), WithDefaultEngine("fake"))

	_, err := g.Generate(testutil.CancelledContext(), &FusionRequest{Instruction: "x"})

	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
	assert.Zero(t, provider.calls.Load())
}

func TestGenerator_FluxEndToEnd(t *testing.T) {
	stub, srv := newFluxStub(t)
	stub.pollResponses = []string{
		`{"status":"Processing"}`,
		`{"status":"Processing"}`,
		`{"status":"Ready","result":{"sample":"http://{{host}}/results/sample.png"}}`,
	}
	sleeper := &testutil.SleepRecorder{}
	recorder := &fakeRecorder{}
	poller := NewPoller(DefaultPollConfig(), zap.NewNop(), WithSleepFunc(sleeper.Sleep), WithPollObserver(recorder))
	flux := NewFluxProvider(FluxConfig{APIKey: "bfl-key", BaseURL: srv.URL}, poller, zap.NewNop())
	g := NewGenerator(zap.NewNop(), WithProvider(flux), WithMetricsRecorder(recorder))

	base := mustRef(t, testutil.PNGBytes(1))
	secondary := mustRef(t, testutil.JPEGBytes(2))
	var statuses []JobStatus

	img, err := g.Generate(testutil.TestContext(t), &FusionRequest{
		Engine:      "flux",
		Instruction: "put the hat on the dog",
		Base:        &ImageSlot{Image: base, Intent: IntentReferenceObject},
		Secondary:   &ImageSlot{Image: secondary, Intent: IntentImageMergePrimary},
		Settings:    Settings{OutputFormat: "png", SafetyTolerance: 5},
		OnProgress:  func(e ProgressEvent) { statuses = append(statuses, e.Status) },
	})

	require.NoError(t, err)
	assert.Equal(t, "flux", img.Engine)
	assert.Equal(t, "image/png", img.MimeType)
	decoded, err := img.Decode()
	require.NoError(t, err)
	assert.Equal(t, testutil.PNGBytes(42), decoded)

	body := stub.submitBodies[0]
	assert.Equal(t, secondary.Base64(), body["input_image"])
	assert.Equal(t, []any{base.Base64()}, body["control_images"])
	assert.NotContains(t, body, "style_images")
	assert.EqualValues(t, 2, body["safety_tolerance"])

	assert.Equal(t, []JobStatus{JobSubmitted, JobProcessing, JobProcessing, JobReady}, statuses)
	assert.Equal(t, 2, sleeper.Count())
	assert.Equal(t, 3, recorder.polls)
	assert.Equal(t, []string{"flux:success"}, recorder.outcomes)
}

func TestGenerator_GenerateBatch(t *testing.T) {
	provider := &fakeProvider{name: "fake"}
	g := NewGenerator(nil, WithProvider(provider), WithDefaultEngine("fake"), WithMaxConcurrency(2))

	reqs := []*FusionRequest{
		{ID: "a", Instruction: "one"},
		{ID: "b", Instruction: ""},
		{ID: "c", Instruction: "three"},
		{ID: "d", Engine: "missing", Instruction: "four"},
	}
	results := g.GenerateBatch(testutil.TestContext(t), reqs)

	require.Len(t, results, 4)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "a", results[0].Image.ID)
	assert.True(t, types.IsErrorCode(results[1].Err, types.ErrValidation))
	require.NoError(t, results[2].Err)
	assert.Equal(t, "c", results[2].Image.ID)
	assert.True(t, types.IsErrorCode(results[3].Err, types.ErrValidation))
	assert.EqualValues(t, 2, provider.calls.Load())
}

func TestGenerator_ConfiguredEngines(t *testing.T) {
	g := NewGenerator(nil,
		WithProvider(NewFluxProvider(FluxConfig{APIKey: "k"}, nil, nil)),
		WithProvider(NewGeminiProvider(GeminiConfig{}, nil)),
		WithProvider(NewOpenAIProvider(OpenAIConfig{APIKey: "  "}, nil)),
		WithProvider(&fakeProvider{name: "fake"}),
	)

	assert.Equal(t, []string{"fake", "flux", "gemini", "openai"}, g.Engines())
	assert.Equal(t, []string{"fake", "flux"}, g.ConfiguredEngines())
}
