package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/internal/tlsutil"
	"github.com/BaSui01/fusionflow/types"
)

// maxSafetyTolerance is the upstream ceiling for image-to-image requests.
const maxSafetyTolerance = 2

// FluxProvider implements image generation using Black Forest Labs Flux.
// Submission is asynchronous: the provider returns a polling URL that is
// checked until the job is ready.
// API Docs: https://docs.bfl.ai/quick_start/generating_images
type FluxProvider struct {
	cfg    FluxConfig
	client *http.Client
	poller *Poller
	logger *zap.Logger
}

// NewFluxProvider creates a new Flux image provider. A nil poller gets the
// default poll configuration.
func NewFluxProvider(cfg FluxConfig, poller *Poller, logger *zap.Logger) *FluxProvider {
	if cfg.BaseURL == "" {
		// Regional: api.eu.bfl.ai (EU), api.us.bfl.ai (US)
		cfg.BaseURL = "https://api.bfl.ai"
	}
	if cfg.Model == "" {
		// Available: flux-kontext-pro, flux-kontext-max, flux-pro-1.1, flux-pro-1.1-ultra
		cfg.Model = "flux-kontext-pro"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if poller == nil {
		poller = NewPoller(DefaultPollConfig(), logger)
	}

	return &FluxProvider{
		cfg:    cfg,
		client: tlsutil.NewProviderClient(timeout),
		poller: poller,
		logger: logger.With(zap.String("provider", "flux")),
	}
}

func (p *FluxProvider) Name() string { return "flux" }

// Configured reports whether an API key is set.
func (p *FluxProvider) Configured() bool { return strings.TrimSpace(p.cfg.APIKey) != "" }

func (p *FluxProvider) SupportedAspectRatios() []string {
	return []string{"21:9", "16:9", "3:2", "4:3", "1:1", "3:4", "2:3", "9:16", "9:21"}
}

func (p *FluxProvider) SupportedOutputFormats() []string {
	return []string{"jpeg", "png"}
}

type fluxRequest struct {
	Prompt           string   `json:"prompt"`
	InputImage       string   `json:"input_image,omitempty"`
	ControlImages    []string `json:"control_images,omitempty"`
	StyleImages      []string `json:"style_images,omitempty"`
	AspectRatio      string   `json:"aspect_ratio,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	OutputFormat     string   `json:"output_format"`
	PromptUpsampling bool     `json:"prompt_upsampling"`
	SafetyTolerance  int      `json:"safety_tolerance"`
}

// ClampSafetyTolerance limits tolerance to [0, 2].
func ClampSafetyTolerance(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxSafetyTolerance {
		return maxSafetyTolerance
	}
	return v
}

func (p *FluxProvider) outputFormat(req *GenerationRequest) string {
	if f := strings.ToLower(req.Settings.OutputFormat); f != "" {
		return f
	}
	return "jpeg"
}

func (p *FluxProvider) buildRequest(req *GenerationRequest) fluxRequest {
	body := fluxRequest{
		Prompt:           strings.TrimSpace(req.Instruction),
		AspectRatio:      req.Settings.AspectRatio,
		Seed:             req.Settings.Seed,
		OutputFormat:     p.outputFormat(req),
		PromptUpsampling: req.Settings.PromptUpsampling,
		SafetyTolerance:  ClampSafetyTolerance(req.Settings.SafetyTolerance),
	}
	if req.Primary != nil {
		body.InputImage = req.Primary.Base64()
	}
	for _, img := range req.Controls {
		body.ControlImages = append(body.ControlImages, img.Base64())
	}
	for _, img := range req.Styles {
		body.StyleImages = append(body.StyleImages, img.Base64())
	}
	return body
}

// Submit sends the generation job.
// Endpoint: POST /v1/{model} (e.g., /v1/flux-kontext-pro)
// Auth: x-key header
func (p *FluxProvider) Submit(ctx context.Context, req *GenerationRequest) (*ProviderJob, error) {
	if err := validateRequest(p, p.cfg.APIKey, req); err != nil {
		return nil, err
	}

	body := p.buildRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "failed to encode flux request").WithCause(err).WithProvider(p.Name())
	}
	endpoint := fmt.Sprintf("%s/v1/%s", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "invalid flux endpoint").WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("x-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("accept", "application/json")

	resp, err := doRequest(ctx, p.client, p.Name(), httpReq)
	if err != nil {
		return nil, err
	}
	data, err := readBody(ctx, p.Name(), resp)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, httpStatusError(p.Name(), resp.StatusCode, data)
	}

	return p.parseSubmitResponse(ctx, data, body.OutputFormat)
}

func (p *FluxProvider) parseSubmitResponse(ctx context.Context, data []byte, format string) (*ProviderJob, error) {
	if gjson.ValidBytes(data) {
		parsed := gjson.ParseBytes(data)
		if parsed.IsObject() {
			if result, ok, err := inlineImage(parsed, format); ok {
				if err != nil {
					return nil, err.WithProvider(p.Name())
				}
				return &ProviderJob{Complete: result, OutputFormat: format}, nil
			}
			if handle := p.pollHandle(parsed); handle != "" {
				p.logger.Debug("flux job submitted",
					zap.String("id", parsed.Get("id").String()),
					zap.String("polling_url", handle),
				)
				return &ProviderJob{PollHandle: handle, OutputFormat: format}, nil
			}
		}
	}

	if imageURL, ok := bodyAsURL(data); ok {
		result, err := fetchImage(ctx, p.client, p.Name(), imageURL)
		if err != nil {
			return nil, err
		}
		return &ProviderJob{Complete: result, OutputFormat: format}, nil
	}

	return nil, types.NewError(types.ErrProviderResponse, "flux response has no polling url, image data or image url").
		WithProvider(p.Name())
}

func (p *FluxProvider) pollHandle(parsed gjson.Result) string {
	if u := strings.TrimSpace(parsed.Get("polling_url").String()); u != "" {
		return u
	}
	// Fallback for legacy endpoints
	if id := strings.TrimSpace(parsed.Get("id").String()); id != "" {
		return fmt.Sprintf("%s/v1/get_result?id=%s", strings.TrimRight(p.cfg.BaseURL, "/"), url.QueryEscape(id))
	}
	return ""
}

var inlineImagePaths = []string{"result.b64_json", "b64_json", "result.image_base64", "image_base64"}

// inlineImage decodes the first inline base64 payload found in parsed.
func inlineImage(parsed gjson.Result, format string) (*ImageResult, bool, *types.Error) {
	for _, path := range inlineImagePaths {
		v := parsed.Get(path)
		if v.Type != gjson.String || strings.TrimSpace(v.String()) == "" {
			continue
		}
		ref, err := ParseImageRef(v.String(), MimeTypeFromFormat(format))
		if err != nil {
			return nil, true, types.NewError(types.ErrProviderResponse, "inline image data is not valid base64").WithCause(err)
		}
		return &ImageResult{Data: ref.data, MimeType: ref.MimeType()}, true, nil
	}
	return nil, false, nil
}

// Await polls a pending job until it is ready, failed or timed out.
func (p *FluxProvider) Await(ctx context.Context, job *ProviderJob, progress ProgressFunc) (*ImageResult, error) {
	if job == nil {
		return nil, types.NewError(types.ErrProviderResponse, "no job to await").WithProvider(p.Name())
	}
	if job.Complete != nil {
		return job.Complete, nil
	}
	if job.PollHandle == "" {
		return nil, types.NewError(types.ErrProviderResponse, "pending job has no poll handle").WithProvider(p.Name())
	}
	return p.poller.Run(ctx, p.Name(), p.pollStep(job), progress)
}

// pollStep returns the per-attempt evaluator for a pending flux job.
func (p *FluxProvider) pollStep(job *ProviderJob) PollStep {
	return func(ctx context.Context, attempt int) (JobStatus, *ImageResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, job.PollHandle, nil)
		if err != nil {
			return JobFailed, nil, types.NewError(types.ErrProviderResponse, "invalid polling url").WithCause(err).WithProvider(p.Name())
		}
		httpReq.Header.Set("x-key", p.cfg.APIKey)
		httpReq.Header.Set("accept", "application/json")

		resp, err := doRequest(ctx, p.client, p.Name(), httpReq)
		if err != nil {
			// the job may still be in flight upstream
			return JobMalformed, nil, err
		}
		data, err := readBody(ctx, p.Name(), resp)
		if err != nil {
			return JobMalformed, nil, err
		}
		if !isSuccess(resp.StatusCode) {
			return JobFailed, nil, httpStatusError(p.Name(), resp.StatusCode, data)
		}

		return p.evaluatePoll(ctx, data, job.OutputFormat)
	}
}

func (p *FluxProvider) evaluatePoll(ctx context.Context, data []byte, format string) (JobStatus, *ImageResult, error) {
	if imageURL, ok := bodyAsURL(data); ok {
		return p.fetchReady(ctx, imageURL, format)
	}
	if !gjson.ValidBytes(data) {
		return JobMalformed, nil, nil
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return JobMalformed, nil, nil
	}

	if result, ok, err := inlineImage(parsed, format); ok {
		if err != nil {
			return JobMalformed, nil, err.WithProvider(p.Name())
		}
		return JobReady, result, nil
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Get("status").String())) {
	case "ready":
		sample := strings.TrimSpace(parsed.Get("result.sample").String())
		if sample == "" {
			sample = strings.TrimSpace(parsed.Get("result.url").String())
		}
		if sample == "" {
			return JobMalformed, nil, nil
		}
		return p.fetchReady(ctx, sample, format)
	case "processing", "pending", "queued":
		return JobProcessing, nil, nil
	case "failed", "error", "request moderated", "content moderated", "task not found":
		msg := extractErrorMessage([]byte(parsed.Raw))
		if msg == "" {
			msg = "flux generation failed: " + parsed.Get("status").String()
		}
		return JobFailed, nil, types.NewError(types.ErrJobFailed, msg).WithProvider(p.Name())
	}
	return JobMalformed, nil, nil
}

// fetchReady downloads the signed result URL. The MIME type follows the
// requested output format; signed URLs expire after ~10 minutes.
func (p *FluxProvider) fetchReady(ctx context.Context, imageURL, format string) (JobStatus, *ImageResult, error) {
	result, err := fetchImage(ctx, p.client, p.Name(), imageURL)
	if err != nil {
		return JobFailed, nil, err
	}
	result.MimeType = MimeTypeFromFormat(format)
	return JobReady, result, nil
}
