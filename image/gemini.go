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

	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/internal/tlsutil"
	"github.com/BaSui01/fusionflow/types"
)

// GeminiProvider implements image generation using Google Gemini's native
// multimodal capabilities. It answers synchronously with inline image data.
type GeminiProvider struct {
	cfg    GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a new Gemini image provider.
func NewGeminiProvider(cfg GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-image"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GeminiProvider{
		cfg:    cfg,
		client: tlsutil.NewProviderClient(timeout),
		logger: logger.With(zap.String("provider", "gemini")),
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Configured reports whether an API key is set.
func (p *GeminiProvider) Configured() bool { return strings.TrimSpace(p.cfg.APIKey) != "" }

func (p *GeminiProvider) SupportedAspectRatios() []string {
	return []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}
}

// SupportedOutputFormats is only validated; Gemini chooses the encoding.
func (p *GeminiProvider) SupportedOutputFormats() []string {
	return []string{"png", "jpeg"}
}

type geminiPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *geminiInline `json:"inlineData,omitempty"`
}

type geminiInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiImageRequest struct {
	Contents         []geminiContent       `json:"contents"`
	GenerationConfig *geminiImageGenConfig `json:"generationConfig,omitempty"`
}

type geminiImageGenConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	Seed               *int64             `json:"seed,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiImageResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

func inlinePart(img *ImageRef) geminiPart {
	return geminiPart{InlineData: &geminiInline{MimeType: img.MimeType(), Data: img.Base64()}}
}

func (p *GeminiProvider) buildRequest(req *GenerationRequest) geminiImageRequest {
	var parts []geminiPart
	if req.Primary != nil {
		parts = append(parts, inlinePart(req.Primary))
	}
	for _, img := range req.Controls {
		parts = append(parts, geminiPart{Text: "Reference image:"}, inlinePart(img))
	}
	for _, img := range req.Styles {
		parts = append(parts, geminiPart{Text: "Style reference image:"}, inlinePart(img))
	}
	parts = append(parts, geminiPart{Text: strings.TrimSpace(req.Instruction)})

	genCfg := &geminiImageGenConfig{
		ResponseModalities: []string{"IMAGE"},
		Seed:               req.Settings.Seed,
	}
	if req.Settings.AspectRatio != "" {
		genCfg.ImageConfig = &geminiImageConfig{AspectRatio: req.Settings.AspectRatio}
	}

	return geminiImageRequest{
		Contents:         []geminiContent{{Parts: parts, Role: "user"}},
		GenerationConfig: genCfg,
	}
}

// Submit generates an image with a single generateContent call.
func (p *GeminiProvider) Submit(ctx context.Context, req *GenerationRequest) (*ProviderJob, error) {
	if err := validateRequest(p, p.cfg.APIKey, req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "failed to encode gemini request").WithCause(err).WithProvider(p.Name())
	}
	// 凭证放在请求头中，传输错误携带的 URL 不含密钥
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(p.cfg.Model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "invalid gemini endpoint").WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

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

	var gResp geminiImageResponse
	if err := json.Unmarshal(data, &gResp); err != nil {
		return nil, types.NewError(types.ErrProviderResponse, "failed to decode gemini response").WithCause(err).WithProvider(p.Name())
	}

	for _, candidate := range gResp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || strings.TrimSpace(part.InlineData.Data) == "" {
				continue
			}
			mimeType := part.InlineData.MimeType
			if mimeType == "" {
				mimeType = defaultMimeType
			}
			ref, err := ParseImageRef(part.InlineData.Data, mimeType)
			if err != nil {
				return nil, types.NewError(types.ErrProviderResponse, "gemini returned invalid image data").WithCause(err).WithProvider(p.Name())
			}
			return &ProviderJob{Complete: &ImageResult{Data: ref.data, MimeType: ref.MimeType()}}, nil
		}
	}

	msg := "gemini response contains no image"
	if gResp.PromptFeedback != nil && gResp.PromptFeedback.BlockReason != "" {
		msg = fmt.Sprintf("%s (block reason: %s)", msg, gResp.PromptFeedback.BlockReason)
	} else if len(gResp.Candidates) > 0 && gResp.Candidates[0].FinishReason != "" {
		msg = fmt.Sprintf("%s (finish reason: %s)", msg, gResp.Candidates[0].FinishReason)
	}
	return nil, types.NewError(types.ErrProviderResponse, msg).WithProvider(p.Name())
}
