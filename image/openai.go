package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/internal/tlsutil"
	"github.com/BaSui01/fusionflow/types"
)

// OpenAIProvider使用OpenAI图像接口执行图像生成.
// 响应可能返回内联 base64 或需要二次下载的 URL.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// 新OpenAIProvider创建了新的OpenAI图像提供商.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-image-1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIProvider{
		cfg:    cfg,
		client: tlsutil.NewProviderClient(timeout),
		logger: logger.With(zap.String("provider", "openai")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Configured reports whether an API key is set.
func (p *OpenAIProvider) Configured() bool { return strings.TrimSpace(p.cfg.APIKey) != "" }

func (p *OpenAIProvider) SupportedAspectRatios() []string {
	return []string{"1:1", "3:2", "2:3", "auto"}
}

func (p *OpenAIProvider) SupportedOutputFormats() []string {
	return []string{"png", "jpeg", "webp"}
}

var openAISizes = map[string]string{
	"1:1":  "1024x1024",
	"3:2":  "1536x1024",
	"2:3":  "1024x1536",
	"auto": "auto",
}

type openAIGenerateRequest struct {
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	N            int    `json:"n,omitempty"`
	Size         string `json:"size,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

type openAIImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// Submit generates from text via /v1/images/generations, or edits the input
// images via /v1/images/edits when any image is present.
func (p *OpenAIProvider) Submit(ctx context.Context, req *GenerationRequest) (*ProviderJob, error) {
	if err := validateRequest(p, p.cfg.APIKey, req); err != nil {
		return nil, err
	}

	var (
		httpReq *http.Request
		err     error
	)
	if req.Primary == nil && len(req.Controls) == 0 && len(req.Styles) == 0 {
		httpReq, err = p.newGenerateRequest(ctx, req)
	} else {
		httpReq, err = p.newEditRequest(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

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

	var oResp openAIImageResponse
	if err := json.Unmarshal(data, &oResp); err != nil {
		return nil, types.NewError(types.ErrProviderResponse, "failed to decode openai image response").WithCause(err).WithProvider(p.Name())
	}
	if len(oResp.Data) == 0 {
		return nil, types.NewError(types.ErrProviderResponse, "openai response contains no image").WithProvider(p.Name())
	}

	first := oResp.Data[0]
	switch {
	case strings.TrimSpace(first.B64JSON) != "":
		ref, err := ParseImageRef(first.B64JSON, MimeTypeFromFormat(req.Settings.OutputFormat))
		if err != nil {
			return nil, types.NewError(types.ErrProviderResponse, "openai returned invalid image data").WithCause(err).WithProvider(p.Name())
		}
		return &ProviderJob{Complete: &ImageResult{Data: ref.data, MimeType: ref.MimeType()}}, nil
	case strings.TrimSpace(first.URL) != "":
		result, err := fetchImage(ctx, p.client, p.Name(), strings.TrimSpace(first.URL))
		if err != nil {
			return nil, err
		}
		return &ProviderJob{Complete: result}, nil
	}
	return nil, types.NewError(types.ErrProviderResponse, "openai response has neither b64_json nor url").WithProvider(p.Name())
}

func (p *OpenAIProvider) newGenerateRequest(ctx context.Context, req *GenerationRequest) (*http.Request, error) {
	body := openAIGenerateRequest{
		Model:        p.cfg.Model,
		Prompt:       strings.TrimSpace(req.Instruction),
		N:            1,
		Size:         openAISizes[req.Settings.AspectRatio],
		OutputFormat: strings.ToLower(req.Settings.OutputFormat),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "failed to encode openai request").WithCause(err).WithProvider(p.Name())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/images/generations",
		bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "invalid openai endpoint").WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (p *OpenAIProvider) newEditRequest(ctx context.Context, req *GenerationRequest) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	images := make([]*ImageRef, 0, 1+len(req.Controls)+len(req.Styles))
	if req.Primary != nil {
		images = append(images, req.Primary)
	}
	images = append(images, req.Controls...)
	images = append(images, req.Styles...)

	for i, img := range images {
		if err := writeImagePart(writer, i, img); err != nil {
			return nil, types.NewError(types.ErrValidation, "failed to encode image part").WithCause(err).WithProvider(p.Name())
		}
	}

	_ = writer.WriteField("model", p.cfg.Model)
	_ = writer.WriteField("prompt", strings.TrimSpace(req.Instruction))
	_ = writer.WriteField("n", "1")
	if size := openAISizes[req.Settings.AspectRatio]; size != "" {
		_ = writer.WriteField("size", size)
	}
	if f := strings.ToLower(req.Settings.OutputFormat); f != "" {
		_ = writer.WriteField("output_format", f)
	}
	if err := writer.Close(); err != nil {
		return nil, types.NewError(types.ErrValidation, "failed to finalize multipart body").WithCause(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/images/edits",
		&buf)
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "invalid openai endpoint").WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return httpReq, nil
}

func writeImagePart(w *multipart.Writer, index int, img *ImageRef) error {
	ext := strings.TrimPrefix(img.MimeType(), "image/")
	if ext == "jpeg" {
		ext = "jpg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="image_%d.%s"`, index, ext))
	h.Set("Content-Type", img.MimeType())
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, bytes.NewReader(img.data))
	return err
}
