package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/fusionflow/types"
)

// maxResponseBytes caps any single provider response or image download.
const maxResponseBytes = 64 << 20

// doRequest executes req and classifies transport failures.
func doRequest(ctx context.Context, client *http.Client, provider string, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := types.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr.WithProvider(provider)
		}
		return nil, types.NewError(types.ErrNetwork, fmt.Sprintf("%s request failed", provider)).
			WithCause(err).
			WithProvider(provider).
			WithRetryable(true)
	}
	return resp, nil
}

// readBody reads and closes the response body.
func readBody(ctx context.Context, provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := types.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr.WithProvider(provider)
		}
		return nil, types.NewError(types.ErrNetwork, "failed to read response body").
			WithCause(err).
			WithProvider(provider)
	}
	return data, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// httpStatusError builds a PROVIDER_HTTP_ERROR carrying the upstream status.
func httpStatusError(provider string, status int, body []byte) *types.Error {
	msg := extractErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return types.NewError(types.ErrProviderHTTP, msg).
		WithHTTPStatus(status).
		WithProvider(provider).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}

// extractErrorMessage 尽力从 JSON 错误体中提取可读信息.
func extractErrorMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	parsed := gjson.ParseBytes(body)
	for _, path := range []string{"detail", "message", "error.message", "detail.0.msg", "error"} {
		v := parsed.Get(path)
		if v.Exists() && v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func isHTTPURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// bodyAsURL returns the URL when the body is a bare URL or a JSON string
// holding one.
func bodyAsURL(body []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if gjson.Valid(trimmed) {
		v := gjson.Parse(trimmed)
		if v.Type != gjson.String {
			return "", false
		}
		trimmed = strings.TrimSpace(v.String())
	}
	if isHTTPURL(trimmed) && !strings.ContainsAny(trimmed, " \n\t") {
		return trimmed, true
	}
	return "", false
}

// fetchImage downloads an image URL. Signed result URLs need no credentials.
func fetchImage(ctx context.Context, client *http.Client, provider, imageURL string) (*ImageResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrProviderResponse, "invalid image URL").
			WithCause(err).
			WithProvider(provider)
	}

	resp, err := doRequest(ctx, client, provider, httpReq)
	if err != nil {
		return nil, err
	}
	data, err := readBody(ctx, provider, resp)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, httpStatusError(provider, resp.StatusCode, data)
	}
	if len(data) == 0 {
		return nil, types.NewError(types.ErrProviderResponse, "fetched image is empty").WithProvider(provider)
	}

	return &ImageResult{
		Data:     data,
		MimeType: ResolveFetchedMimeType(resp.Header.Get("Content-Type"), imageURL),
	}, nil
}

// validateRequest runs the checks every adapter performs before any I/O.
func validateRequest(p Provider, apiKey string, req *GenerationRequest) error {
	if strings.TrimSpace(apiKey) == "" {
		return types.NewError(types.ErrConfig, "api key is not configured").WithProvider(p.Name())
	}
	if req == nil || strings.TrimSpace(req.Instruction) == "" {
		return types.NewError(types.ErrValidation, "instruction is required").WithProvider(p.Name())
	}
	if ar := req.Settings.AspectRatio; ar != "" && !slices.Contains(p.SupportedAspectRatios(), ar) {
		return types.Errorf(types.ErrValidation, "aspect ratio %q is not supported", ar).WithProvider(p.Name())
	}
	if f := req.Settings.OutputFormat; f != "" && !slices.Contains(p.SupportedOutputFormats(), strings.ToLower(f)) {
		return types.Errorf(types.ErrValidation, "output format %q is not supported", f).WithProvider(p.Name())
	}
	return nil
}

// asTypedError makes sure anything leaving an adapter is a *types.Error.
func asTypedError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewCancelledError(err).WithProvider(provider)
	}
	return types.NewError(types.ErrNetwork, err.Error()).WithCause(err).WithProvider(provider)
}
