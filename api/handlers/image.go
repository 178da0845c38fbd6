package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/api"
	"github.com/BaSui01/fusionflow/image"
	"github.com/BaSui01/fusionflow/types"
)

// =============================================================================
// 🖼️ 图像生成接口 Handler
// =============================================================================

// ImageGenerator 为 handler 依赖的生成能力，*image.Generator 实现了它
type ImageGenerator interface {
	api.EngineRegistry
	Generate(ctx context.Context, req *image.FusionRequest) (*image.GeneratedImage, error)
	GenerateBatch(ctx context.Context, reqs []*image.FusionRequest) []image.BatchResult
}

// ImageHandlerConfig 控制请求体大小与超时
type ImageHandlerConfig struct {
	// 未指定 timeout 时使用，同时也是允许的最大值
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxBatchSize   int
}

// DefaultImageHandlerConfig 返回默认配置
func DefaultImageHandlerConfig() ImageHandlerConfig {
	return ImageHandlerConfig{
		RequestTimeout: 2 * time.Minute,
		MaxBodyBytes:   32 << 20,
		MaxBatchSize:   8,
	}
}

// ImageHandler 图像生成处理器
type ImageHandler struct {
	generator ImageGenerator
	config    ImageHandlerConfig
	logger    *zap.Logger
}

// NewImageHandler 创建图像生成处理器
func NewImageHandler(generator ImageGenerator, config ImageHandlerConfig, logger *zap.Logger) *ImageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultImageHandlerConfig()
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	return &ImageHandler{
		generator: generator,
		config:    config,
		logger:    logger.With(zap.String("component", "image_handler")),
	}
}

// HandleGenerate 处理单次图像生成请求
// @Summary 生成图像
// @Description 根据文本指令与可选的输入图像生成一张图像，异步引擎会在请求内完成轮询
// @Tags 图像
// @Accept json
// @Produce json
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {object} image.GeneratedImage "生成结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "服务商错误"
// @Failure 504 {object} Response "任务超时"
// @Router /v1/images/generate [post]
func (h *ImageHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	timeout, fusion, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.withTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	img, err := h.generator.Generate(ctx, fusion)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Info("image generation",
		zap.String("id", img.ID),
		zap.String("engine", img.Engine),
		zap.String("request_id", requestID(r)),
		zap.Duration("duration", time.Since(start)),
	)
	WriteSuccess(w, r, img)
}

// HandleGenerateStream 以 SSE 推送轮询进度并在最后推送结果
// @Summary 流式生成图像
// @Tags 图像
// @Accept json
// @Produce text/event-stream
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Router /v1/images/generate/stream [post]
func (h *ImageHandler) HandleGenerateStream(w http.ResponseWriter, r *http.Request) {
	timeout, fusion, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	ctx, cancel := h.withTimeout(r.Context(), timeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.WriteHeader(http.StatusOK)

	send := func(event api.StreamEvent) {
		if err := writeSSE(w, event); err != nil {
			h.logger.Debug("failed to write event", zap.Error(err))
			return
		}
		flusher.Flush()
	}

	// 进度回调与 Generate 在同一个 goroutine 中执行
	fusion.OnProgress = func(ev image.ProgressEvent) {
		send(api.StreamEvent{Type: "progress", Progress: &ev})
	}

	img, err := h.generator.Generate(ctx, fusion)
	if err != nil {
		h.logger.Warn("stream generation failed",
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		send(api.StreamEvent{Type: "error", Error: api.NewErrorDetail(err)})
	} else {
		send(api.StreamEvent{Type: "result", Image: img})
	}

	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// HandleBatch 并发处理多个独立的生成请求
// @Summary 批量生成图像
// @Tags 图像
// @Accept json
// @Produce json
// @Param request body api.BatchGenerateRequest true "批量请求"
// @Success 200 {object} api.BatchGenerateResponse "批量结果"
// @Failure 400 {object} Response "无效请求"
// @Router /v1/images/generate/batch [post]
func (h *ImageHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)

	var req api.BatchGenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Requests) == 0 {
		WriteError(w, r, types.NewError(types.ErrValidation, "requests must not be empty"), h.logger)
		return
	}
	if len(req.Requests) > h.config.MaxBatchSize {
		WriteError(w, r, types.Errorf(types.ErrValidation, "at most %d requests per batch", h.config.MaxBatchSize), h.logger)
		return
	}

	timeout, err := api.ParseTimeout(req.Timeout)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	fusions := make([]*image.FusionRequest, len(req.Requests))
	for i := range req.Requests {
		fusion, err := req.Requests[i].ToFusionRequest()
		if err != nil {
			WriteError(w, r, types.Errorf(types.ErrValidation, "requests[%d]: %s", i, errorMessage(err)).WithCause(err), h.logger)
			return
		}
		fusions[i] = fusion
	}

	ctx, cancel := h.withTimeout(r.Context(), timeout)
	defer cancel()

	results := h.generator.GenerateBatch(ctx, fusions)
	resp := api.BatchGenerateResponse{Results: make([]api.BatchItem, len(results))}
	for i, res := range results {
		item := api.BatchItem{Index: i, Image: res.Image}
		if res.Err != nil {
			item.Error = api.NewErrorDetail(res.Err)
			resp.Failed++
		} else {
			resp.Succeeded++
		}
		resp.Results[i] = item
	}

	h.logger.Info("image batch",
		zap.Int("size", len(fusions)),
		zap.Int("succeeded", resp.Succeeded),
		zap.Int("failed", resp.Failed),
	)
	WriteSuccess(w, r, resp)
}

// HandleEngines 列出已配置的生成引擎
// @Summary 引擎列表
// @Tags 图像
// @Produce json
// @Success 200 {object} api.EngineListResponse "引擎列表"
// @Router /v1/images/engines [get]
func (h *ImageHandler) HandleEngines(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, api.EngineList(h.generator))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// decodeGenerate 校验并解码生成请求，失败时已写出错误响应
func (h *ImageHandler) decodeGenerate(w http.ResponseWriter, r *http.Request) (time.Duration, *image.FusionRequest, bool) {
	if !ValidateContentType(w, r, h.logger) {
		return 0, nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)

	var req api.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return 0, nil, false
	}
	timeout, err := api.ParseTimeout(req.Timeout)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return 0, nil, false
	}
	fusion, err := req.ToFusionRequest()
	if err != nil {
		WriteError(w, r, err, h.logger)
		return 0, nil, false
	}
	return timeout, fusion, true
}

// withTimeout 应用请求超时，超出服务端上限时截断
func (h *ImageHandler) withTimeout(ctx context.Context, requested time.Duration) (context.Context, context.CancelFunc) {
	timeout := h.config.RequestTimeout
	if requested > 0 && requested < timeout {
		timeout = requested
	}
	return context.WithTimeout(ctx, timeout)
}

func writeSSE(w http.ResponseWriter, event api.StreamEvent) error {
	// json.Marshal 转义消息内容，防止注入额外的 SSE 字段
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	return err
}

func errorMessage(err error) string {
	if typed, ok := types.AsError(err); ok {
		return typed.Message
	}
	return err.Error()
}
