package api

import (
	"strings"
	"time"

	"github.com/BaSui01/fusionflow/image"
	"github.com/BaSui01/fusionflow/types"
)

// =============================================================================
// 图像生成类型
// =============================================================================

// ImageInput 表示请求中携带的一张输入图像。
// @Description 输入图像结构
type ImageInput struct {
	// Base64 编码的图像数据，也接受 data URI
	Data string `json:"data" binding:"required"`
	// 图像 MIME 类型，缺省时根据内容嗅探
	MimeType string `json:"mime_type,omitempty" example:"image/png"`
	// 图像用途（reference_object、image_merge_primary、image_merge_secondary、style_transfer_target、object_replacement）
	Intent string `json:"intent,omitempty" example:"reference_object"`
}

// GenerateRequest 表示一次图像生成请求。
// @Description 图像生成请求结构
type GenerateRequest struct {
	// 调用方提供的结果 ID，缺省时自动生成
	ID string `json:"id,omitempty" example:"img-123"`
	// 生成引擎（flux、gemini、openai），缺省时使用服务默认引擎
	Engine string `json:"engine,omitempty" example:"flux"`
	// 文本指令
	Instruction string `json:"instruction" example:"put the cat on the sofa" binding:"required"`
	// 基础图像，缺省时为文生图
	Base *ImageInput `json:"base,omitempty"`
	// 第二张图像，仅在提供基础图像时有效
	Secondary *ImageInput `json:"secondary,omitempty"`
	// 服务商相关的生成参数
	Settings image.Settings `json:"settings,omitempty"`
	// 请求超时时长，不能超过服务端上限
	Timeout string `json:"timeout,omitempty" example:"90s"`
}

// ToFusionRequest 解码输入图像并转换为 image.FusionRequest。
func (r *GenerateRequest) ToFusionRequest() (*image.FusionRequest, error) {
	base, err := r.Base.toSlot("base")
	if err != nil {
		return nil, err
	}
	secondary, err := r.Secondary.toSlot("secondary")
	if err != nil {
		return nil, err
	}
	return &image.FusionRequest{
		ID:          strings.TrimSpace(r.ID),
		Engine:      strings.TrimSpace(r.Engine),
		Instruction: r.Instruction,
		Base:        base,
		Secondary:   secondary,
		Settings:    r.Settings,
	}, nil
}

// ParseTimeout 解析请求中的超时字段；为空时返回 0。
func ParseTimeout(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return 0, types.Errorf(types.ErrInvalidRequest, "invalid timeout %q", s)
	}
	return d, nil
}

func (in *ImageInput) toSlot(field string) (*image.ImageSlot, error) {
	if in == nil || strings.TrimSpace(in.Data) == "" {
		return nil, nil
	}
	ref, err := image.ParseImageRef(in.Data, in.MimeType)
	if err != nil {
		return nil, types.Errorf(types.ErrValidation, "%s image: invalid data", field).WithCause(err)
	}
	slot := &image.ImageSlot{Image: ref}
	if strings.TrimSpace(in.Intent) != "" {
		intent, err := image.ParseUsageIntent(in.Intent)
		if err != nil {
			return nil, err
		}
		slot.Intent = intent
	}
	return slot, nil
}

// BatchGenerateRequest 表示批量生成请求。
// @Description 批量生成请求结构
type BatchGenerateRequest struct {
	// 独立的生成请求，按顺序返回结果
	Requests []GenerateRequest `json:"requests" binding:"required"`
	// 整个批次的超时时长
	Timeout string `json:"timeout,omitempty" example:"3m"`
}

// BatchItem 表示批量生成中单个请求的结果。
// @Description 批量生成结果项
type BatchItem struct {
	Index int                   `json:"index"`
	Image *image.GeneratedImage `json:"image,omitempty"`
	Error *ErrorDetail          `json:"error,omitempty"`
}

// BatchGenerateResponse 表示批量生成响应。
// @Description 批量生成响应结构
type BatchGenerateResponse struct {
	Results   []BatchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// =============================================================================
// 引擎类型
// =============================================================================

// EngineInfo 描述一个已配置的生成引擎。
// @Description 引擎信息结构
type EngineInfo struct {
	// 引擎标识
	Name string `json:"name" example:"flux"`
	// 支持的宽高比
	AspectRatios []string `json:"aspect_ratios"`
	// 支持的输出格式
	OutputFormats []string `json:"output_formats"`
	// 是否为异步任务（需要轮询）
	Async bool `json:"async" example:"true"`
	// 是否已配置凭证；未配置时请求返回 CONFIG_ERROR
	Configured bool `json:"configured" example:"true"`
	// 是否为默认引擎
	Default bool `json:"default" example:"true"`
}

// EngineListResponse 表示引擎列表。
// @Description 引擎列表响应
type EngineListResponse struct {
	DefaultEngine string       `json:"default_engine" example:"flux"`
	Engines       []EngineInfo `json:"engines"`
}

// EngineRegistry 是 EngineList 所需的引擎查询接口，由 image.Generator 实现。
type EngineRegistry interface {
	Engines() []string
	Provider(engine string) (image.Provider, bool)
	DefaultEngine() string
}

// EngineList 汇总所有已注册引擎的能力与凭证状态。
func EngineList(reg EngineRegistry) EngineListResponse {
	resp := EngineListResponse{
		DefaultEngine: reg.DefaultEngine(),
		Engines:       make([]EngineInfo, 0),
	}
	for _, name := range reg.Engines() {
		p, ok := reg.Provider(name)
		if !ok {
			continue
		}
		_, async := p.(image.AsyncProvider)
		configured := true
		if c, ok := p.(image.Configurable); ok {
			configured = c.Configured()
		}
		resp.Engines = append(resp.Engines, EngineInfo{
			Name:          name,
			AspectRatios:  p.SupportedAspectRatios(),
			OutputFormats: p.SupportedOutputFormats(),
			Async:         async,
			Configured:    configured,
			Default:       name == resp.DefaultEngine,
		})
	}
	return resp
}

// =============================================================================
// 流式事件类型
// =============================================================================

// StreamEvent 表示 SSE 流中的一个事件。
// @Description 流式生成事件
type StreamEvent struct {
	// 事件类型（progress、result、error）
	Type     string                `json:"type" example:"progress"`
	Progress *image.ProgressEvent  `json:"progress,omitempty"`
	Image    *image.GeneratedImage `json:"image,omitempty"`
	Error    *ErrorDetail          `json:"error,omitempty"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"VALIDATION_ERROR"`
	// 人类可读的错误消息
	Message string `json:"message" example:"instruction is required"`
	// 上游服务商返回的 HTTP 状态码
	UpstreamStatus int `json:"upstream_status,omitempty" example:"429"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// 返回错误的服务商
	Provider string `json:"provider,omitempty" example:"flux"`
}

// NewErrorDetail 从任意错误构造 ErrorDetail。
func NewErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	typed, ok := types.AsError(err)
	if !ok {
		return &ErrorDetail{Code: string(types.ErrInternalError), Message: err.Error()}
	}
	detail := &ErrorDetail{
		Code:      string(typed.Code),
		Message:   typed.Message,
		Retryable: typed.Retryable,
		Provider:  typed.Provider,
	}
	if typed.Code == types.ErrProviderHTTP {
		detail.UpstreamStatus = typed.HTTPStatus
	}
	return detail
}
