// Package image 提供多服务商图像生成任务客户端.
package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/fusionflow/types"
)

// ImageRef is an immutable image payload. Use NewImageRef or ParseImageRef.
type ImageRef struct {
	data     []byte
	mimeType string
	digest   [sha256.Size]byte
}

// NewImageRef copies data into a new ImageRef. An empty mimeType is sniffed
// from the content.
func NewImageRef(data []byte, mimeType string) (*ImageRef, error) {
	if len(data) == 0 {
		return nil, types.NewError(types.ErrValidation, "image data is empty")
	}
	buf := bytes.Clone(data)
	if mimeType == "" {
		mimeType = sniffMimeType(buf)
	}
	return &ImageRef{
		data:     buf,
		mimeType: mimeType,
		digest:   sha256.Sum256(buf),
	}, nil
}

// ParseImageRef decodes raw base64 or a data URI ("data:image/png;base64,...").
// A MIME type carried by the data URI wins over mimeType.
func ParseImageRef(encoded, mimeType string) (*ImageRef, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		header, payload, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, types.NewError(types.ErrValidation, "malformed data URI")
		}
		meta := strings.TrimPrefix(header, "data:")
		if mt, _, _ := strings.Cut(meta, ";"); mt != "" {
			mimeType = mt
		}
		encoded = payload
	}
	data, err := decodeBase64(encoded)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "image data is not valid base64").WithCause(err)
	}
	return NewImageRef(data, mimeType)
}

// Bytes returns a copy of the image bytes.
func (r *ImageRef) Bytes() []byte { return bytes.Clone(r.data) }

// MimeType returns the declared or inferred MIME type.
func (r *ImageRef) MimeType() string { return r.mimeType }

// Base64 returns the image encoded with standard base64.
func (r *ImageRef) Base64() string { return base64.StdEncoding.EncodeToString(r.data) }

// DataURI returns the image as a data URI.
func (r *ImageRef) DataURI() string { return "data:" + r.mimeType + ";base64," + r.Base64() }

// Len returns the payload size in bytes.
func (r *ImageRef) Len() int { return len(r.data) }

// SameBytes reports byte identity with other.
func (r *ImageRef) SameBytes(other *ImageRef) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.digest == other.digest && bytes.Equal(r.data, other.data)
}

func sniffMimeType(data []byte) string {
	mt := http.DetectContentType(data)
	if strings.HasPrefix(mt, "image/") {
		return mt
	}
	return defaultMimeType
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// UsageIntent 描述调用方为输入图像指定的用途.
type UsageIntent string

const (
	IntentReferenceObject     UsageIntent = "reference_object"
	IntentImageMergePrimary   UsageIntent = "image_merge_primary"
	IntentImageMergeSecondary UsageIntent = "image_merge_secondary"
	IntentStyleTransferTarget UsageIntent = "style_transfer_target"
	IntentObjectReplacement   UsageIntent = "object_replacement"
)

// ParseUsageIntent validates s against the known intents.
func ParseUsageIntent(s string) (UsageIntent, error) {
	switch UsageIntent(strings.TrimSpace(s)) {
	case IntentReferenceObject, IntentImageMergePrimary, IntentImageMergeSecondary,
		IntentStyleTransferTarget, IntentObjectReplacement:
		return UsageIntent(strings.TrimSpace(s)), nil
	}
	return "", types.Errorf(types.ErrValidation, "unknown usage intent %q", s)
}

// ImageSlot pairs an image with its usage intent.
type ImageSlot struct {
	Image  *ImageRef
	Intent UsageIntent
}

// Settings 为服务商特定的生成参数.
type Settings struct {
	AspectRatio      string `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	OutputFormat     string `json:"output_format,omitempty" yaml:"output_format,omitempty"` // jpeg, png, webp
	Seed             *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	PromptUpsampling bool   `json:"prompt_upsampling,omitempty" yaml:"prompt_upsampling,omitempty"`
	SafetyTolerance  int    `json:"safety_tolerance,omitempty" yaml:"safety_tolerance,omitempty"`
}

// GenerationRequest is the provider-neutral request handed to adapters.
type GenerationRequest struct {
	Instruction string
	Primary     *ImageRef // nil means text-to-image
	Controls    []*ImageRef
	Styles      []*ImageRef
	Settings    Settings
	OnProgress  ProgressFunc
}

// ImageResult is raw image output from a provider.
type ImageResult struct {
	Data     []byte
	MimeType string
}

// ProviderJob is either complete or pending on a poll handle.
type ProviderJob struct {
	Complete     *ImageResult
	PollHandle   string
	OutputFormat string
}

// Pending reports whether the job still has to be polled.
func (j *ProviderJob) Pending() bool {
	return j != nil && j.Complete == nil && j.PollHandle != ""
}

// JobStatus 为轮询状态机内部状态.
type JobStatus string

const (
	JobSubmitted  JobStatus = "submitted"
	JobProcessing JobStatus = "processing"
	JobReady      JobStatus = "ready"
	JobFailed     JobStatus = "failed"
	JobTimedOut   JobStatus = "timed_out"
	JobMalformed  JobStatus = "malformed"
)

// ProgressEvent is emitted once per poll attempt.
type ProgressEvent struct {
	Engine      string    `json:"engine"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	Status      JobStatus `json:"status"`
}

// ProgressFunc receives progress notifications. It must not block.
type ProgressFunc func(ProgressEvent)

// GeneratedImage 为归一化后的生成结果.
type GeneratedImage struct {
	ID          string    `json:"id"`
	ImageBase64 string    `json:"image_base64"`
	MimeType    string    `json:"mime_type"`
	Instruction string    `json:"instruction"`
	Engine      string    `json:"engine"`
	CreatedAt   time.Time `json:"created_at"`
}

// Provider 定义图像生成服务商适配器接口.
type Provider interface {
	// Name returns the engine identifier.
	Name() string

	// SupportedAspectRatios lists the accepted aspect ratio values.
	SupportedAspectRatios() []string

	// SupportedOutputFormats lists the accepted output formats.
	SupportedOutputFormats() []string

	// Submit sends the request and returns a complete or pending job.
	Submit(ctx context.Context, req *GenerationRequest) (*ProviderJob, error)
}

// AsyncProvider is a Provider whose jobs may need polling.
type AsyncProvider interface {
	Provider

	// Await polls a pending job until it reaches a terminal state.
	Await(ctx context.Context, job *ProviderJob, progress ProgressFunc) (*ImageResult, error)
}

// Configurable is implemented by providers that can report missing
// credentials before any request is made.
type Configurable interface {
	Configured() bool
}
