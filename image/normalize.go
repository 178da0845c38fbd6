package image

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/fusionflow/types"
)

// Normalize turns a provider result into a GeneratedImage. An empty id is
// replaced by a random UUID.
func Normalize(result *ImageResult, instruction, engine, id string, createdAt time.Time) (*GeneratedImage, error) {
	if result == nil || len(result.Data) == 0 {
		return nil, types.NewError(types.ErrProviderResponse, "provider returned no image data").WithProvider(engine)
	}
	if id == "" {
		id = uuid.NewString()
	}
	mimeType := result.MimeType
	if mimeType == "" {
		mimeType = sniffMimeType(result.Data)
	}
	return &GeneratedImage{
		ID:          id,
		ImageBase64: base64.StdEncoding.EncodeToString(result.Data),
		MimeType:    mimeType,
		Instruction: instruction,
		Engine:      engine,
		CreatedAt:   createdAt,
	}, nil
}

// Decode returns the raw image bytes.
func (g *GeneratedImage) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(g.ImageBase64)
}
