package client

import (
	"context"
)

// VisionClient is a multimodal chat backend able to look at sprite crops.
type VisionClient interface {
	// SimpleQuery sends one image with a free-form prompt and returns the
	// model's text.
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// NameSprites sends a batch of base64 PNG crops in one message and returns
	// one name per image, in order. Backends may return fewer names than
	// images.
	NameSprites(ctx context.Context, model, prompt string, imagesB64 []string) ([]string, error)
}
