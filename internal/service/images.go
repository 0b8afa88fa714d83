package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bellyrush/marketplace/internal/storage"
)

// saveImage stores an upload. Undecodable or oversized images are the
// caller's fault, anything else is ours.
func saveImage(ctx context.Context, images storage.ImageStore, folder string, r io.Reader) (string, error) {
	url, err := images.Save(ctx, folder, r)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidImage) {
			return "", fmt.Errorf("%w: image: %v", ErrBadRequest, err)
		}
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return url, nil
}

// discardImage removes an image that no record refers to. It runs even when
// the request context is already cancelled.
func discardImage(ctx context.Context, images storage.ImageStore, url string) error {
	if url == "" {
		return nil
	}
	return images.Delete(context.WithoutCancel(ctx), url)
}
