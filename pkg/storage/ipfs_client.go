package storage

import (
	"context"
	"fmt"
	"io"
)

// IPFSClient pins payloads and returns their content references.
type IPFSClient interface {
	PinFile(ctx context.Context, body io.Reader) (string, error)
}

// ContentRefGenerator produces content references for pinned payloads.
type ContentRefGenerator interface {
	ContentRef() string
}

// simulatedIPFSClient stands in for a pinning service: it consumes the
// payload and hands back a freshly generated reference. Nothing is stored.
type simulatedIPFSClient struct {
	refs ContentRefGenerator
}

func NewIPFSClient(refs ContentRefGenerator) IPFSClient {
	return &simulatedIPFSClient{refs: refs}
}

func (c *simulatedIPFSClient) PinFile(ctx context.Context, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", fmt.Errorf("failed to read pin payload: %w", err)
	}
	return c.refs.ContentRef(), nil
}
