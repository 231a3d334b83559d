package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/http"

	"github.com/nfnt/resize"

	"github.com/kordia/kordia-go/internal/network"
)

// MaxThumbnailBytes bounds the size of a thumbnail download
const MaxThumbnailBytes = 8 << 20

// Normalize shrinks an image so that neither side exceeds maxPx, keeping
// the aspect ratio. Images already within bounds come back untouched.
// PNG stays PNG; everything else is re-encoded as JPEG.
func Normalize(data []byte, maxPx int) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxPx <= 0 || (width <= maxPx && height <= maxPx) {
		return data, mimeFor(format), nil
	}

	var resized image.Image
	if width >= height {
		resized = resize.Resize(uint(maxPx), 0, img, resize.Lanczos3)
	} else {
		resized = resize.Resize(0, uint(maxPx), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	contentType := "image/jpeg"
	if format == "png" {
		err = png.Encode(&buf, resized)
		contentType = "image/png"
	} else {
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), contentType, nil
}

// Fetch downloads a thumbnail and normalises it. When the image cannot be
// decoded the original bytes are returned as served.
func Fetch(ctx context.Context, client *http.Client, url string, maxPx int) (*network.Payload, error) {
	payload, err := network.FetchAll(ctx, client, url, network.FetchOptions{MaxBytes: MaxThumbnailBytes})
	if err != nil {
		return nil, err
	}

	body, contentType, err := Normalize(payload.Body, maxPx)
	if err != nil {
		return payload, nil
	}
	return &network.Payload{Body: body, ContentType: contentType}, nil
}

func mimeFor(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
