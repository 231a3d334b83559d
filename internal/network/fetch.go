package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/kordia/kordia-go/internal/errors"
)

const readChunk = 256 * 1024

// Payload is a fully materialised response body
type Payload struct {
	Body        []byte
	ContentType string
}

// FetchOptions tunes FetchAll
type FetchOptions struct {
	// MaxBytes rejects bodies larger than this when > 0
	MaxBytes int64
	// Progress is called after every chunk with bytes read so far and the
	// declared total (-1 when unknown)
	Progress func(done, total int64)
}

// FetchAll GETs url and reads the whole body into memory before returning.
// Nothing is handed to the caller until the response has been read to EOF
// and, when the server declared a Content-Length, the byte count matches it.
func FetchAll(ctx context.Context, client *http.Client, url string, opts FetchOptions) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid URL %q: %v", url, err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError(fmt.Sprintf("GET %s failed", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.NewHTTPStatusError(url, resp.StatusCode)
	}

	total := resp.ContentLength
	if opts.MaxBytes > 0 && total > opts.MaxBytes {
		return nil, errors.NewValidationError(fmt.Sprintf("payload of %d bytes exceeds limit of %d", total, opts.MaxBytes))
	}

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, readChunk)
	var done int64
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			done += int64(n)
			if opts.MaxBytes > 0 && done > opts.MaxBytes {
				return nil, errors.NewValidationError(fmt.Sprintf("payload exceeds limit of %d bytes", opts.MaxBytes))
			}
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, errors.NewNetworkError(fmt.Sprintf("reading %s failed after %d bytes", url, done), readErr)
		}
	}

	if total >= 0 && done != total {
		return nil, errors.NewNetworkError(
			fmt.Sprintf("incomplete payload from %s", url),
			fmt.Errorf("read %d of %d bytes", done, total),
		)
	}

	return &Payload{Body: buf.Bytes(), ContentType: resp.Header.Get("Content-Type")}, nil
}
