// Package codec converts binary payloads to and from the text forms used on
// the wire and in text-only storage.
package codec

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loqalabs/vocalforge/internal/blob"
)

// ErrMalformedInput reports text that is not valid base64 or not a data URL.
var ErrMalformedInput = errors.New("malformed input")

const defaultMIME = "application/octet-stream"

// Source is anything that can be read in full and carries a MIME type.
type Source interface {
	MIMEType() string
	Open() (io.ReadCloser, error)
}

// DecodeBase64 decodes standard-alphabet, padded base64.
func DecodeBase64(s string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return out, nil
}

// EncodeBase64 encodes b with the standard alphabet and padding.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// BlobToDataURL reads src in full and returns data:<mime>;base64,<payload>.
// Read errors from src are returned unchanged in the chain.
func BlobToDataURL(ctx context.Context, src Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rc, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	mime := src.MIMEType()
	if mime == "" {
		mime = defaultMIME
	}
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:")
	sb.WriteString(mime)
	sb.WriteString(";base64,")
	sb.WriteString(EncodeBase64(data))
	return sb.String(), nil
}

// DataURLToBlob parses a base64 data URL. The MIME type is taken from the
// header and defaults to application/octet-stream.
func DataURLToBlob(s string) (*blob.Blob, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("%w: data url has no payload separator", ErrMalformedInput)
	}
	if !strings.HasPrefix(header, "data:") {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrMalformedInput)
	}
	meta := strings.TrimPrefix(header, "data:")
	params := strings.Split(meta, ";")
	if params[len(params)-1] != "base64" {
		return nil, fmt.Errorf("%w: data url is not base64 encoded", ErrMalformedInput)
	}
	mime := defaultMIME
	if len(params) > 1 && params[0] != "" {
		mime = params[0]
	}
	data, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return blob.New(data, mime), nil
}
