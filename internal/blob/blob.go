// Package blob holds immutable binary payloads and the object URLs that
// expose them to clients for the lifetime of a session.
package blob

import (
	"bytes"
	"io"
)

// Blob is an immutable byte payload tagged with a MIME type.
type Blob struct {
	mime string
	data []byte
}

// New copies data into a new Blob.
func New(data []byte, mime string) *Blob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Blob{mime: mime, data: buf}
}

// MIMEType returns the content type the blob was created with.
func (b *Blob) MIMEType() string {
	if b == nil {
		return ""
	}
	return b.mime
}

// Size returns the payload length in bytes.
func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns a copy of the payload.
func (b *Blob) Bytes() []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Open returns a reader over the payload.
func (b *Blob) Open() (io.ReadCloser, error) {
	if b == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Equal reports whether both blobs carry the same MIME type and bytes.
func (b *Blob) Equal(other *Blob) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.mime == other.mime && bytes.Equal(b.data, other.data)
}
