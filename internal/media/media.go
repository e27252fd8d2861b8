// Package media validates chat uploads and persists them to blob storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// DefaultMaxBytes is the largest accepted upload (25 MiB).
const DefaultMaxBytes int64 = 25 << 20

var (
	ErrUnsupportedType = errors.New("only image and video uploads are allowed")
	ErrTooLarge        = errors.New("upload exceeds size limit")
)

// Store persists an object and returns the URL it can be fetched from.
type Store interface {
	Save(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error)
}

// Detect sniffs the content type from the leading bytes of data. Only image
// and video types are accepted.
func Detect(data []byte) (string, error) {
	if !filetype.IsImage(data) && !filetype.IsVideo(data) {
		return "", ErrUnsupportedType
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedType
	}
	return kind.MIME.Value, nil
}

// Validate checks the size cap before sniffing the content type.
func Validate(data []byte, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	if len(data) == 0 {
		return "", ErrUnsupportedType
	}
	return Detect(data)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces an uploaded file name to a safe base name.
func SanitizeName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "upload"
	}
	return base
}

// ObjectName prefixes the sanitized name with the upload time in unix millis
// and a short random tag, so uploads in the same millisecond do not collide.
func ObjectName(now time.Time, original string) string {
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], SanitizeName(original))
}
