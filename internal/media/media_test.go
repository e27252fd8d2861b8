package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
	mp4Header = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0x02, 0, 'i', 's', 'o', 'm'}
)

func TestDetect(t *testing.T) {
	contentType, err := Detect(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	contentType, err = Detect(mp4Header)
	require.NoError(t, err)
	assert.Contains(t, contentType, "video/")

	_, err = Detect([]byte("%PDF-1.7 not media"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Detect([]byte("plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestValidateSizeCap(t *testing.T) {
	data := append(append([]byte{}, pngHeader...), make([]byte, 64)...)

	_, err := Validate(data, 32)
	assert.ErrorIs(t, err, ErrTooLarge)

	contentType, err := Validate(data, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	_, err = Validate(nil, 0)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestObjectName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := map[string]string{
		"photo.png":              "photo.png",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\My Pic.JPG`: "My_Pic.JPG",
		"":                       "upload",
		"...":                    "upload",
	}
	for original, want := range tests {
		pattern := `^1700000000123-[0-9a-f]{8}-` + regexp.QuoteMeta(want) + `$`
		assert.Regexp(t, pattern, ObjectName(now, original), "original %q", original)
	}

	assert.NotEqual(t, ObjectName(now, "photo.png"), ObjectName(now, "photo.png"))
}

func TestLocalStoreSaveAndServe(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocalStore(dir, "http://localhost:5001/")
	require.NoError(t, err)

	url, err := st.Save(context.Background(), "1-a.png", "image/png", bytes.NewReader(pngHeader), int64(len(pngHeader)))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5001/uploads/1-a.png", url)

	onDisk, err := os.ReadFile(filepath.Join(dir, "1-a.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, onDisk)

	_, err = st.Save(context.Background(), "1-a.png", "image/png", bytes.NewReader(pngHeader), int64(len(pngHeader)))
	assert.Error(t, err, "names must not be overwritten")

	rec := httptest.NewRecorder()
	st.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/1-a.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, pngHeader, body)

	rec = httptest.NewRecorder()
	st.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocalStoreHonoursCancelledContext(t *testing.T) {
	st, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = st.Save(ctx, "x.png", "image/png", bytes.NewReader(pngHeader), int64(len(pngHeader)))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestObjectBaseURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000/nrg-media", objectBaseURL(MinioConfig{Endpoint: "minio:9000", Bucket: "nrg-media"}))
	assert.Equal(t, "https://s3.example.com/b", objectBaseURL(MinioConfig{Endpoint: "s3.example.com", Bucket: "b", UseSSL: true}))
	assert.Equal(t, "https://cdn.example.com/b", objectBaseURL(MinioConfig{Endpoint: "x", Bucket: "b", PublicURL: "https://cdn.example.com/"}))
}
