package services

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/dealer-contracts/internal/apperr"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func newLocalStore(t *testing.T) (*StorageService, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewLocalStorageService(root, "http://localhost/uploads/")
	require.NoError(t, err)
	return store, root
}

func TestLocalStoragePutGet(t *testing.T) {
	store, root := newLocalStore(t)
	ctx := context.Background()

	url, err := store.Put(ctx, []byte("final"), "application/pdf", "/contracts/final/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/uploads/contracts/final/abc.pdf", url)

	onDisk, err := os.ReadFile(filepath.Join(root, "contracts", "final", "abc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), onDisk)

	byURL, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), byURL)

	byKey, err := store.Get(ctx, "contracts/final/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), byKey)

	require.NoError(t, store.Delete(ctx, "contracts/final/abc.pdf"))
	assert.NoError(t, store.Delete(ctx, "contracts/final/abc.pdf"))

	_, err = store.Get(ctx, url)
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
}

func TestLocalStorageStaysUnderRoot(t *testing.T) {
	store, root := newLocalStore(t)

	_, err := store.Put(context.Background(), []byte("x"), "text/plain", "../../escape.txt")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err)

	_, err = store.Put(context.Background(), []byte("x"), "text/plain", "/")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestStorageGetDataURL(t *testing.T) {
	store, _ := newLocalStore(t)

	data, err := store.Get(context.Background(), signatureImage)
	require.NoError(t, err)
	assert.Equal(t, signaturePNG, data)

	_, err = store.Get(context.Background(), "data:text/plain,hello")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = store.Get(context.Background(), "data:image/png;base64,!!!")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	assert.Equal(t, "image/png", DataURLContentType(signatureImage))
	assert.Equal(t, "application/octet-stream", DataURLContentType("data:,abc"))
}

func TestStorageFetchesForeignURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/template.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("%PDF-1.4 remote"))
	}))
	defer server.Close()

	store, _ := newLocalStore(t)

	data, err := store.Get(context.Background(), server.URL+"/template.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 remote"), data)

	_, err = store.Get(context.Background(), server.URL+"/missing.pdf")
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
}

func TestStorageOwnsOnlyItsURLs(t *testing.T) {
	store, _ := newLocalStore(t)

	url, err := store.Put(context.Background(), signaturePNG, "image/png", "signatures/a.png")
	require.NoError(t, err)
	assert.True(t, store.Owns(url))

	assert.False(t, store.Owns("http://169.254.169.254/latest/meta-data/"))
	assert.False(t, store.Owns("http://localhost/other/a.png"))
	assert.False(t, store.Owns(signatureImage))
}

func TestStorageCapsForeignDownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer server.Close()

	store, _ := newLocalStore(t)
	store.maxFetch = 32
	_, err := store.Get(context.Background(), server.URL+"/huge.pdf")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestUploadFile(t *testing.T) {
	store, _ := newLocalStore(t)
	content := []byte("%PDF-1.7\n% purchase agreement")
	header := &multipart.FileHeader{Filename: "Deal.PDF", Size: int64(len(content)), Header: textproto.MIMEHeader{}}

	opts := store.GetDefaultUploadOptions("contracts", 1)
	result, err := store.UploadFile(context.Background(), memFile{bytes.NewReader(content)}, header, opts)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Key, "contracts/originals/"))
	assert.True(t, strings.HasSuffix(result.Key, ".pdf"))
	assert.Equal(t, "application/pdf", result.MimeType)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Equal(t, "http://localhost/uploads/"+result.Key, result.URL)

	stored, err := store.Get(context.Background(), result.URL)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	t.Run("rejects other extensions", func(t *testing.T) {
		exe := &multipart.FileHeader{Filename: "setup.exe", Size: 10, Header: textproto.MIMEHeader{}}
		_, err := store.UploadFile(context.Background(), memFile{bytes.NewReader([]byte("MZ"))}, exe, opts)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		big := &multipart.FileHeader{Filename: "big.pdf", Size: 2 * 1024 * 1024, Header: textproto.MIMEHeader{}}
		_, err := store.UploadFile(context.Background(), memFile{bytes.NewReader(content)}, big, opts)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	})
}
