// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	minioCredentials "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/config"
)

// maxFetchBytes caps downloads of documents held outside the store.
const maxFetchBytes = 50 << 20

// DocumentStore holds contract templates, signature images and final documents.
type DocumentStore interface {
	Put(ctx context.Context, data []byte, contentType, path string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	// Owns reports whether ref is a URL this store handed out.
	Owns(ref string) bool
}

type objectBackend interface {
	put(ctx context.Context, key string, data []byte, contentType string) error
	get(ctx context.Context, key string) ([]byte, error)
	remove(ctx context.Context, key string) error
	publicURL(key string) string
}

type StorageService struct {
	backend    objectBackend
	driver     string
	httpClient *http.Client
	maxFetch   int64
}

type UploadResult struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

func NewStorageService(ctx context.Context, cfg *config.Config) (*StorageService, error) {
	var (
		backend objectBackend
		err     error
	)

	switch cfg.Storage.Driver {
	case "s3":
		backend, err = newS3Backend(cfg.AWS)
	case "minio":
		backend, err = newMinioBackend(ctx, cfg.Minio)
	case "gcs":
		backend, err = newGCSBackend(ctx, cfg.GCS)
	case "local", "":
		backend, err = newLocalBackend(cfg.Storage.LocalPath, cfg.Storage.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithField("driver", cfg.Storage.Driver).Info("Document store initialized")
	return &StorageService{
		backend:    backend,
		driver:     cfg.Storage.Driver,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxFetch:   maxFetchBytes,
	}, nil
}

// NewLocalStorageService stores documents under root and serves them from baseURL.
func NewLocalStorageService(root, baseURL string) (*StorageService, error) {
	backend, err := newLocalBackend(root, baseURL)
	if err != nil {
		return nil, err
	}
	return &StorageService{
		backend:    backend,
		driver:     "local",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxFetch:   maxFetchBytes,
	}, nil
}

func (s *StorageService) Put(ctx context.Context, data []byte, contentType, path string) (string, error) {
	key := strings.TrimLeft(path, "/")
	if key == "" {
		return "", apperr.Validation("storage path is required")
	}
	if err := s.backend.put(ctx, key, data, contentType); err != nil {
		return "", apperr.Upstream(err, "store %s", key)
	}
	return s.backend.publicURL(key), nil
}

// Get accepts a key, a URL previously returned by Put, a data URL, or a foreign http(s) URL.
func (s *StorageService) Get(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURL(ref)
	}

	if key, ok := s.keyFromURL(ref); ok {
		data, err := s.backend.get(ctx, key)
		if err != nil {
			return nil, apperr.Upstream(err, "load %s", key)
		}
		return data, nil
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return s.fetch(ctx, ref)
	}

	data, err := s.backend.get(ctx, strings.TrimLeft(ref, "/"))
	if err != nil {
		return nil, apperr.Upstream(err, "load %s", ref)
	}
	return data, nil
}

func (s *StorageService) Delete(ctx context.Context, key string) error {
	if err := s.backend.remove(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *StorageService) UploadFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, options UploadOptions) (*UploadResult, error) {
	// Validate file size
	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, apperr.Validation("file size %d bytes exceeds maximum allowed size %d bytes", header.Size, options.MaxSize)
	}

	// Validate file type
	if len(options.AllowedTypes) > 0 {
		fileExt := strings.ToLower(filepath.Ext(header.Filename))
		allowed := false
		for _, allowedType := range options.AllowedTypes {
			if fileExt == allowedType {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, apperr.Validation("file type %s is not allowed", fileExt)
		}
	}

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(fileBytes)
	}

	key := s.generateFileName(header.Filename, options.Folder)
	url, err := s.Put(ctx, fileBytes, contentType, key)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		URL:      url,
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
	}, nil
}

func (s *StorageService) GetDefaultUploadOptions(category string, maxUploadMB int) UploadOptions {
	switch category {
	case "contracts":
		return UploadOptions{
			Folder:       "contracts/originals",
			MaxSize:      int64(maxUploadMB) * 1024 * 1024,
			AllowedTypes: []string{".pdf"},
		}
	default:
		return UploadOptions{
			Folder:       "general",
			MaxSize:      5 * 1024 * 1024, // 5MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".pdf"},
		}
	}
}

func (s *StorageService) generateFileName(originalName, folder string) string {
	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(originalName))

	timestamp := time.Now().Format("20060102")
	filename := fmt.Sprintf("%s_%s%s", timestamp, id.String()[:8], ext)

	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}

	return filename
}

func (s *StorageService) Owns(ref string) bool {
	_, ok := s.keyFromURL(ref)
	return ok
}

func (s *StorageService) keyFromURL(ref string) (string, bool) {
	base := strings.TrimRight(s.backend.publicURL(""), "/")
	if base == "" || !strings.HasPrefix(ref, base+"/") {
		return "", false
	}
	return strings.TrimPrefix(ref, base+"/"), true
}

func (s *StorageService) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Validation("invalid document url %q", url)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream(nil, "download %s: http %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxFetch+1))
	if err != nil {
		return nil, apperr.Upstream(err, "read %s", url)
	}
	if int64(len(data)) > s.maxFetch {
		return nil, apperr.Validation("document at %s exceeds %d bytes", url, s.maxFetch)
	}
	return data, nil
}

// decodeDataURL handles base64 data URLs such as data:image/png;base64,....
func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, apperr.Validation("unsupported data url")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperr.Validation("malformed data url: %v", err)
	}
	return data, nil
}

// DataURLContentType returns the media type declared by a data URL.
func DataURLContentType(ref string) string {
	meta, _, _ := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	contentType, _, _ := strings.Cut(meta, ";")
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}

// S3

type s3Backend struct {
	client *s3.S3
	cfg    config.AWSConfig
}

func newS3Backend(cfg config.AWSConfig) (*s3Backend, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &s3Backend{client: s3.New(sess), cfg: cfg}, nil
}

func (b *s3Backend) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

func (b *s3Backend) get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *s3Backend) remove(ctx context.Context, key string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	return err
}

func (b *s3Backend) publicURL(key string) string {
	if b.cfg.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(b.cfg.CloudFrontURL, "/"), key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.cfg.S3Bucket, b.cfg.Region, key)
}

// MinIO

type minioBackend struct {
	client *minio.Client
	cfg    config.MinioConfig
}

func newMinioBackend(ctx context.Context, cfg config.MinioConfig) (*minioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  minioCredentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &minioBackend{client: client, cfg: cfg}, nil
}

func (b *minioBackend) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (b *minioBackend) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (b *minioBackend) remove(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.cfg.Bucket, key, minio.RemoveObjectOptions{})
}

func (b *minioBackend) publicURL(key string) string {
	protocol := "http"
	if b.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, b.cfg.Endpoint, b.cfg.Bucket, key)
}

// Google Cloud Storage

type gcsBackend struct {
	client *storage.Client
	bucket string
}

func newGCSBackend(ctx context.Context, cfg config.GCSConfig) (*gcsBackend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &gcsBackend{client: client, bucket: cfg.Bucket}, nil
}

func (b *gcsBackend) put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *gcsBackend) get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *gcsBackend) remove(ctx context.Context, key string) error {
	err := b.client.Bucket(b.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (b *gcsBackend) publicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, key)
}

// Local filesystem, for development and tests.

type localBackend struct {
	root    string
	baseURL string
}

func newLocalBackend(root, baseURL string) (*localBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &localBackend{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *localBackend) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(b.root, clean), nil
}

func (b *localBackend) put(_ context.Context, key string, data []byte, _ string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (b *localBackend) get(_ context.Context, key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (b *localBackend) remove(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *localBackend) publicURL(key string) string {
	return b.baseURL + "/" + key
}
