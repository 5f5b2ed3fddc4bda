package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/metrics"
)

// Containers are realized as top-level key prefixes inside one bucket. Every
// operation sanitizes the names it receives; callers never pre-sanitize.
const (
	containerMarker = ".container"
	maxSASDuration  = 7 * 24 * time.Hour
	deleteBatchSize = 1000
)

// FileMetadata travels with every stored object.
type FileMetadata struct {
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	Encrypted    bool              `json:"encrypted"`
	Metadata     map[string]string `json:"metadata"`
}

// Store is the object store adapter.
type Store struct {
	client          *s3.Client
	presign         *s3.PresignClient
	uploader        *manager.Uploader
	bucket          string
	decryptPassword string
	sasDuration     time.Duration
}

// NewStore builds a Store from ambient AWS credentials. A custom endpoint
// switches the client to path-style addressing.
func NewStore(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	sas := cfg.SASDuration
	if sas <= 0 || sas > maxSASDuration {
		sas = maxSASDuration
	}

	return &Store{
		client:          cli,
		presign:         s3.NewPresignClient(cli),
		uploader:        manager.NewUploader(cli),
		bucket:          cfg.Bucket,
		decryptPassword: cfg.DecryptPassword,
		sasDuration:     sas,
	}, nil
}

func (s *Store) key(container, blob string) string {
	return SafeContainerName(container) + "/" + SafeBlobName(blob)
}

// CloudURI returns the canonical reference for a blob.
func (s *Store) CloudURI(container, blob string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key(container, blob))
}

// CreateContainer writes the container marker. Re-creating an existing
// container is a no-op.
func (s *Store) CreateContainer(ctx context.Context, container string) error {
	key := SafeContainerName(container) + "/" + containerMarker
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", container, err)
	}
	return nil
}

// DeleteContainer removes every object under the container prefix.
func (s *Store) DeleteContainer(ctx context.Context, container string) error {
	prefix := SafeContainerName(container) + "/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var batch []s3types.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = batch[:0]
		return err
	}

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list container %s: %w", container, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			batch = append(batch, s3types.ObjectIdentifier{Key: obj.Key})
			if len(batch) >= deleteBatchSize {
				if err := flush(); err != nil {
					return fmt.Errorf("failed to delete container %s: %w", container, err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("failed to delete container %s: %w", container, err)
	}
	return nil
}

// ListContainers returns the top-level prefixes of the bucket.
func (s *Store) ListContainers(ctx context.Context) ([]string, error) {
	var containers []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list containers: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			containers = append(containers, strings.TrimSuffix(*cp.Prefix, "/"))
		}
	}
	return containers, nil
}

// UploadBlob uploads a local file and returns its cloud URI. Content type is
// sniffed from the file itself.
func (s *Store) UploadBlob(ctx context.Context, container, blob, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		contentType = mt.String()
	}

	key := s.key(container, blob)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"name":         filepath.Base(localPath),
			"content-type": contentType,
			"upload-time":  time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	metrics.AddBlobBytes("upload", int(info.Size()))
	log.Debug().Str("key", key).Int64("size", info.Size()).Str("content_type", contentType).Msg("uploaded blob")
	return s.CloudURI(container, blob), nil
}

// UploadEncrypted seals data under the password before writing it, marking
// the object so downloads decrypt it transparently.
func (s *Store) UploadEncrypted(ctx context.Context, container, blob string, data []byte, password string) (string, error) {
	sealed, err := Encrypt(data, password)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt %s: %w", blob, err)
	}
	key := s.key(container, blob)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(sealed),
		Metadata: map[string]string{
			"name":              SafeBlobName(blob),
			"encrypted":         "true",
			"encryption-format": encryptionMagic,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	metrics.AddBlobBytes("upload", len(sealed))
	return s.CloudURI(container, blob), nil
}

// ReadBlob fetches a blob into memory, decrypting transparently when the
// object is marked encrypted and a password is configured.
func (s *Store) ReadBlob(ctx context.Context, container, blob string) ([]byte, *FileMetadata, error) {
	key := s.key(container, blob)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	meta := &FileMetadata{
		OriginalName: out.Metadata["name"],
		ContentType:  out.Metadata["content-type"],
		Size:         int64(len(data)),
		Encrypted:    out.Metadata["encrypted"] == "true",
		Metadata:     out.Metadata,
	}
	if meta.ContentType == "" && out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}

	if meta.Encrypted || IsEncrypted(data) {
		if s.decryptPassword == "" {
			log.Warn().Str("key", key).Msg("object is encrypted but no decryption password is configured")
		} else {
			plain, err := Decrypt(data, s.decryptPassword)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to decrypt %s: %w", key, err)
			}
			data = plain
			meta.Size = int64(len(data))
		}
	}

	metrics.AddBlobBytes("download", len(data))
	return data, meta, nil
}

// DownloadBlob fetches a blob to a local path, creating parent directories.
func (s *Store) DownloadBlob(ctx context.Context, container, blob, localPath string) error {
	data, _, err := s.ReadBlob(ctx, container, blob)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", localPath, err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

// DeleteBlob removes one blob.
func (s *Store) DeleteBlob(ctx context.Context, container, blob string) error {
	key := s.key(container, blob)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// ListBlobs returns blob names under the container, optionally narrowed by a
// prefix. The container marker is filtered out.
func (s *Store) ListBlobs(ctx context.Context, container, prefix string) ([]string, error) {
	base := SafeContainerName(container) + "/"
	full := base
	if prefix != "" {
		full += prefix
	}

	var blobs []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs in %s: %w", container, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := strings.TrimPrefix(*obj.Key, base)
			if name == containerMarker {
				continue
			}
			blobs = append(blobs, name)
		}
	}
	return blobs, nil
}

// CreateSASURL returns a presigned read URL. Durations above seven days are
// clamped to the signing ceiling.
func (s *Store) CreateSASURL(ctx context.Context, container, blob string, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = s.sasDuration
	}
	if duration > maxSASDuration {
		duration = maxSASDuration
	}
	key := s.key(container, blob)
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(duration))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// UploadFolder recursively uploads a directory, preserving relative paths as
// blob names.
func (s *Store) UploadFolder(ctx context.Context, localDir, container string) error {
	return filepath.WalkDir(localDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		if _, err := s.UploadBlob(ctx, container, filepath.ToSlash(rel), path); err != nil {
			return err
		}
		return nil
	})
}

// DownloadFolder mirrors a container prefix into a local directory.
func (s *Store) DownloadFolder(ctx context.Context, container, prefix, localDir string) error {
	blobs, err := s.ListBlobs(ctx, container, prefix)
	if err != nil {
		return err
	}
	for _, blob := range blobs {
		dest := filepath.Join(localDir, filepath.FromSlash(blob))
		if err := s.DownloadBlob(ctx, container, blob, dest); err != nil {
			return err
		}
	}
	return nil
}
