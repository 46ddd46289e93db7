package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const PublicStorageHost = "https://storage.googleapis.com"

var mediaExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
}

type StorageBucket struct {
	*storage.BucketHandle
	name    string
	maxSize int64
}

func NewStorageBucket(ctx context.Context, app *firebase.App, bucketName string, maxSize int64) (*StorageBucket, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, err
	}
	bucketHandle, err := client.Bucket(bucketName)
	if err != nil {
		return nil, err
	}

	return &StorageBucket{
		BucketHandle: bucketHandle,
		name:         bucketName,
		maxSize:      maxSize,
	}, nil
}

func (sb *StorageBucket) Exists(ctx context.Context, blobName string) (bool, error) {
	if len(blobName) == 0 {
		return false, nil
	}
	handle := sb.Object(blobName)
	if _, err := handle.Attrs(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type Upload struct {
	UserId      string
	ContentType string
	// Size is the declared size, checked before any bytes are sent
	Size int64
	Body io.Reader
}

// Upload stores a media attachment and returns its public URL
func (sb *StorageBucket) Upload(ctx context.Context, upload *Upload) (string, error) {
	if upload.UserId == "" {
		return "", ErrNotAuthenticated
	}
	blobName, err := MediaObjectName(upload.UserId, upload.ContentType)
	if err != nil {
		return "", err
	}
	if err := CheckUploadSize(upload.Size, sb.maxSize); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := sb.Object(blobName).NewWriter(ctx)
	writer.ContentType = upload.ContentType
	body := upload.Body
	if sb.maxSize > 0 {
		body = io.LimitReader(body, sb.maxSize+1)
	}
	written, err := io.Copy(writer, body)
	if err != nil {
		return "", fmt.Errorf("uploading %v: %w", blobName, err)
	}
	if err := CheckUploadSize(written, sb.maxSize); err != nil {
		// cancelling the context aborts the upload instead of committing it
		cancel()
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing %v: %w", blobName, err)
	}
	return PublicURL(sb.name, blobName), nil
}

func MediaObjectName(userId string, contentType string) (string, error) {
	ext, ok := mediaExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
	}
	return path.Join("media", userId, uuid.NewString()+ext), nil
}

func CheckUploadSize(size int64, maxSize int64) error {
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%w: %v is larger than %v", ErrUploadTooLarge,
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(maxSize)))
	}
	return nil
}

func PublicURL(bucketName string, blobName string) string {
	return fmt.Sprintf("%v/%v/%v", PublicStorageHost, bucketName, blobName)
}
