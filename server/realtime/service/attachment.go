package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"
)

const attachmentURLTTL = 15 * time.Minute

// AttachmentService is the blob-store boundary for chat attachments:
// presigned upload/download URLs plus thumbnails for images. The
// realtime layer never proxies file bytes itself.
type AttachmentService struct {
	objects *minio.Client
	bucket  string
}

func NewAttachmentService(objects *minio.Client, bucket string) *AttachmentService {
	return &AttachmentService{objects: objects, bucket: bucket}
}

func (s *AttachmentService) UploadURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.objects.PresignedPutObject(ctx, s.bucket, cleanObjectKey(objectKey), attachmentURLTTL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *AttachmentService) DownloadURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.objects.PresignedGetObject(ctx, s.bucket, cleanObjectKey(objectKey), attachmentURLTTL, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *AttachmentService) Delete(ctx context.Context, objectKey string) (bool, error) {
	if err := s.objects.RemoveObject(ctx, s.bucket, cleanObjectKey(objectKey), minio.RemoveObjectOptions{}); err != nil {
		return false, err
	}
	return true, nil
}

// MakeThumbnail renders a 320px JPEG next to an uploaded image and
// returns its key. Called after the client confirms an image upload.
func (s *AttachmentService) MakeThumbnail(ctx context.Context, objectKey string) (string, error) {
	objectKey = cleanObjectKey(objectKey)
	obj, err := s.objects.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return "", err
	}
	defer obj.Close()

	img, _, err := image.Decode(obj)
	if err != nil {
		return "", err
	}

	thumb := imaging.Thumbnail(img, 320, 320, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}

	ext := filepath.Ext(objectKey)
	thumbKey := strings.TrimSuffix(objectKey, ext) + "_thumb.jpg"
	reader := bytes.NewReader(buf.Bytes())
	if _, err := s.objects.PutObject(ctx, s.bucket, thumbKey, reader, int64(reader.Len()), minio.PutObjectOptions{ContentType: "image/jpeg"}); err != nil {
		return "", fmt.Errorf("upload thumb: %w", err)
	}
	return thumbKey, nil
}

func cleanObjectKey(objectKey string) string {
	return strings.TrimPrefix(strings.TrimSpace(objectKey), "/")
}
