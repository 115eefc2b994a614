// Package storage uploads attachments to the blob store. The message log only
// ever holds the returned URL and the original filename.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/sanitize"
)

// BlobStore accepts bytes under a path hint and returns a stable retrieval URL
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	PresignUpload(ctx context.Context, key string) (string, time.Time, error)
	Stat(ctx context.Context, key string) (int64, error)
	URL(ctx context.Context, key string) (string, error)
}

// Service handles attachment storage
type Service struct {
	store   BlobStore
	maxSize int64
	now     func() time.Time
}

// NewService creates a new storage service. maxSize <= 0 selects the default limit.
func NewService(store BlobStore, maxSize int64) *Service {
	if maxSize <= 0 || maxSize > constants.MaxAttachmentSize {
		maxSize = constants.MaxAttachmentSize
	}
	return &Service{store: store, maxSize: maxSize, now: time.Now}
}

// UploadTicket is a presigned upload the client completes with CompleteUpload
type UploadTicket struct {
	ObjectKey string    `json:"object_key"`
	UploadURL string    `json:"upload_url"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// prefix is the object path of a conversation: chats/<id>/ or groups/<id>/
func prefix(ref domain.ConversationRef) string {
	if ref.Kind == domain.KindGroup {
		return "groups/" + ref.ID.String() + "/"
	}
	return "chats/" + ref.ID.String() + "/"
}

// ObjectKey builds <prefix><unix-millis>_<filename>
func (s *Service) ObjectKey(ref domain.ConversationRef, filename string) string {
	return fmt.Sprintf("%s%d_%s", prefix(ref), s.now().UnixMilli(), filename)
}

func (s *Service) checkUpload(filename string, size int64) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", apperrors.MissingFieldError("filename")
	}
	if size <= 0 {
		return "", apperrors.ValidationError("attachment is empty")
	}
	if size > s.maxSize {
		return "", apperrors.ValidationError(fmt.Sprintf("attachment is %s, the limit is %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.maxSize))))
	}
	name := sanitize.SanitizeFilename(filename)
	if len(name) > constants.MaxFilenameLength {
		name = name[len(name)-constants.MaxFilenameLength:]
	}
	return name, nil
}

// Upload streams r to the blob store and returns the attachment body to append
func (s *Service) Upload(ctx context.Context, ref domain.ConversationRef, filename string, r io.Reader, size int64, contentType string) (*domain.AttachmentBody, error) {
	name, err := s.checkUpload(filename, size)
	if err != nil {
		return nil, err
	}

	key := s.ObjectKey(ref, name)
	url, err := s.store.Put(ctx, key, r, size, contentType)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Attachment uploaded",
		logger.ConversationID(ref.ID),
		zap.String("object_key", key),
		zap.String("size", humanize.IBytes(uint64(size))),
	)
	return &domain.AttachmentBody{URL: url, Filename: filename}, nil
}

// RequestUpload presigns an upload for a large attachment
func (s *Service) RequestUpload(ctx context.Context, ref domain.ConversationRef, filename string, size int64) (*UploadTicket, error) {
	name, err := s.checkUpload(filename, size)
	if err != nil {
		return nil, err
	}

	key := s.ObjectKey(ref, name)
	uploadURL, expiresAt, err := s.store.PresignUpload(ctx, key)
	if err != nil {
		return nil, err
	}
	return &UploadTicket{ObjectKey: key, UploadURL: uploadURL, Filename: filename, ExpiresAt: expiresAt}, nil
}

// CompleteUpload verifies a presigned upload landed and returns its attachment body
func (s *Service) CompleteUpload(ctx context.Context, ref domain.ConversationRef, objectKey, filename string) (*domain.AttachmentBody, error) {
	if objectKey == "" {
		return nil, apperrors.MissingFieldError("object_key")
	}
	if !strings.HasPrefix(objectKey, prefix(ref)) || strings.Contains(objectKey, "..") {
		return nil, apperrors.ForbiddenError("object does not belong to this conversation")
	}
	if filename == "" {
		filename = objectKey[strings.LastIndex(objectKey, "/")+1:]
		if _, rest, ok := strings.Cut(filename, "_"); ok {
			filename = rest
		}
	}

	size, err := s.store.Stat(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	if size > s.maxSize {
		return nil, apperrors.ValidationError(fmt.Sprintf("attachment is %s, the limit is %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.maxSize))))
	}

	url, err := s.store.URL(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	return &domain.AttachmentBody{URL: url, Filename: filename}, nil
}

// MaxSize is the upload limit in bytes
func (s *Service) MaxSize() int64 { return s.maxSize }

