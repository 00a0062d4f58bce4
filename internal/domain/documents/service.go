package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/blobstore"
)

type Service struct {
	repo   Repository
	store  blobstore.BlobStore
	access careteam.Checker
	logger zerolog.Logger
}

func NewService(repo Repository, store blobstore.BlobStore, access careteam.Checker, logger zerolog.Logger) *Service {
	return &Service{repo: repo, store: store, access: access, logger: logger}
}

// cleanFileName keeps the base name of a client supplied path.
func cleanFileName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func normalizeContentType(ct string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", apperr.Invalid("invalid content type %q", ct)
	}
	if !blobstore.AllowedContentTypes[mediaType] {
		return "", apperr.Invalid("content type %s is not allowed", mediaType)
	}
	return mediaType, nil
}

// Upload stores content and records its metadata. The blob is removed again
// when the metadata insert fails.
func (s *Service) Upload(ctx context.Context, p *auth.Principal, up *Upload, content io.Reader) (*Document, error) {
	if up.ClientID == 0 {
		return nil, apperr.Invalid("client_id is required")
	}
	if up.Category == "" {
		up.Category = CategoryOther
	}
	if !validCategories[up.Category] {
		return nil, apperr.Invalid("invalid category: %s", up.Category)
	}
	name := cleanFileName(up.FileName)
	if name == "" {
		return nil, apperr.Invalid("file name is required")
	}
	if len(name) > 255 {
		return nil, apperr.Invalid("file name must be at most 255 characters")
	}
	contentType, err := normalizeContentType(up.ContentType)
	if err != nil {
		return nil, err
	}
	if err := careteam.Require(ctx, s.access, p, up.ClientID); err != nil {
		return nil, err
	}

	obj, err := s.store.Put(ctx, content)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("store document: %w", err)
	}
	if obj.Size == 0 {
		_ = s.store.Delete(ctx, obj.Key)
		return nil, apperr.Invalid("file is empty")
	}

	d := &Document{
		ClientID:    up.ClientID,
		Category:    up.Category,
		FileName:    name,
		ContentType: contentType,
		Size:        obj.Size,
		SHA256:      obj.SHA256,
		StorageKey:  obj.Key,
		UploadedBy:  &p.UserID,
	}
	if desc := strings.TrimSpace(up.Description); desc != "" {
		d.Description = &desc
	}
	if err := s.repo.Create(ctx, d); err != nil {
		if delErr := s.store.Delete(ctx, obj.Key); delErr != nil {
			s.logger.Error().Err(delErr).Str("key", obj.Key).Msg("failed to remove orphaned blob")
		}
		return nil, err
	}
	s.logger.Info().Int64("document_id", d.ID).Int64("client_id", d.ClientID).Int64("size", d.Size).Msg("document uploaded")
	return d, nil
}

func (s *Service) GetDocument(ctx context.Context, p *auth.Principal, id int64) (*Document, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := careteam.Require(ctx, s.access, p, d.ClientID); err != nil {
		return nil, err
	}
	return d, nil
}

// Open returns the document with a reader over its content. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, p *auth.Principal, id int64) (*Document, io.ReadCloser, error) {
	d, err := s.GetDocument(ctx, p, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, d.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Error().Int64("document_id", d.ID).Msg("document content missing from blob store")
			return nil, nil, apperr.NotFound("document content")
		}
		return nil, nil, err
	}
	return d, rc, nil
}

func (s *Service) ListByClient(ctx context.Context, p *auth.Principal, clientID int64, category string, limit, offset int) ([]*Document, int, error) {
	if category != "" && !validCategories[category] {
		return nil, 0, apperr.Invalid("invalid category: %s", category)
	}
	if err := careteam.Require(ctx, s.access, p, clientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByClient(ctx, clientID, category, limit, offset)
}

// Delete hides the document. Only the uploader or an admin may delete; the
// content is retained.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id int64) error {
	d, err := s.GetDocument(ctx, p, id)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && (d.UploadedBy == nil || *d.UploadedBy != p.UserID) {
		return apperr.Forbidden("only the uploader or an admin can delete this document")
	}
	return s.repo.SoftDelete(ctx, id)
}
