// Package blobstore stages the documents an operator chooses on an add form
// until the submission is confirmed and sent to the remote API. Staged blobs
// belong to one operator and expire if never submitted.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecase/console/internal/platform/auth"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrMissingKey         = errors.New("document key is required")
)

// MaxFileSize is the maximum staged file size in bytes (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// DefaultRetention is how long an unsubmitted blob is kept.
const DefaultRetention = time.Hour

// AllowedContentTypes lists the document types the remote API accepts.
var AllowedContentTypes = map[string]bool{
	"image/png":          true,
	"image/jpeg":         true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/octet-stream": true,
}

// BlobMetadata describes a staged file.
type BlobMetadata struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Feature     string    `json:"feature,omitempty"`
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore is the contract for staging backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
	ListByOwner(ctx context.Context, owner, feature string) ([]*BlobMetadata, error)
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe BlobStore held in process memory.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	now   func() time.Time
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
		now:   time.Now,
	}
}

// Upload validates the metadata, reads the content, hashes it and stores it.
func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.Key == "" {
		return nil, ErrMissingKey
	}
	meta.ContentType = normalizeContentType(meta.ContentType, meta.FileName)
	if !AllowedContentTypes[meta.ContentType] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = s.now().UTC()

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

// Download returns a reader over the blob content and its metadata.
func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

// ListByOwner returns the owner's staged blobs, optionally for one feature,
// oldest first.
func (s *InMemoryBlobStore) ListByOwner(_ context.Context, owner, feature string) ([]*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*BlobMetadata{}
	for _, b := range s.blobs {
		if b.metadata.Owner != owner {
			continue
		}
		if feature != "" && b.metadata.Feature != feature {
			continue
		}
		m := b.metadata
		matched = append(matched, &m)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// Purge removes blobs staged before olderThan and returns how many went.
func (s *InMemoryBlobStore) Purge(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, b := range s.blobs {
		if b.metadata.CreatedAt.Before(olderThan) {
			delete(s.blobs, id)
			n++
		}
	}
	return n, nil
}

func normalizeContentType(contentType, fileName string) string {
	if ct, _, err := mime.ParseMediaType(contentType); err == nil && ct != "" {
		contentType = ct
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if i := strings.LastIndex(fileName, "."); i >= 0 {
			if byExt := mime.TypeByExtension(strings.ToLower(fileName[i:])); byExt != "" {
				if ct, _, err := mime.ParseMediaType(byExt); err == nil {
					return ct
				}
			}
		}
		return "application/octet-stream"
	}
	return strings.ToLower(contentType)
}

// StageFile stores an uploaded multipart file for owner under the document
// key.
func StageFile(ctx context.Context, store BlobStore, owner, feature, key string, fh *multipart.FileHeader) (*BlobMetadata, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	return store.Upload(ctx, BlobMetadata{
		Owner:       owner,
		Feature:     feature,
		Key:         key,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}, src)
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// BlobHandler lets an operator stage, inspect and discard documents.
type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/uploads", h.handleUpload)
	g.GET("/uploads", h.handleList)
	g.GET("/uploads/:id/metadata", h.handleGetMetadata)
	g.GET("/uploads/:id", h.handleDownload)
	g.DELETE("/uploads/:id", h.handleDelete)
}

func (h *BlobHandler) handleUpload(c echo.Context) error {
	owner := auth.UserIDFromContext(c.Request().Context())
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}

	result, err := StageFile(c.Request().Context(), h.store, owner, c.FormValue("feature"), c.FormValue("key"), file)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrMissingFileName), errors.Is(err, ErrMissingKey):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvalidContentType):
			return c.JSON(http.StatusUnsupportedMediaType, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *BlobHandler) handleList(c echo.Context) error {
	owner := auth.UserIDFromContext(c.Request().Context())
	items, err := h.store.ListByOwner(c.Request().Context(), owner, c.QueryParam("feature"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}

// owned fetches the metadata of id and hides blobs of other operators.
func (h *BlobHandler) owned(c echo.Context) (*BlobMetadata, error) {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if meta.Owner != auth.UserIDFromContext(c.Request().Context()) {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"error": ErrBlobNotFound.Error()})
	}
	return meta, nil
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	meta, err := h.owned(c)
	if meta == nil {
		return err
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	if meta, err := h.owned(c); meta == nil {
		return err
	}
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	if meta, err := h.owned(c); meta == nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
