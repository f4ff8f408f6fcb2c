package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"secondbrain/app/middleware"
	"secondbrain/store"
	"secondbrain/types"
)

// blobCleanupLimit bounds concurrent blob deletions when an owner clears
// all files.
const blobCleanupLimit = 4

type FileStore interface {
	ListDocuments(ctx context.Context, ownerID string) ([]types.Document, error)
	DeleteDocument(ctx context.Context, ownerID string, id uuid.UUID) (string, error)
	DeleteByOwner(ctx context.Context, ownerID string) ([]string, error)
	DeleteBlob(ctx context.Context, key string) error
}

type FileHandler struct {
	store  FileStore
	logger *slog.Logger
}

func NewFileHandler(s FileStore, logger *slog.Logger) *FileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{
		store:  s,
		logger: logger.With("component", "files"),
	}
}

func (h *FileHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.UserContext(), middleware.OwnerID(c))
	if err != nil {
		return err
	}

	files := make([]types.FileInfo, 0, len(docs))
	for _, doc := range docs {
		files = append(files, types.NewFileInfo(doc))
	}
	return c.JSON(fiber.Map{"files": files})
}

// HandleDelete removes the metadata row first and then the blob. A blob
// that cannot be removed is logged and left behind.
func (h *FileHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	owner := middleware.OwnerID(c)

	key, err := h.store.DeleteDocument(c.UserContext(), owner, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "file")
	}
	if err != nil {
		return err
	}

	if err := h.store.DeleteBlob(c.UserContext(), key); err != nil {
		h.logger.Warn("orphaned blob: delete failed", "owner", owner, "key", key, "error", err)
	}
	return c.JSON(fiber.Map{"deleted": id})
}

// HandleDeleteAll clears every file of the owner. Blob removals run
// concurrently and their failures are only logged.
func (h *FileHandler) HandleDeleteAll(c *fiber.Ctx) error {
	owner := middleware.OwnerID(c)
	keys, err := h.store.DeleteByOwner(c.UserContext(), owner)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	var g errgroup.Group
	g.SetLimit(blobCleanupLimit)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := h.store.DeleteBlob(ctx, key); err != nil {
				h.logger.Warn("orphaned blob: delete failed", "owner", owner, "key", key, "error", err)
			}
			return nil
		})
	}
	g.Wait()

	h.logger.Info("all files deleted", "owner", owner, "count", len(keys))
	return c.JSON(fiber.Map{"deleted": len(keys)})
}
