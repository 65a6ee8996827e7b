package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/ingestion"
	"github.com/query-router/backend/internal/ingestion/extract"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/pkg/logger"
)

type DocumentHandler struct {
	processor   *ingestion.Processor
	store       *sqlstore.Store
	maxFileSize int64
}

func NewDocumentHandler(processor *ingestion.Processor, store *sqlstore.Store, maxFileSize int64) *DocumentHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	return &DocumentHandler{
		processor:   processor,
		store:       store,
		maxFileSize: maxFileSize,
	}
}

func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "multipart field \"file\" is required")
	}
	if !extract.Supported(fh.Filename) {
		return badRequest(c, "unsupported file format")
	}
	if fh.Size > h.maxFileSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "file exceeds maximum size",
		})
	}

	f, err := fh.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return badRequest(c, "could not read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return badRequest(c, "could not read uploaded file")
	}

	doc, err := h.processor.Ingest(c.UserContext(), fh.Filename, data)
	if err != nil {
		return respondError(c, err, "failed to process document")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Document processed successfully",
		"document": doc,
	})
}

func (h *DocumentHandler) List(c *fiber.Ctx) error {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return respondError(c, err, "invalid skip")
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		return respondError(c, err, "invalid limit")
	}

	docs, err := h.store.ListDocuments(c.UserContext(), skip, limit)
	if err != nil {
		return respondError(c, err, "failed to list documents")
	}
	return c.JSON(docs)
}

func (h *DocumentHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.processor.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err, "failed to get document stats")
	}
	return c.JSON(stats)
}

func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	doc, err := h.store.GetDocument(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "failed to get document")
	}
	chunks, err := h.store.ListDocumentChunks(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "failed to get document chunks")
	}

	return c.JSON(fiber.Map{
		"document": doc,
		"chunks":   chunks,
	})
}

func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	if err := h.processor.DeleteDocument(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err, "failed to delete document")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
