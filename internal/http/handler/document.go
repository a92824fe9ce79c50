package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"docverify/internal/model"
	"docverify/internal/service"
)

// UploadDocuments godoc
// @Summary      Verify a batch of documents
// @Description  Accepts multipart files under "files" (or "file"), analyzes each accepted file and stores its verdict.
// @Tags         documents
// @Accept       mpfd
// @Produce      json
// @Param        files  formData  file  true  "Documents (png, jpeg, tiff, pdf)"
// @Success      200  {object}  service.BatchResult
// @Failure      400  {object}  batchErrorPayload
// @Failure      413  {object}  errorPayload
// @Failure      422  {object}  batchErrorPayload
// @Router       /upload [post]
func UploadDocuments(svc service.VerificationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILES_REQUIRED", "no files provided")
		}
		headers := form.File["files"]
		if len(headers) == 0 {
			headers = form.File["file"]
		}
		if len(headers) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILES_REQUIRED", "no files provided")
		}

		res, err := svc.Upload(c.UserContext(), rawUploads(headers))
		switch {
		case err == nil:
			return c.JSON(res)
		case errors.Is(err, service.ErrNoFiles):
			return writeError(c, fiber.StatusBadRequest, "FILES_REQUIRED", "no files provided")
		case errors.Is(err, service.ErrAllRejected):
			return writeBatchError(c, fiber.StatusBadRequest, "ALL_REJECTED", "no valid files were uploaded", res)
		case errors.Is(err, service.ErrAllFailed):
			return writeBatchError(c, fiber.StatusUnprocessableEntity, "ALL_FAILED", "no file could be analyzed", res)
		default:
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
	}
}

func rawUploads(headers []*multipart.FileHeader) []model.RawUpload {
	files := make([]model.RawUpload, 0, len(headers))
	for i, fh := range headers {
		files = append(files, model.RawUpload{
			Index:       i,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

// ListDocuments godoc
// @Summary      List verified documents
// @Description  Most recent first. Without limit every document is returned.
// @Tags         documents
// @Produce      json
// @Param        limit   query  int  false  "Maximum number of documents"
// @Param        offset  query  int  false  "Number of documents to skip"
// @Success      200  {object}  service.DocumentListResult
// @Failure      400  {object}  errorPayload
// @Router       /documents [get]
func ListDocuments(svc service.VerificationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "0"))
		if err != nil || limit < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil || offset < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// GetDocument godoc
// @Summary      Get a verified document
// @Tags         documents
// @Produce      json
// @Param        id  path  int  true  "Document ID"
// @Success      200  {object}  model.Document
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Router       /document/{id} [get]
func GetDocument(svc service.VerificationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return documentError(c, err)
		}
		return c.JSON(doc)
	}
}

// DocumentFile godoc
// @Summary      Download the archived original
// @Description  Redirects to a short-lived URL of the archived file.
// @Tags         documents
// @Param        id  path  int  true  "Document ID"
// @Success      307
// @Failure      404  {object}  errorPayload
// @Router       /document/{id}/file [get]
func DocumentFile(svc service.VerificationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		url, err := svc.FileURL(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotArchived) {
				return writeError(c, fiber.StatusNotFound, "NOT_ARCHIVED", "original file is not available")
			}
			return documentError(c, err)
		}
		return c.Redirect(url, fiber.StatusTemporaryRedirect)
	}
}

func documentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// GetStatistics godoc
// @Summary      Verification statistics
// @Tags         statistics
// @Produce      json
// @Success      200  {object}  model.Statistics
// @Router       /statistics [get]
func GetStatistics(svc service.VerificationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := svc.Statistics(c.UserContext())
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(st)
	}
}
