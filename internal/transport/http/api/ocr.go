package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/ocrflow/internal/domain"
)

// ProcessOCR runs the OCR workflow for an uploaded document.
// POST /api/ocr (multipart: file, chatbotId, clientId)
func (h *Handler) ProcessOCR(c echo.Context) error {
	ctx := c.Request().Context()

	req := &domain.OCRRequest{
		ChatbotID: c.FormValue("chatbotId"),
		ClientID:  c.FormValue("clientId"),
	}

	doc, err := readDocument(c)
	if err != nil {
		return writeError(c, domain.NewError(domain.ErrorKindValidation, "failed to read uploaded file", err))
	}
	// A missing file is reported by the workflow so it shows up in the session log.
	req.Document = doc

	result, err := h.service.ProcessDocument(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// readDocument loads the "file" part. It returns nil, nil when no file was sent.
func readDocument(c echo.Context) (*domain.UploadedDocument, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return nil, nil
		}
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}

	return &domain.UploadedDocument{
		Data:      data,
		MediaType: mediaType,
		Filename:  fh.Filename,
		Size:      fh.Size,
	}, nil
}
