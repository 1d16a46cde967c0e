package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DownloadDocument handles GET /api/cases/:id/document
func (h *CaseHandler) DownloadDocument(c *gin.Context) {
	id, ok := caseID(c)
	if !ok {
		return
	}

	reader, doc, err := h.cases.OpenDocument(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	defer reader.Close()

	h.logger.Debug("streaming document",
		slog.String("case_id", id.String()),
		slog.String("path", doc.StoragePath))

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", doc.Filename))
	c.DataFromReader(http.StatusOK, doc.Size, doc.MimeType, reader, nil)
}
