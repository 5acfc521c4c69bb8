package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advance-api/internal/dto"
	"github.com/noah-isme/advance-api/internal/models"
	"github.com/noah-isme/advance-api/internal/service"
	"github.com/noah-isme/advance-api/pkg/response"
)

type documentService interface {
	Link(ctx context.Context, id int64, kind dto.DocumentKind, actor *models.JWTClaims) (*dto.DocumentLinkResponse, error)
	Redeem(token string) (*service.DownloadableDocument, error)
}

// DocumentHandler hands out and serves signed document links.
type DocumentHandler struct {
	documents documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(documents documentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Link godoc
// @Summary Signed link to an advance document
// @Tags Documents
// @Produce json
// @Param id path int true "Advance ID"
// @Param kind path string true "support or payment"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances/{id}/documents/{kind} [get]
func (h *DocumentHandler) Link(c *gin.Context) {
	id, err := advanceID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.documents.Link(c.Request.Context(), id, dto.DocumentKind(c.Param("kind")), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a document through a signed link
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, err := h.documents.Redeem(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(doc.Path, doc.Filename)
}
