package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advance-api/internal/dto"
	"github.com/noah-isme/advance-api/internal/models"
	"github.com/noah-isme/advance-api/internal/service"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
	"github.com/noah-isme/advance-api/pkg/response"
)

const supportFileField = "support"

type advanceService interface {
	Submit(ctx context.Context, req dto.SubmitAdvanceRequest, upload *service.DocumentUpload) (*models.AdvanceRequest, error)
	Approve(ctx context.Context, id int64) (*models.AdvanceRequest, error)
	Reject(ctx context.Context, id int64, req dto.RejectAdvanceRequest) (*models.AdvanceRequest, error)
	ValidateWithholding(ctx context.Context, id int64, req dto.ValidateWithholdingRequest) (*models.AdvanceRequest, error)
	RegisterPayment(ctx context.Context, id int64, req dto.RegisterPaymentRequest, upload *service.DocumentUpload) (*models.AdvanceRequest, error)
	Legalize(ctx context.Context, id int64, req dto.LegalizeRequest) (*models.AdvanceRequest, error)
	Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.AdvanceRequest, error)
	List(ctx context.Context, query dto.AdvanceQuery, actor *models.JWTClaims) ([]models.AdvanceRequest, *models.Pagination, error)
}

type advanceExporter interface {
	Export(ctx context.Context, format service.ExportFormat, query dto.AdvanceQuery, actor *models.JWTClaims) (*service.ExportFile, error)
}

// AdvanceHandler exposes the advance request workflow.
type AdvanceHandler struct {
	advances advanceService
	exports  advanceExporter
}

// NewAdvanceHandler constructs the handler.
func NewAdvanceHandler(advances advanceService, exports advanceExporter) *AdvanceHandler {
	return &AdvanceHandler{advances: advances, exports: exports}
}

// Submit godoc
// @Summary Submit advance request
// @Tags Advances
// @Accept json,mpfd
// @Produce json
// @Param payload body dto.SubmitAdvanceRequest false "Advance payload (JSON)"
// @Param support formData file false "Support document (multipart)"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /advances [post]
func (h *AdvanceHandler) Submit(c *gin.Context) {
	var req dto.SubmitAdvanceRequest
	if err := bindPayload(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	assignRequester(&req, claimsFromContext(c))
	upload, closeUpload, err := formUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeUpload()

	advance, err := h.advances.Submit(c.Request.Context(), req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, advance)
}

// List godoc
// @Summary List advance requests
// @Tags Advances
// @Produce json
// @Param state query string false "Comma separated states"
// @Param approverEmail query string false "Approver email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances [get]
func (h *AdvanceHandler) List(c *gin.Context) {
	query, err := parseAdvanceQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.advances.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Export godoc
// @Summary Export visible advance requests
// @Tags Advances
// @Produce text/csv,application/pdf,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "csv, pdf or xlsx"
// @Param state query string false "Comma separated states"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /advances/export [get]
func (h *AdvanceHandler) Export(c *gin.Context) {
	query, err := parseAdvanceQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Export(c.Request.Context(), service.ExportFormat(c.DefaultQuery("format", "csv")), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Get godoc
// @Summary Get advance request
// @Tags Advances
// @Produce json
// @Param id path int true "Advance ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances/{id} [get]
func (h *AdvanceHandler) Get(c *gin.Context) {
	id, err := advanceID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	advance, err := h.advances.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, advance, nil)
}

// Approve godoc
// @Summary Approve advance request
// @Tags Advances
// @Produce json
// @Param id path int true "Advance ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances/{id}/approve [post]
func (h *AdvanceHandler) Approve(c *gin.Context) {
	id, err := advanceID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	advance, err := h.advances.Approve(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, advance, nil)
}

// Reject godoc
// @Summary Reject advance request
// @Tags Advances
// @Accept json
// @Produce json
// @Param id path int true "Advance ID"
// @Param payload body dto.RejectAdvanceRequest false "Rejection detail"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances/{id}/reject [post]
func (h *AdvanceHandler) Reject(c *gin.Context) {
	id, err := advanceID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RejectAdvanceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
			return
		}
	}
	advance, err := h.advances.Reject(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, advance, nil)
}

// ValidateWithholding godoc
// @Summary Record withholding validation
// @Tags Advances
// @Accept json
// @Produce json
// @Param id path int true "Advance ID"
// @Param payload body dto.ValidateWithholdingRequest true "Withholding payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances/{id}/withholding [post]
func (h *AdvanceHandler) ValidateWithholding(c *gin.Context) {
	id, err := advanceID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ValidateWithholdingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid withholding payload"))
		return
	}
	advance, err := h.advances.ValidateWithholding(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, advance, nil)
}

// RegisterPayment godoc
// @Summary Register payment
// @Tags Advances
// @Accept json,mpfd
// @Produce json
// @Param id path int true "Advance ID"
// @Param payload body dto.RegisterPaymentRequest false "Payment payload (JSON)"
// @Param support formData file false "Payment support (multipart)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances/{id}/payment [post]
func (h *AdvanceHandler) RegisterPayment(c *gin.Context) {
	id, err := advanceID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RegisterPaymentRequest
	if err := bindPayload(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	upload, closeUpload, err := formUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeUpload()

	advance, err := h.advances.RegisterPayment(c.Request.Context(), id, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, advance, nil)
}

// Legalize godoc
// @Summary Record legalization
// @Tags Advances
// @Accept json
// @Produce json
// @Param id path int true "Advance ID"
// @Param payload body dto.LegalizeRequest true "Legalization payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /advances/{id}/legalization [post]
func (h *AdvanceHandler) Legalize(c *gin.Context) {
	id, err := advanceID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.LegalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid legalization payload"))
		return
	}
	advance, err := h.advances.Legalize(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, advance, nil)
}

// assignRequester pins requesters to their own id. Privileged roles may file
// on behalf of someone else and default to themselves.
func assignRequester(req *dto.SubmitAdvanceRequest, actor *models.JWTClaims) {
	if actor == nil {
		return
	}
	if !actor.Role.SeesAllAdvances() || req.RequesterID == 0 {
		req.RequesterID = actor.UserID
	}
}

func advanceID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "advance id must be a positive integer")
	}
	return id, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindPayload accepts JSON or multipart form fields.
func bindPayload(c *gin.Context, dest interface{}) error {
	var err error
	if isMultipart(c) {
		err = c.ShouldBind(dest)
	} else {
		err = c.ShouldBindJSON(dest)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload")
	}
	return nil
}

// formUpload opens the optional support file of a multipart request. The
// returned func closes it and is always safe to call.
func formUpload(c *gin.Context) (*service.DocumentUpload, func(), error) {
	noop := func() {}
	if !isMultipart(c) {
		return nil, noop, nil
	}
	header, err := c.FormFile(supportFileField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, nil
		}
		return nil, noop, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid support file")
	}
	file, err := header.Open()
	if err != nil {
		return nil, noop, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to open support file")
	}
	return uploadFrom(header, file), func() { _ = file.Close() }, nil
}

func uploadFrom(header *multipart.FileHeader, file multipart.File) *service.DocumentUpload {
	return &service.DocumentUpload{Filename: header.Filename, Size: header.Size, Content: file}
}

func parseAdvanceQuery(c *gin.Context) (dto.AdvanceQuery, error) {
	query := dto.AdvanceQuery{ApproverEmail: strings.TrimSpace(c.Query("approverEmail"))}
	for _, raw := range strings.Split(c.Query("state"), ",") {
		if state := strings.ToUpper(strings.TrimSpace(raw)); state != "" {
			query.States = append(query.States, models.AdvanceState(state))
		}
	}
	var err error
	if query.Page, err = intQuery(c, "page"); err != nil {
		return query, err
	}
	if query.PageSize, err = intQuery(c, "limit"); err != nil {
		return query, err
	}
	return query, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a non-negative integer")
	}
	return value, nil
}
