package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advance-api/internal/dto"
	"github.com/noah-isme/advance-api/internal/middleware"
	"github.com/noah-isme/advance-api/internal/models"
	"github.com/noah-isme/advance-api/internal/service"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
)

type advanceServiceMock struct {
	submitted     dto.SubmitAdvanceRequest
	payment       dto.RegisterPaymentRequest
	uploadName    string
	uploadContent []byte
	lastID        int64
	lastQuery     dto.AdvanceQuery
	err           error
}

func (m *advanceServiceMock) capture(upload *service.DocumentUpload) {
	if upload == nil {
		return
	}
	m.uploadName = upload.Filename
	m.uploadContent, _ = io.ReadAll(upload.Content)
}

func (m *advanceServiceMock) result(id int64, state models.AdvanceState) (*models.AdvanceRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.AdvanceRequest{ID: id, State: state}, nil
}

func (m *advanceServiceMock) Submit(ctx context.Context, req dto.SubmitAdvanceRequest, upload *service.DocumentUpload) (*models.AdvanceRequest, error) {
	m.submitted = req
	m.capture(upload)
	return m.result(1, models.AdvanceStatePendingApproval)
}

func (m *advanceServiceMock) Approve(ctx context.Context, id int64) (*models.AdvanceRequest, error) {
	m.lastID = id
	return m.result(id, models.AdvanceStateValidatingWithholding)
}

func (m *advanceServiceMock) Reject(ctx context.Context, id int64, req dto.RejectAdvanceRequest) (*models.AdvanceRequest, error) {
	m.lastID = id
	return m.result(id, models.AdvanceStateRejected)
}

func (m *advanceServiceMock) ValidateWithholding(ctx context.Context, id int64, req dto.ValidateWithholdingRequest) (*models.AdvanceRequest, error) {
	m.lastID = id
	return m.result(id, models.AdvanceStatePendingPayment)
}

func (m *advanceServiceMock) RegisterPayment(ctx context.Context, id int64, req dto.RegisterPaymentRequest, upload *service.DocumentUpload) (*models.AdvanceRequest, error) {
	m.lastID = id
	m.payment = req
	m.capture(upload)
	return m.result(id, models.AdvanceStatePaidPendingLegalization)
}

func (m *advanceServiceMock) Legalize(ctx context.Context, id int64, req dto.LegalizeRequest) (*models.AdvanceRequest, error) {
	m.lastID = id
	return m.result(id, models.AdvanceStateFinalized)
}

func (m *advanceServiceMock) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.AdvanceRequest, error) {
	m.lastID = id
	return m.result(id, models.AdvanceStatePendingApproval)
}

func (m *advanceServiceMock) List(ctx context.Context, query dto.AdvanceQuery, actor *models.JWTClaims) ([]models.AdvanceRequest, *models.Pagination, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, nil, m.err
	}
	return []models.AdvanceRequest{{ID: 1}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

type exportMock struct {
	format service.ExportFormat
}

func (m *exportMock) Export(ctx context.Context, format service.ExportFormat, query dto.AdvanceQuery, actor *models.JWTClaims) (*service.ExportFile, error) {
	m.format = format
	return &service.ExportFile{Filename: "anticipos.csv", ContentType: "text/csv; charset=utf-8", Content: []byte("ID\n1\n")}, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})
	return c, w
}

func newMultipartContext(t *testing.T, path string, fields map[string]string, fileName string, content []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile(supportFileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})
	return c, w
}

func TestAdvanceHandlerSubmitJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &advanceServiceMock{}
	handler := NewAdvanceHandler(mock, &exportMock{})

	payload := []byte(`{"requesterId":7,"requesterName":"Ana","vendorName":"Proveedora","concept":"Viaticos","requestedAmount":1500.5}`)
	c, w := newGinContext(http.MethodPost, "/advances", payload)
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, int64(7), mock.submitted.RequesterID)
	require.True(t, mock.submitted.RequestedAmount.Equal(decimal.RequireFromString("1500.5")))
	require.Empty(t, mock.uploadName)
}

func TestAdvanceHandlerSubmitAssignsRequester(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &advanceServiceMock{}
	handler := NewAdvanceHandler(mock, &exportMock{})

	payload := []byte(`{"requesterId":99,"requesterName":"Ana","vendorName":"Proveedora","concept":"Viaticos","requestedAmount":100}`)
	c, w := newGinContext(http.MethodPost, "/advances", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 7, Role: models.RoleRequester})
	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, int64(7), mock.submitted.RequesterID)

	payload = []byte(`{"requesterName":"Ana","vendorName":"Proveedora","concept":"Viaticos","requestedAmount":100}`)
	c, w = newGinContext(http.MethodPost, "/advances", payload)
	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, int64(1), mock.submitted.RequesterID)
}

func TestAdvanceHandlerSubmitMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &advanceServiceMock{}
	handler := NewAdvanceHandler(mock, &exportMock{})

	c, w := newMultipartContext(t, "/advances", map[string]string{
		"requesterId":     "7",
		"requesterName":   "Ana",
		"vendorName":      "Proveedora",
		"concept":         "Viaticos",
		"requestedAmount": "250000",
	}, "factura.pdf", []byte("%PDF-1.4"))
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "factura.pdf", mock.uploadName)
	require.Equal(t, []byte("%PDF-1.4"), mock.uploadContent)
	require.True(t, mock.submitted.RequestedAmount.Equal(decimal.NewFromInt(250000)))
}

func TestAdvanceHandlerPaymentMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &advanceServiceMock{}
	handler := NewAdvanceHandler(mock, &exportMock{})

	c, w := newMultipartContext(t, "/advances/9/payment", map[string]string{"paid": "true"}, "pago.png", []byte{0x89, 'P', 'N', 'G'})
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	handler.RegisterPayment(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(9), mock.lastID)
	require.NotNil(t, mock.payment.Paid)
	require.True(t, *mock.payment.Paid)
	require.Equal(t, "pago.png", mock.uploadName)
}

func TestAdvanceHandlerRejectsBadID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdvanceHandler(&advanceServiceMock{}, &exportMock{})

	c, w := newGinContext(http.MethodPost, "/advances/abc/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Approve(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdvanceHandlerMapsServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[*appErrors.Error]int{
		appErrors.ErrInvalidTransition: http.StatusConflict,
		appErrors.ErrConflict:          http.StatusConflict,
		appErrors.ErrNotFound:          http.StatusNotFound,
		appErrors.ErrPersistence:       http.StatusInternalServerError,
	}
	for appErr, status := range cases {
		handler := NewAdvanceHandler(&advanceServiceMock{err: appErrors.Clone(appErr, "")}, &exportMock{})
		c, w := newGinContext(http.MethodPost, "/advances/3/approve", nil)
		c.Params = gin.Params{{Key: "id", Value: "3"}}
		handler.Approve(c)
		require.Equal(t, status, w.Code, appErr.Code)

		var envelope struct {
			Error appErrors.Error `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.Equal(t, appErr.Code, envelope.Error.Code)
	}

	handler := NewAdvanceHandler(&advanceServiceMock{err: errors.New("boom")}, &exportMock{})
	c, w := newGinContext(http.MethodGet, "/advances", nil)
	handler.List(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdvanceHandlerWorkflowEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &advanceServiceMock{}
	handler := NewAdvanceHandler(mock, &exportMock{})

	steps := []struct {
		call func(*gin.Context)
		body string
	}{
		{handler.Reject, `{"detail":"sin presupuesto"}`},
		{handler.Reject, ``},
		{handler.ValidateWithholding, `{"sourceWithholding":"1000","outcome":"ACTIVE_ADVANCE"}`},
		{handler.Legalize, `{"legalized":true,"legalizedBy":"Contabilidad"}`},
		{handler.Get, ``},
	}
	for _, step := range steps {
		c, w := newGinContext(http.MethodPost, "/advances/4", []byte(step.body))
		c.Params = gin.Params{{Key: "id", Value: "4"}}
		step.call(c)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Equal(t, int64(4), mock.lastID)
	}
}

func TestAdvanceHandlerListParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &advanceServiceMock{}
	handler := NewAdvanceHandler(mock, &exportMock{})

	c, w := newGinContext(http.MethodGet, "/advances?state=pending_payment,%20PAID_PENDING_LEGALIZATION&page=2&limit=50&approverEmail=jefe@example.com", nil)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.AdvanceState{models.AdvanceStatePendingPayment, models.AdvanceStatePaidPendingLegalization}, mock.lastQuery.States)
	require.Equal(t, 2, mock.lastQuery.Page)
	require.Equal(t, 50, mock.lastQuery.PageSize)
	require.Equal(t, "jefe@example.com", mock.lastQuery.ApproverEmail)
	require.Contains(t, w.Body.String(), `"total_count":1`)

	c, w = newGinContext(http.MethodGet, "/advances?page=-1", nil)
	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdvanceHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exports := &exportMock{}
	handler := NewAdvanceHandler(&advanceServiceMock{}, exports)

	c, w := newGinContext(http.MethodGet, "/advances/export?format=csv", nil)
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, service.ExportFormatCSV, exports.format)
	require.Equal(t, `attachment; filename="anticipos.csv"`, w.Header().Get("Content-Disposition"))
	require.Equal(t, "ID\n1\n", w.Body.String())
}

type documentServiceMock struct {
	path string
	err  error
}

func (m *documentServiceMock) Link(ctx context.Context, id int64, kind dto.DocumentKind, actor *models.JWTClaims) (*dto.DocumentLinkResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dto.DocumentLinkResponse{URL: "/api/v1/documents/download?token=abc", ExpiresAt: "2024-03-01T10:00:00Z"}, nil
}

func (m *documentServiceMock) Redeem(token string) (*service.DownloadableDocument, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.DownloadableDocument{Path: m.path, Filename: filepath.Base(m.path)}, nil
}

func TestDocumentHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "soporte.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	handler := NewDocumentHandler(&documentServiceMock{path: path})

	c, w := newGinContext(http.MethodGet, "/advances/1/documents/support", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}, {Key: "kind", Value: "support"}}
	handler.Link(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "token=abc")

	c, w = newGinContext(http.MethodGet, "/documents/download?token=abc", nil)
	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "%PDF-1.4", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "soporte.pdf")

	denied := NewDocumentHandler(&documentServiceMock{err: appErrors.Clone(appErrors.ErrUnauthorized, "document link expired")})
	c, w = newGinContext(http.MethodGet, "/documents/download?token=old", nil)
	denied.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimsFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Nil(t, claimsFromContext(c))

	c.Set(middleware.ContextUserKey, "not-claims")
	require.Nil(t, claimsFromContext(c))

	claims := &models.JWTClaims{UserID: 7, Role: models.RoleRequester}
	c.Set(middleware.ContextUserKey, claims)
	require.Same(t, claims, claimsFromContext(c))
}
