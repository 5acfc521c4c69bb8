package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/advance-api/internal/dto"
	"github.com/noah-isme/advance-api/internal/models"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
	"github.com/noah-isme/advance-api/pkg/export"
)

type pagedLister struct {
	items   []models.AdvanceRequest
	queries []dto.AdvanceQuery
	err     error
}

func (p *pagedLister) List(ctx context.Context, query dto.AdvanceQuery, actor *models.JWTClaims) ([]models.AdvanceRequest, *models.Pagination, error) {
	p.queries = append(p.queries, query)
	if p.err != nil {
		return nil, nil, p.err
	}
	start := (query.Page - 1) * query.PageSize
	if start > len(p.items) {
		start = len(p.items)
	}
	end := start + query.PageSize
	if end > len(p.items) {
		end = len(p.items)
	}
	return p.items[start:end], &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: len(p.items)}, nil
}

func exportAdvances(n int) []models.AdvanceRequest {
	items := make([]models.AdvanceRequest, 0, n)
	paid := true
	for i := 1; i <= n; i++ {
		items = append(items, models.AdvanceRequest{
			ID:              int64(i),
			RequesterName:   "Ana Pérez",
			VendorName:      "Proveedora",
			VendorTaxID:     "900123456",
			Concept:         "Viáticos",
			RequestedAmount: decimal.NewFromInt(1500),
			PayableAmount:   decimal.NewNullDecimal(decimal.RequireFromString("1450.5")),
			Paid:            &paid,
			State:           models.AdvanceStatePaidPendingLegalization,
			CreatedAt:       time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC),
		})
	}
	return items
}

func TestExportServiceCSVPagesThroughListing(t *testing.T) {
	lister := &pagedLister{items: exportAdvances(450)}
	svc := NewExportService(lister, zap.NewNop(), export.NewCSVExporter(), nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	file, err := svc.Export(context.Background(), "CSV", dto.AdvanceQuery{}, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, "anticipos-20240301-100000.csv", file.Filename)
	require.Equal(t, 450, file.Rows)
	require.Len(t, lister.queries, 3)
	require.Equal(t, 3, lister.queries[2].Page)

	records, err := csv.NewReader(bytes.NewReader(file.Content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 451)
	require.Equal(t, "Valor a Pagar", records[0][6])
	require.Equal(t, []string{"1", "Ana Pérez", "Proveedora", "900123456", "Viáticos", "1500.00", "1450.50",
		"PAGADO / PENDIENTE POR LEGALIZAR", "2024-02-10", "Sí", "No"}, records[1])
}

func TestExportServiceCapsRows(t *testing.T) {
	lister := &pagedLister{items: exportAdvances(maxExportRows + 150)}
	svc := NewExportService(lister, zap.NewNop(), nil, nil, nil)

	file, err := svc.Export(context.Background(), ExportFormatCSV, dto.AdvanceQuery{}, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, maxExportRows, file.Rows)
	require.True(t, strings.HasPrefix(string(file.Content), "\ufeff"))
}

func TestExportServiceXLSXAndPDF(t *testing.T) {
	lister := &pagedLister{items: exportAdvances(3)}
	svc := NewExportService(lister, zap.NewNop(), nil, nil, nil)
	actor := &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}

	xlsx, err := svc.Export(context.Background(), ExportFormatXLSX, dto.AdvanceQuery{}, actor)
	require.NoError(t, err)
	require.Contains(t, xlsx.ContentType, "spreadsheetml")
	book, err := excelize.OpenReader(bytes.NewReader(xlsx.Content))
	require.NoError(t, err)
	rows, err := book.GetRows("Anticipos")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "3", rows[3][0])

	pdf, err := svc.Export(context.Background(), ExportFormatPDF, dto.AdvanceQuery{}, actor)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", pdf.ContentType)
	require.True(t, bytes.HasPrefix(pdf.Content, []byte("%PDF")))
}

func TestExportServiceErrors(t *testing.T) {
	svc := NewExportService(&pagedLister{}, zap.NewNop(), nil, nil, nil)
	_, err := svc.Export(context.Background(), "docx", dto.AdvanceQuery{}, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	failing := NewExportService(&pagedLister{err: appErrors.Clone(appErrors.ErrUnauthorized, "")}, zap.NewNop(), nil, nil, nil)
	_, err = failing.Export(context.Background(), ExportFormatCSV, dto.AdvanceQuery{}, nil)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	broken := NewExportService(&pagedLister{items: exportAdvances(1)}, zap.NewNop(), failingCSV{}, nil, nil)
	_, err = broken.Export(context.Background(), ExportFormatCSV, dto.AdvanceQuery{}, &models.JWTClaims{UserID: 1, Role: models.RoleAdmin})
	require.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

type failingCSV struct{}

func (failingCSV) Render(export.Dataset) ([]byte, error) {
	return nil, errors.New("writer closed")
}
