package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/advance-api/internal/dto"
	"github.com/noah-isme/advance-api/internal/models"
	appErrors "github.com/noah-isme/advance-api/pkg/errors"
	"github.com/noah-isme/advance-api/pkg/export"
)

const maxExportRows = 5000

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

type advanceLister interface {
	List(ctx context.Context, query dto.AdvanceQuery, actor *models.JWTClaims) ([]models.AdvanceRequest, *models.Pagination, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered listing.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
	Rows        int
}

// ExportService renders the advance listing visible to a user.
type ExportService struct {
	advances advanceLister
	csv      csvRenderer
	pdf      pdfRenderer
	xlsx     xlsxRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// package defaults.
func NewExportService(advances advanceLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, xlsx xlsxRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(export.WithBOM())
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter("Anticipos")
	}
	return &ExportService{advances: advances, csv: csv, pdf: pdf, xlsx: xlsx, logger: logger, now: time.Now}
}

// Export renders every advance matching query (up to a fixed cap) in format.
func (s *ExportService) Export(ctx context.Context, format ExportFormat, query dto.AdvanceQuery, actor *models.JWTClaims) (*ExportFile, error) {
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF && format != ExportFormatXLSX {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	advances, err := s.collect(ctx, query, actor)
	if err != nil {
		return nil, err
	}
	dataset := advancesDataset(advances)

	var (
		content     []byte
		contentType string
	)
	switch format {
	case ExportFormatPDF:
		content, err = s.pdf.Render(dataset, "Solicitudes de Anticipo")
		contentType = "application/pdf"
	case ExportFormatXLSX:
		content, err = s.xlsx.Render(dataset)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		content, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("advance export rendered", zap.String("format", string(format)), zap.Int("rows", len(advances)))
	return &ExportFile{
		Filename:    fmt.Sprintf("anticipos-%s.%s", s.now().UTC().Format("20060102-150405"), format),
		ContentType: contentType,
		Content:     content,
		Rows:        len(advances),
	}, nil
}

func (s *ExportService) collect(ctx context.Context, query dto.AdvanceQuery, actor *models.JWTClaims) ([]models.AdvanceRequest, error) {
	query.Page = 1
	query.PageSize = maxAdvancePageSize
	result := make([]models.AdvanceRequest, 0)
	for {
		page, pagination, err := s.advances.List(ctx, query, actor)
		if err != nil {
			return nil, err
		}
		result = append(result, page...)
		if len(result) >= maxExportRows {
			s.logger.Warn("advance export truncated", zap.Int("limit", maxExportRows))
			return result[:maxExportRows], nil
		}
		if len(page) < query.PageSize || len(result) >= pagination.TotalCount {
			return result, nil
		}
		query.Page++
	}
}

func advancesDataset(advances []models.AdvanceRequest) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"ID", "Solicitante", "Proveedor", "NIT", "Concepto", "Valor Solicitado", "Valor a Pagar", "Estado", "Fecha Solicitud", "Pagado", "Legalizado"},
		Rows:    make([][]string, 0, len(advances)),
	}
	for i := range advances {
		advance := &advances[i]
		payable := ""
		if advance.PayableAmount.Valid {
			payable = advance.PayableAmount.Decimal.StringFixed(2)
		}
		dataset.Rows = append(dataset.Rows, []string{
			strconv.FormatInt(advance.ID, 10),
			advance.RequesterName,
			advance.VendorName,
			advance.VendorTaxID,
			advance.Concept,
			advance.RequestedAmount.StringFixed(2),
			payable,
			advance.State.Label(),
			advance.CreatedAt.Format("2006-01-02"),
			formatFlag(advance.Paid),
			formatFlag(&advance.Legalized),
		})
	}
	return dataset
}
