package service

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/advance-api/internal/models"
	"github.com/noah-isme/advance-api/pkg/export"
)

// MessageOptions carries the deployment-specific parts of a notification.
type MessageOptions struct {
	ActionBaseURL string
	CompanyName   string
	Now           time.Time
}

// RenderedMessage is a ready-to-send subject and HTML body.
type RenderedMessage struct {
	Subject  string
	HTMLBody string
}

type messageView struct {
	RequesterName string
	StateLabel    string
	Fields        []export.Field
	ShowActions   bool
	ApproveURL    string
	RejectURL     string
	Year          int
	CompanyName   string
}

var advanceMessageTemplate = template.Must(template.New("advance").Parse(`<!DOCTYPE html>
<html lang="es">
<head><meta charset="UTF-8"></head>
<body style="margin:0;padding:0;background:#f4f6f8;font-family:Arial,Helvetica,sans-serif;color:#1f2933;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background:#f4f6f8;padding:24px 0;">
<tr><td align="center">
<table role="presentation" width="640" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background:#0b4f8a;color:#ffffff;padding:20px 28px;font-size:20px;font-weight:bold;">Nuevo Estado: {{.StateLabel}}</td></tr>
<tr><td style="padding:24px 28px;">
<p style="margin:0 0 16px 0;">Estimado/a {{.RequesterName}},</p>
<p style="margin:0 0 16px 0;">La solicitud de anticipo registrada a su nombre cambió de estado. Estos son los datos actuales:</p>
<table role="presentation" width="100%" cellpadding="6" cellspacing="0" style="border-collapse:collapse;font-size:14px;">
{{- range .Fields}}
<tr><td style="border:1px solid #d9e2ec;background:#f0f4f8;font-weight:bold;width:38%;">{{.Label}}</td><td style="border:1px solid #d9e2ec;">{{.Value}}</td></tr>
{{- end}}
</table>
{{- if .ShowActions}}
<table role="presentation" cellpadding="0" cellspacing="0" style="margin:24px 0 0 0;">
<tr>
<td style="padding-right:12px;"><a href="{{.ApproveURL}}" style="display:inline-block;background:#2f855a;color:#ffffff;text-decoration:none;padding:10px 22px;border-radius:4px;font-weight:bold;">Aprobar</a></td>
<td><a href="{{.RejectURL}}" style="display:inline-block;background:#c53030;color:#ffffff;text-decoration:none;padding:10px 22px;border-radius:4px;font-weight:bold;">Rechazar</a></td>
</tr>
</table>
{{- end}}
</td></tr>
<tr><td style="background:#f0f4f8;color:#627d98;font-size:12px;text-align:center;padding:14px 28px;">&copy; {{.Year}} {{.CompanyName}}</td></tr>
</table>
</td></tr>
</table>
</body>
</html>
`))

// RenderAdvanceMessage builds the notification for one recipient. Approve and
// reject links appear only while the advance is PENDING_APPROVAL and the
// recipient is not the requester.
func RenderAdvanceMessage(advance *models.AdvanceRequest, recipient string, opts MessageOptions) (RenderedMessage, error) {
	if advance == nil {
		return RenderedMessage{}, fmt.Errorf("advance required")
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	base := strings.TrimRight(opts.ActionBaseURL, "/")
	approveURL := fmt.Sprintf("%s/?id=%d", base, advance.ID)

	view := messageView{
		RequesterName: advance.RequesterName,
		StateLabel:    advance.State.Label(),
		Fields:        advanceFields(advance),
		ShowActions:   showsActions(advance, recipient),
		ApproveURL:    approveURL,
		RejectURL:     approveURL + "&action=reject",
		Year:          now.Year(),
		CompanyName:   opts.CompanyName,
	}

	var body bytes.Buffer
	if err := advanceMessageTemplate.Execute(&body, view); err != nil {
		return RenderedMessage{}, fmt.Errorf("render advance message: %w", err)
	}
	return RenderedMessage{Subject: advanceSubject(advance.ID), HTMLBody: body.String()}, nil
}

func advanceSubject(id int64) string {
	return fmt.Sprintf("Actualización de Estado de Solicitud de Anticipo No.%d", id)
}

func showsActions(advance *models.AdvanceRequest, recipient string) bool {
	if advance.State != models.AdvanceStatePendingApproval {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(recipient), strings.TrimSpace(advance.RequesterEmail))
}

// advanceFields lists the record in the fixed order used by emails and the PDF summary.
func advanceFields(advance *models.AdvanceRequest) []export.Field {
	return []export.Field{
		{Label: "No. Anticipo", Value: fmt.Sprintf("%d", advance.ID)},
		{Label: "Solicitante", Value: advance.RequesterName},
		{Label: "Proveedor", Value: advance.VendorName},
		{Label: "NIT Proveedor", Value: advance.VendorTaxID},
		{Label: "Concepto", Value: advance.Concept},
		{Label: "Valor Solicitado", Value: formatMoney(advance.RequestedAmount)},
		{Label: "Retención en la Fuente", Value: formatNullMoney(advance.SourceWithholding)},
		{Label: "Retención de IVA", Value: formatNullMoney(advance.VATWithholding)},
		{Label: "Retención de ICA", Value: formatNullMoney(advance.ICAWithholding)},
		{Label: "Otros Descuentos", Value: formatNullMoney(advance.OtherDeductions)},
		{Label: "Valor a Pagar", Value: formatNullMoney(advance.PayableAmount)},
		{Label: "Estado", Value: advance.State.Label()},
		{Label: "Fecha de Solicitud", Value: formatDate(&advance.CreatedAt)},
		{Label: "Fecha de Aprobación", Value: formatDate(advance.ApprovedAt)},
		{Label: "Pagado", Value: formatFlag(advance.Paid)},
		{Label: "Legalizado", Value: formatFlag(&advance.Legalized)},
		{Label: "Legalizado Por", Value: deref(advance.LegalizedBy)},
		{Label: "Motivo", Value: deref(advance.RejectionReason)},
		{Label: "Detalle", Value: deref(advance.RejectionDetail)},
	}
}

// formatMoney renders amounts as $1.234.567,89.
func formatMoney(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	integer, fraction, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, digit := range integer {
		if i > 0 && (len(integer)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}
	return sign + "$" + grouped.String() + "," + fraction
}

func formatNullMoney(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return "-"
	}
	return formatMoney(amount.Decimal)
}

func formatDate(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Format("2006-01-02 15:04")
}

func formatFlag(flag *bool) string {
	switch {
	case flag == nil:
		return "-"
	case *flag:
		return "Sí"
	default:
		return "No"
	}
}

func deref(value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return "-"
	}
	return *value
}
