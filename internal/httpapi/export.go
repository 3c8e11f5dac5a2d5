package httpapi

import (
	"bytes"
	"encoding/csv"
	"html/template"
	"strconv"
	"time"

	"lojapos/backend/internal/domain"
)

func closureToCSV(closure domain.DailyClosure) ([]byte, error) {
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", closure.Date},
		{"summary", "closed_by", closure.ClosedBy},
		{"summary", "closed_at", closure.ClosedAt.UTC().Format(time.RFC3339)},
		{"summary", "sales_count", strconv.Itoa(closure.SalesCount)},
		{"summary", "sales_total", domain.FormatCents(closure.SalesTotalCents)},
		{"summary", "gifts_count", strconv.Itoa(closure.GiftsCount)},
		{"summary", "gifts_total", domain.FormatCents(closure.GiftsTotalCents)},
		{"summary", "adjustments_net", domain.FormatCents(closure.AdjustmentsNetCents)},
		{"summary", "attendances_count", strconv.Itoa(closure.AttendancesCount)},
	}
	for _, method := range domain.AllPaymentMethods() {
		rows = append(rows, []string{"payment", string(method), domain.FormatCents(closure.PaymentBreakdown[method])})
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type closurePaymentRow struct {
	Method string
	Amount string
}

type closureHTMLView struct {
	Date             string
	ClosedBy         string
	ClosedAt         string
	SalesCount       int
	SalesTotal       string
	GiftsCount       int
	GiftsTotal       string
	AdjustmentsNet   string
	AttendancesCount int
	Payments         []closurePaymentRow
}

// closureHTMLTmpl renders a printable closure; html/template escapes every field.
var closureHTMLTmpl = template.Must(template.New("closure").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Fechamento de Caixa {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Fechamento de Caixa {{.Date}}</h2>
  <p>Fechado por {{.ClosedBy}} em {{.ClosedAt}}</p>
  <table>
    <tbody>
      <tr><td>Vendas ({{.SalesCount}})</td><td class="num">{{.SalesTotal}}</td></tr>
      <tr><td>Parcerias ({{.GiftsCount}})</td><td class="num">{{.GiftsTotal}}</td></tr>
      <tr><td>Ajustes de caixa</td><td class="num">{{.AdjustmentsNet}}</td></tr>
      <tr><td>Atendimentos</td><td class="num">{{.AttendancesCount}}</td></tr>
    </tbody>
  </table>

  <h3>Por forma de pagamento</h3>
  <table>
    <thead><tr><th>Forma</th><th>Total</th></tr></thead>
    <tbody>{{range .Payments}}<tr><td>{{.Method}}</td><td class="num">{{.Amount}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func closureToPrintableHTML(closure domain.DailyClosure) ([]byte, error) {
	view := closureHTMLView{
		Date:             closure.Date,
		ClosedBy:         closure.ClosedBy,
		ClosedAt:         closure.ClosedAt.UTC().Format(time.RFC3339),
		SalesCount:       closure.SalesCount,
		SalesTotal:       domain.FormatCents(closure.SalesTotalCents),
		GiftsCount:       closure.GiftsCount,
		GiftsTotal:       domain.FormatCents(closure.GiftsTotalCents),
		AdjustmentsNet:   domain.FormatCents(closure.AdjustmentsNetCents),
		AttendancesCount: closure.AttendancesCount,
	}
	for _, method := range domain.AllPaymentMethods() {
		view.Payments = append(view.Payments, closurePaymentRow{
			Method: string(method),
			Amount: domain.FormatCents(closure.PaymentBreakdown[method]),
		})
	}

	var buf bytes.Buffer
	if err := closureHTMLTmpl.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
