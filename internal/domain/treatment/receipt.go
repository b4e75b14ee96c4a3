package treatment

import (
	"bytes"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
)

var methodLabel = map[PaymentMethod]string{
	PaymentCash: "Efectivo",
	PaymentCard: "Tarjeta",
}

// renderReceipt produces a one-page purchase receipt.
func renderReceipt(p *Package, serviceName string, loc *time.Location) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, tr("Recibo de compra"))
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	folio := p.Payment.ReceiptFolio
	if folio == "" {
		folio = p.ID.String()[:8]
	}
	lines := []string{
		fmt.Sprintf("Folio: %s", folio),
		fmt.Sprintf("Fecha: %s", p.PurchasedAt.In(loc).Format("02/01/2006 15:04")),
		fmt.Sprintf("Servicio: %s", serviceName),
		fmt.Sprintf("Sesiones: %d", p.TotalAppointments),
		fmt.Sprintf("Monto: $%s MXN", p.Payment.Amount.StringFixed(2)),
	}
	method := methodLabel[p.Payment.Method]
	if p.Payment.CardType != "" {
		method += " (" + p.Payment.CardType + ")"
	}
	lines = append(lines, fmt.Sprintf("Forma de pago: %s", method))

	for i, l := range lines {
		if i > 0 {
			pdf.Ln(8)
		}
		pdf.Cell(0, 10, tr(l))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
