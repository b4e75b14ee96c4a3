package treatment

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const salesSheet = "Ventas"

var salesHeader = []string{
	"Fecha",
	"Folio",
	"Cliente",
	"Correo",
	"Servicio",
	"Sesiones",
	"Usadas",
	"Monto",
	"Método",
	"Tarjeta",
	"Vendido por",
}

var salesColumnWidths = []float64{18, 14, 30, 30, 28, 10, 10, 12, 12, 14, 24}

// renderSales writes one row per package plus a total row.
func renderSales(sales []*Sale, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(salesSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F3E6FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}

	for col, h := range salesHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(salesSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(salesSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style header %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(salesSheet, name, name, salesColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("set width %s: %w", name, err)
		}
	}

	for i, s := range sales {
		p := s.Package
		amount, _ := p.Payment.Amount.Float64()
		values := []interface{}{
			p.PurchasedAt.In(loc).Format("2006-01-02 15:04"),
			p.Payment.ReceiptFolio,
			s.ClientName,
			s.ClientEmail,
			s.ServiceName,
			p.TotalAppointments,
			p.UsedAppointments,
			amount,
			string(p.Payment.Method),
			p.Payment.CardType,
			p.PurchasedByAdmin,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(salesSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if n := len(sales); n > 0 {
		totalRow := n + 2
		if err := f.SetCellValue(salesSheet, fmt.Sprintf("G%d", totalRow), "Total"); err != nil {
			return nil, err
		}
		formula := fmt.Sprintf("SUM(H2:H%d)", n+1)
		if err := f.SetCellFormula(salesSheet, fmt.Sprintf("H%d", totalRow), formula); err != nil {
			return nil, fmt.Errorf("set total formula: %w", err)
		}
		if err := f.SetCellStyle(salesSheet, "H2", fmt.Sprintf("H%d", totalRow), moneyStyle); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
