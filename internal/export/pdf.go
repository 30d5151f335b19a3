// Package export renders printable receipt documents.
package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

// ReceiptPDF renders one receipt record as an A4 PDF. The QR code in the
// footer carries the receipt number and total so a printed copy can be
// checked against the stored record.
func ReceiptPDF(receipt map[string]interface{}, companyName string) ([]byte, error) {
	number := strField(receipt, "number")
	if number == "" {
		return nil, fmt.Errorf("receipt has no number")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	if companyName == "" {
		companyName = "Recibo"
	}
	pdf.CellFormat(0, 10, companyName, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Recibo Nro. %s", number), "", 1, "L", false, 0, "")
	if date := strField(receipt, "date"); date != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Fecha: %s", date), "", 1, "L", false, 0, "")
	}
	if client := strField(receipt, "clientName"); client != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Cliente: %s", client), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Line items
	items, _ := receipt["items"].([]interface{})
	if len(items) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(100, 7, "Detalle", "1", 0, "L", true, 0, "")
		pdf.CellFormat(25, 7, "Cant.", "1", 0, "R", true, 0, "")
		pdf.CellFormat(55, 7, "Importe", "1", 1, "R", true, 0, "")

		pdf.SetFont("Arial", "", 10)
		for _, raw := range items {
			item, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			pdf.CellFormat(100, 7, strField(item, "description"), "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 7, formatAmount(item["quantity"]), "1", 0, "R", false, 0, "")
			pdf.CellFormat(55, 7, formatAmount(item["amount"]), "1", 1, "R", false, 0, "")
		}
	}

	total := formatAmount(receipt["total"])
	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(125, 8, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(55, 8, total, "1", 1, "R", false, 0, "")

	// Verification QR
	qrContent := fmt.Sprintf("RECIBO|%s|%s|%s", number, strField(receipt, "date"), total)
	qrPng, err := qrcode.Encode(qrContent, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode verification qr: %w", err)
	}

	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("verify_qr", imgOptions, bytes.NewReader(qrPng))
	pdf.ImageOptions("verify_qr", 15, 240, 30, 30, false, imgOptions, 0, "")

	pdf.SetXY(15, 272)
	pdf.SetFont("Arial", "", 7)
	pdf.CellFormat(0, 4, qrContent, "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func strField(rec map[string]interface{}, field string) string {
	value, _ := rec[field].(string)
	return value
}

// formatAmount renders a numeric payload field. JSON decoding produces
// float64, but offline clients sometimes store amounts as strings.
func formatAmount(value interface{}) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
		return v
	case int:
		return fmt.Sprintf("%d.00", v)
	case nil:
		return "0.00"
	default:
		return fmt.Sprintf("%v", v)
	}
}
