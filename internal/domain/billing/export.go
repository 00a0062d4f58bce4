package billing

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Charges"

var exportHeader = []string{
	"Charge ID", "Client ID", "Note ID", "Appointment ID", "Insurance ID", "Service Date",
	"CPT", "Modifiers", "Units", "Fee", "Amount", "Status", "Billed At", "Paid Amount",
}

var exportWidths = []float64{10, 10, 10, 15, 13, 13, 8, 12, 7, 10, 11, 10, 20, 12}

func writeWorkbook(items []*Charge) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}

	for i, h := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(exportSheet, col, col, exportWidths[i]); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, c := range items {
		row := i + 2
		values := []any{
			c.ID, c.ClientID, c.NoteID, optionalInt(c.AppointmentID), optionalInt(c.InsuranceID),
			c.ServiceDate.String(), c.CPTCode, optionalString(c.Modifiers), c.Units, c.Fee, c.Amount(),
			c.Status, nil, nil,
		}
		if c.BilledAt != nil {
			values[12] = c.BilledAt.UTC().Format("2006-01-02 15:04")
		}
		if c.PaidAmount != nil {
			values[13] = *c.PaidAmount
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, start, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if len(items) > 0 {
		first, _ := excelize.CoordinatesToCellName(10, 2)
		last, _ := excelize.CoordinatesToCellName(11, len(items)+1)
		if err := f.SetCellStyle(exportSheet, first, last, moneyStyle); err != nil {
			return nil, fmt.Errorf("set money style: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
