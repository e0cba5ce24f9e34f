// Package interfaces holds escrow adapters outside the JSON API: the
// statement export surface and event publishing glue.
package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
)

// BuildStatementPDF renders a minimal PDF for an owner statement.
func BuildStatementPDF(stmt *application.Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Escrow Account Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Owner: %s", stmt.Owner))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Deposited: %d", stmt.Totals.Deposited))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Returned: %d", stmt.Totals.Returned))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Penalties: %d", stmt.Totals.Penalties))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Still Escrowed: %d", stmt.Totals.Escrowed))
	pdf.Ln(8)

	// Alarms table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 6, "ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Route", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Deposit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Remaining", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Snoozes", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range stmt.Lines {
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", line.AlarmID), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, line.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, line.PenaltyRoute, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", line.InitialAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", line.RemainingAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", line.SnoozeCount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Disbursed To", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Operation", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "At", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, disbursement := range stmt.Disbursements {
		pdf.CellFormat(60, 6, string(disbursement.To), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", disbursement.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, disbursement.Operation, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, disbursement.At.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a minimal XLSX for an owner statement.
func BuildStatementXLSX(stmt *application.Statement) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	alarmsSheet := "alarms"
	disbursementsSheet := "disbursements"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(alarmsSheet)
	f.NewSheet(disbursementsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Escrow Account Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Owner")
	_ = f.SetCellValue(summarySheet, "B3", stmt.Owner)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", stmt.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Total Deposited")
	_ = f.SetCellValue(summarySheet, "B5", stmt.Totals.Deposited)
	_ = f.SetCellValue(summarySheet, "A6", "Total Returned")
	_ = f.SetCellValue(summarySheet, "B6", stmt.Totals.Returned)
	_ = f.SetCellValue(summarySheet, "A7", "Total Penalties")
	_ = f.SetCellValue(summarySheet, "B7", stmt.Totals.Penalties)
	_ = f.SetCellValue(summarySheet, "A8", "Still Escrowed")
	_ = f.SetCellValue(summarySheet, "B8", stmt.Totals.Escrowed)

	_ = f.SetCellValue(alarmsSheet, "A1", "Alarm ID")
	_ = f.SetCellValue(alarmsSheet, "B1", "Address")
	_ = f.SetCellValue(alarmsSheet, "C1", "Status")
	_ = f.SetCellValue(alarmsSheet, "D1", "Route")
	_ = f.SetCellValue(alarmsSheet, "E1", "Deposit")
	_ = f.SetCellValue(alarmsSheet, "F1", "Remaining")
	_ = f.SetCellValue(alarmsSheet, "G1", "Snoozes")
	_ = f.SetCellValue(alarmsSheet, "H1", "Alarm Time")
	_ = f.SetCellValue(alarmsSheet, "I1", "Deadline")
	for i, line := range stmt.Lines {
		row := i + 2
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("A%d", row), line.AlarmID)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("B%d", row), line.Address)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("C%d", row), line.Status)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("D%d", row), line.PenaltyRoute)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("E%d", row), line.InitialAmount)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("F%d", row), line.RemainingAmount)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("G%d", row), line.SnoozeCount)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("H%d", row), line.AlarmTime.Format(time.RFC3339))
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("I%d", row), line.Deadline.Format(time.RFC3339))
	}

	_ = f.SetCellValue(disbursementsSheet, "A1", "To")
	_ = f.SetCellValue(disbursementsSheet, "B1", "Amount")
	_ = f.SetCellValue(disbursementsSheet, "C1", "Operation")
	_ = f.SetCellValue(disbursementsSheet, "D1", "At")
	for i, disbursement := range stmt.Disbursements {
		row := i + 2
		_ = f.SetCellValue(disbursementsSheet, fmt.Sprintf("A%d", row), string(disbursement.To))
		_ = f.SetCellValue(disbursementsSheet, fmt.Sprintf("B%d", row), disbursement.Amount)
		_ = f.SetCellValue(disbursementsSheet, fmt.Sprintf("C%d", row), disbursement.Operation)
		_ = f.SetCellValue(disbursementsSheet, fmt.Sprintf("D%d", row), disbursement.At.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
