package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"deliveryBack/internal/rider/model"
)

// Sheet names of the statement workbook.
const (
	SheetSummary     = "Summary"
	SheetEarnings    = "Earnings"
	SheetAdjustments = "Adjustments"
	SheetWithdrawals = "Withdrawals"
)

const dateLayout = "02.01.2006 15:04"

// Ledger is everything a statement shows for one rider.
type Ledger struct {
	Rider       model.Rider
	Earnings    []model.EarningsRecord
	Adjustments []model.WalletAdjustment
	Withdrawals []model.WithdrawalRequest
	Totals      model.LedgerTotals
	GeneratedAt time.Time
}

// Build renders the ledger into a workbook with one sheet per ledger.
func Build(l Ledger) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return nil, err
	}

	summary := [][]interface{}{
		{"Rider", l.Rider.Name},
		{"Rider ID", l.Rider.ID},
		{"Phone", l.Rider.Phone},
		{"Generated", l.GeneratedAt.Format(dateLayout)},
		{"Earnings", l.Totals.Earnings},
		{"Withdrawals", l.Totals.Withdrawals},
		{"Credits", l.Totals.Credits},
		{"Debits", l.Totals.Debits},
		{"Withdrawable", l.Totals.Withdrawable()},
	}
	if err := writeRows(f, SheetSummary, nil, summary); err != nil {
		return nil, err
	}

	rows := make([][]interface{}, 0, len(l.Earnings))
	for _, e := range l.Earnings {
		rows = append(rows, []interface{}{
			e.DeliveryID, e.CreatedAt.Format(dateLayout), e.DistanceKM,
			e.BaseFee, e.DistanceFee, e.Bonus, e.Penalty, e.FinalAmount, e.Status,
		})
	}
	if err := writeSheet(f, SheetEarnings,
		[]string{"Delivery", "Date", "Distance, km", "Base fee", "Distance fee", "Bonus", "Penalty", "Final", "Status"},
		rows); err != nil {
		return nil, err
	}

	rows = rows[:0]
	for _, a := range l.Adjustments {
		settled := ""
		if a.SettledAt != nil {
			settled = a.SettledAt.Format(dateLayout)
		}
		rows = append(rows, []interface{}{
			a.ID, a.CreatedAt.Format(dateLayout), a.Type, a.Amount, a.Status, a.Reason,
			a.SettlementNotes, settled, strings.Join(a.ClosesAdjustmentIDs, ", "),
		})
	}
	if err := writeSheet(f, SheetAdjustments,
		[]string{"ID", "Date", "Type", "Amount", "Status", "Reason", "Notes", "Closed at", "Closes"},
		rows); err != nil {
		return nil, err
	}

	rows = rows[:0]
	for _, w := range l.Withdrawals {
		processed := ""
		if w.ProcessedAt != nil {
			processed = w.ProcessedAt.Format(dateLayout)
		}
		rows = append(rows, []interface{}{
			w.ID, w.CreatedAt.Format(dateLayout), w.Amount, w.Status,
			w.PaymentMethod, w.PaymentReference, w.AdminNotes, processed,
		})
	}
	if err := writeSheet(f, SheetWithdrawals,
		[]string{"ID", "Date", "Amount", "Status", "Method", "Reference", "Notes", "Processed at"},
		rows); err != nil {
		return nil, err
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	return writeRows(f, sheet, headers, rows)
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	rowIndex := 1
	if len(headers) > 0 {
		for i, header := range headers {
			cell, err := excelize.CoordinatesToCellName(i+1, 1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, header); err != nil {
				return err
			}
		}
		rowIndex++
	}
	for _, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, rowIndex)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, rowIndex, err)
		}
		rowIndex++
	}
	return nil
}
