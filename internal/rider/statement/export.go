package statement

import (
	"context"
	"fmt"
	"time"

	"deliveryBack/internal/rider/model"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Source reads the ledgers of a rider.
type Source interface {
	GetRider(ctx context.Context, id string) (model.Rider, error)
	ListEarnings(ctx context.Context, riderID string) ([]model.EarningsRecord, error)
	ListAdjustments(ctx context.Context, riderID string) ([]model.WalletAdjustment, error)
	ListWithdrawals(ctx context.Context, riderID string) ([]model.WithdrawalRequest, error)
	LedgerTotals(ctx context.Context, riderID string) (model.LedgerTotals, error)
}

// Uploader stores a rendered file and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Logger is the minimal logging contract of the exporter.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Result locates an uploaded statement.
type Result struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Exporter renders rider statements and uploads them.
type Exporter struct {
	source   Source
	uploader Uploader
	folder   string
	logger   Logger
	now      func() time.Time
}

// NewExporter constructs an exporter writing under folder.
func NewExporter(source Source, uploader Uploader, folder string, logger Logger) *Exporter {
	if folder == "" {
		folder = "statements"
	}
	return &Exporter{source: source, uploader: uploader, folder: folder, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Export builds the rider's statement workbook and uploads it.
func (e *Exporter) Export(ctx context.Context, riderID string) (Result, error) {
	l, err := e.collect(ctx, riderID)
	if err != nil {
		return Result{}, err
	}
	f, err := Build(l)
	if err != nil {
		return Result{}, fmt.Errorf("%w: build statement: %w", model.ErrInternal, err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Result{}, fmt.Errorf("%w: render statement: %w", model.ErrInternal, err)
	}

	key := fmt.Sprintf("%s/%s/statement_%s.xlsx", e.folder, riderID, l.GeneratedAt.Format("20060102_150405"))
	url, err := e.uploader.Upload(ctx, key, buf.Bytes(), contentTypeXLSX)
	if err != nil {
		e.logger.Errorf("rider statement: upload %s: %v", key, err)
		return Result{}, fmt.Errorf("%w: upload statement: %w", model.ErrInternal, err)
	}
	e.logger.Infof("rider statement: uploaded %s (%d bytes)", key, buf.Len())
	return Result{Key: key, URL: url}, nil
}

func (e *Exporter) collect(ctx context.Context, riderID string) (Ledger, error) {
	rider, err := e.source.GetRider(ctx, riderID)
	if err != nil {
		return Ledger{}, err
	}
	l := Ledger{Rider: rider, GeneratedAt: e.now()}
	if l.Earnings, err = e.source.ListEarnings(ctx, riderID); err != nil {
		return Ledger{}, err
	}
	if l.Adjustments, err = e.source.ListAdjustments(ctx, riderID); err != nil {
		return Ledger{}, err
	}
	if l.Withdrawals, err = e.source.ListWithdrawals(ctx, riderID); err != nil {
		return Ledger{}, err
	}
	if l.Totals, err = e.source.LedgerTotals(ctx, riderID); err != nil {
		return Ledger{}, err
	}
	return l, nil
}
