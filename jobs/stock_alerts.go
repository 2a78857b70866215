package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-backoffice/internal/jobs"
)

// Anomaly kinds counted by the stock alert job.
const (
	anomalyNegativeStock = "NEGATIVE_STOCK"
	anomalyLowStock      = "LOW_STOCK"
)

// StockReader lists stock records that need attention.
type StockReader interface {
	ListAlerts(ctx context.Context, companyID int64) ([]inventory.StockRecord, error)
	ListAllAlerts(ctx context.Context) ([]inventory.StockRecord, error)
}

// StockAlertJob surfaces negative stock and stock at or below its alert threshold.
type StockAlertJob struct {
	Stock   StockReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockAlertJob constructs the job handler.
func NewStockAlertJob(stock StockReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAlertJob {
	return &StockAlertJob{Stock: stock, Logger: logger, Metrics: metrics}
}

// Handle scans the alerting records.
func (j *StockAlertJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("stock alerts: dependencies not configured")
	}
	var payload CompanyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.CompanyID < 0 {
		return asynq.SkipRetry
	}
	tracker := metricsOr(j.Metrics).Track(TaskStockAlerts)
	logger := jobLogger(j.Logger, TaskStockAlerts)

	var (
		records []inventory.StockRecord
		err     error
	)
	if payload.CompanyID == 0 {
		records, err = j.Stock.ListAllAlerts(ctx)
	} else {
		records, err = j.Stock.ListAlerts(ctx, payload.CompanyID)
	}
	if err != nil {
		logger.Error("list stock alerts", slog.Any("error", err))
		return tracker.End(err)
	}

	type bucket struct {
		kind      string
		companyID int64
	}
	counts := map[bucket]int{}
	for _, rec := range records {
		kind := anomalyLowStock
		if rec.Quantity < 0 {
			kind = anomalyNegativeStock
		}
		logger.Warn("stock alert",
			slog.String("kind", kind),
			slog.Int64("company_id", rec.CompanyID),
			slog.Int64("product_id", rec.ProductID),
			slog.String("location", rec.Location.String()),
			slog.Int64("quantity", rec.Quantity),
			slog.Int64("stock_alert", rec.StockAlert))
		counts[bucket{kind, rec.CompanyID}]++
	}
	for b, n := range counts {
		metricsOr(j.Metrics).AddAnomalies(b.kind, b.companyID, n)
	}
	logger.Info("stock alerts scanned", slog.Int("records", len(records)))
	return tracker.End(nil)
}
