package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	jobmetrics "github.com/odyssey-erp/odyssey-backoffice/internal/jobs"
)

const integrityConcurrency = 4

// LedgerChecker is the accounting behaviour needed by the integrity job.
type LedgerChecker interface {
	ListProvisionedCompanies(ctx context.Context) ([]int64, error)
	CheckIntegrity(ctx context.Context, companyID int64) ([]accounting.IntegrityIssue, error)
}

// LedgerIntegrityJob reports journal entries and balances that disagree with the
// posted lines.
type LedgerIntegrityJob struct {
	Ledger  LedgerChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob constructs the job handler.
func NewLedgerIntegrityJob(ledger LedgerChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: dependencies not configured")
	}
	var payload CompanyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CompanyID < 0 {
		return asynq.SkipRetry
	}

	tracker := metricsOr(j.Metrics).Track(TaskLedgerIntegrity)
	start := time.Now()
	companies := []int64{payload.CompanyID}
	if payload.CompanyID == 0 {
		ids, err := j.Ledger.ListProvisionedCompanies(ctx)
		if err != nil {
			j.log().Error("list companies", slog.Any("error", err))
			return tracker.End(err)
		}
		companies = ids
	}

	var (
		mu    sync.Mutex
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(integrityConcurrency)
	for _, companyID := range companies {
		g.Go(func() error {
			issues, err := j.Ledger.CheckIntegrity(gctx, companyID)
			if err != nil {
				j.log().Error("check integrity", slog.Int64("company_id", companyID), slog.Any("error", err))
				return err
			}
			j.report(companyID, issues)
			mu.Lock()
			total += len(issues)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tracker.End(err)
	}

	j.log().Info("ledger integrity checked",
		slog.Int("companies", len(companies)),
		slog.Int("issues", total),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *LedgerIntegrityJob) report(companyID int64, issues []accounting.IntegrityIssue) {
	counts := map[accounting.IssueKind]int{}
	for _, issue := range issues {
		attrs := []any{
			slog.Int64("company_id", companyID),
			slog.String("kind", string(issue.Kind)),
			slog.String("expected", issue.Expected.StringFixed(2)),
			slog.String("actual", issue.Actual.StringFixed(2)),
		}
		if issue.EntryID != nil {
			attrs = append(attrs, slog.Int64("entry_id", *issue.EntryID))
		}
		if issue.AccountID != nil {
			attrs = append(attrs, slog.Int64("account_id", *issue.AccountID))
		}
		j.log().Warn("ledger inconsistency", attrs...)
		counts[issue.Kind]++
	}
	for kind, n := range counts {
		metricsOr(j.Metrics).AddAnomalies(string(kind), companyID, n)
	}
}

func (j *LedgerIntegrityJob) log() *slog.Logger {
	return jobLogger(j.Logger, TaskLedgerIntegrity)
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
