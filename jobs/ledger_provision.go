package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	jobmetrics "github.com/odyssey-erp/odyssey-backoffice/internal/jobs"
)

// AccountProvisioner creates the system accounts and categories of a company.
type AccountProvisioner interface {
	InitializeSystemAccounts(ctx context.Context, companyID, actorID int64) (accounting.ProvisionResult, error)
}

// ProvisionAccountsJob provisions newly onboarded companies.
type ProvisionAccountsJob struct {
	Provisioner AccountProvisioner
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewProvisionAccountsJob constructs the job handler.
func NewProvisionAccountsJob(provisioner AccountProvisioner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProvisionAccountsJob {
	return &ProvisionAccountsJob{Provisioner: provisioner, Logger: logger, Metrics: metrics}
}

// Handle provisions the company named in the payload. Provisioning is idempotent so
// retries are safe.
func (j *ProvisionAccountsJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Provisioner == nil {
		return errors.New("provision accounts: dependencies not configured")
	}
	var payload ProvisionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.CompanyID <= 0 {
		return asynq.SkipRetry
	}
	tracker := metricsOr(j.Metrics).Track(TaskProvisionAccounts)
	logger := jobLogger(j.Logger, TaskProvisionAccounts).With(slog.Int64("company_id", payload.CompanyID))
	result, err := j.Provisioner.InitializeSystemAccounts(ctx, payload.CompanyID, payload.ActorID)
	if err != nil {
		logger.Error("provision accounts", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("accounts provisioned",
		slog.Int("accounts_created", result.AccountsCreated),
		slog.Int("categories_created", result.CategoriesCreated))
	return tracker.End(nil)
}
