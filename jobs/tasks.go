package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-backoffice/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity verifies journal totals and account balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskProvisionAccounts creates the system accounts of a company.
	TaskProvisionAccounts = "ledger:provision"
	// TaskStockAlerts reports stock at or below its alert threshold.
	TaskStockAlerts = "stock:alerts"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CompanyPayload scopes a job to one company; zero means every company.
type CompanyPayload struct {
	CompanyID int64 `json:"company_id"`
}

// ProvisionPayload identifies the company to provision and who asked for it.
type ProvisionPayload struct {
	CompanyID int64 `json:"company_id"`
	ActorID   int64 `json:"actor_id"`
}

// NewLedgerIntegrityTask constructs an integrity check task.
func NewLedgerIntegrityTask(companyID int64) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, CompanyPayload{CompanyID: companyID})
}

// NewProvisionAccountsTask constructs an account provisioning task.
func NewProvisionAccountsTask(companyID, actorID int64) (*asynq.Task, error) {
	return newTask(TaskProvisionAccounts, ProvisionPayload{CompanyID: companyID, ActorID: actorID}, asynq.MaxRetry(5))
}

// NewStockAlertTask constructs a stock alert scan task.
func NewStockAlertTask(companyID int64) (*asynq.Task, error) {
	return newTask(TaskStockAlerts, CompanyPayload{CompanyID: companyID})
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)...), nil
}
