package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-backoffice/internal/observability"
	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/db"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the account registry and the journal posting engine.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	cache     AccountCache
	refs      *shared.ReferenceGenerator
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
	provision singleflight.Group
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		refs:    shared.NewReferenceGenerator(),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache enables the account reference cache.
func (s *Service) WithCache(cache AccountCache) {
	s.cache = cache
}

// WithReferences overrides the reference generator.
func (s *Service) WithReferences(refs *shared.ReferenceGenerator) {
	if refs != nil {
		s.refs = refs
	}
}

// Post validates the request, persists it as a POSTED entry and applies its balance
// deltas in a single unit of work.
func (s *Service) Post(ctx context.Context, req PostingRequest) (JournalEntry, error) {
	entry, err := s.create(ctx, req, JournalStatusPosted)
	if err != nil {
		return JournalEntry{}, err
	}
	s.metrics.JournalPosted(entry.SourceType)
	if err := s.record(ctx, entry, req.ActorID, "journal.post", map[string]any{
		"reference":   entry.Reference,
		"source_type": entry.SourceType,
		"total":       entry.TotalDebit.StringFixed(2),
	}); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// CreateDraft persists a DRAFT entry without touching balances.
func (s *Service) CreateDraft(ctx context.Context, req PostingRequest) (JournalEntry, error) {
	entry, err := s.create(ctx, req, JournalStatusDraft)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := s.record(ctx, entry, req.ActorID, "journal.draft", map[string]any{"reference": entry.Reference}); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (s *Service) create(ctx context.Context, req PostingRequest, status JournalStatus) (JournalEntry, error) {
	debit, credit, err := req.Validate()
	if err != nil {
		s.metrics.PostingRejected(rejectReason(err))
		return JournalEntry{}, err
	}
	reference := req.Reference
	if reference == "" {
		prefix := req.Prefix
		if prefix == "" {
			prefix = shared.PrefixManualJournal
		}
		reference = s.refs.Next(prefix)
	}
	now := s.now()
	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.SourceID != nil {
			_, linked, err := tx.FindEntryBySource(ctx, req.CompanyID, req.SourceType, *req.SourceID)
			if err != nil {
				return err
			}
			if linked {
				return ErrSourceAlreadyLinked
			}
		}
		accounts, err := tx.GetAccountsForUpdate(ctx, req.CompanyID, lineAccountIDs(req.Lines))
		if err != nil {
			return err
		}
		for _, line := range req.Lines {
			if _, ok := accounts[line.AccountID]; !ok {
				return fmt.Errorf("%w: id %d", ErrAccountNotFound, line.AccountID)
			}
		}
		draft := JournalEntry{
			CompanyID:   req.CompanyID,
			Reference:   reference,
			Date:        req.Date,
			Description: req.Description,
			Status:      status,
			SourceType:  req.SourceType,
			SourceID:    req.SourceID,
			TotalDebit:  debit,
			TotalCredit: credit,
			CreatedBy:   req.ActorID,
		}
		if status == JournalStatusPosted {
			actor := req.ActorID
			draft.PostedBy = &actor
			draft.PostedAt = &now
		}
		inserted, err := tx.InsertJournalEntry(ctx, draft)
		if err != nil {
			return err
		}
		lines, err := tx.InsertJournalLines(ctx, inserted.ID, req.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		if status == JournalStatusPosted {
			if err := applyDeltas(ctx, tx, accounts, lines, false); err != nil {
				return err
			}
		}
		entry = inserted
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSourceAlreadyLinked) {
			s.metrics.PostingRejected("duplicate_source")
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

// PostDraft transitions a DRAFT entry to POSTED, applying its deltas exactly once.
func (s *Service) PostDraft(ctx context.Context, companyID, actorID, entryID int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, fmt.Errorf("%w: entry id required", ErrValidation)
	}
	now := s.now()
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, companyID, entryID)
		if err != nil {
			return err
		}
		if current.Status != JournalStatusDraft {
			return &AlreadyPostedError{EntryID: current.ID, Status: current.Status}
		}
		accounts, err := tx.GetAccountsForUpdate(ctx, companyID, journalAccountIDs(current.Lines))
		if err != nil {
			return err
		}
		if err := applyDeltas(ctx, tx, accounts, current.Lines, false); err != nil {
			return err
		}
		if err := tx.MarkJournalPosted(ctx, current.ID, actorID, now); err != nil {
			return err
		}
		current.Status = JournalStatusPosted
		current.PostedBy = &actorID
		current.PostedAt = &now
		entry = current
		return nil
	})
	if err != nil {
		var already *AlreadyPostedError
		if errors.As(err, &already) {
			s.metrics.PostingRejected("already_posted")
		}
		return JournalEntry{}, err
	}
	s.metrics.JournalPosted(entry.SourceType)
	if err := s.record(ctx, entry, actorID, "journal.post", map[string]any{"reference": entry.Reference, "from_draft": true}); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Void marks an entry VOIDED. A POSTED entry has every delta it applied reversed; a
// DRAFT entry never touched balances.
func (s *Service) Void(ctx context.Context, input VoidInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, fmt.Errorf("%w: entry id required", ErrValidation)
	}
	now := s.now()
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, input.CompanyID, input.EntryID)
		if err != nil {
			return err
		}
		switch current.Status {
		case JournalStatusVoided:
			return ErrAlreadyVoided
		case JournalStatusPosted:
			accounts, err := tx.GetAccountsForUpdate(ctx, input.CompanyID, journalAccountIDs(current.Lines))
			if err != nil {
				return err
			}
			if err := applyDeltas(ctx, tx, accounts, current.Lines, true); err != nil {
				return err
			}
		}
		if err := tx.MarkJournalVoided(ctx, current.ID, input.ActorID, input.Reason, now); err != nil {
			return err
		}
		current.Status = JournalStatusVoided
		current.VoidedBy = &input.ActorID
		current.VoidedAt = &now
		current.VoidReason = input.Reason
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if err := s.record(ctx, entry, input.ActorID, "journal.void", map[string]any{"reason": input.Reason}); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// GetEntry loads an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournal(ctx, companyID, entryID)
		return err
	})
	return entry, err
}

// CheckIntegrity reports entries whose totals disagree and accounts whose balance
// differs from the signed sum of their posted lines.
func (s *Service) CheckIntegrity(ctx context.Context, companyID int64) ([]IntegrityIssue, error) {
	var issues []IntegrityIssue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		totals, err := tx.ListEntryTotals(ctx, companyID)
		if err != nil {
			return err
		}
		for _, t := range totals {
			entryID := t.EntryID
			if !t.TotalDebit.Equal(t.TotalCredit) {
				issues = append(issues, IntegrityIssue{Kind: IssueEntryTotals, EntryID: &entryID, Expected: t.TotalDebit, Actual: t.TotalCredit})
			}
			if !t.TotalDebit.Equal(t.LineDebit) || !t.TotalCredit.Equal(t.LineCredit) {
				issues = append(issues, IntegrityIssue{Kind: IssueEntryLines, EntryID: &entryID, Expected: t.TotalDebit.Add(t.TotalCredit), Actual: t.LineDebit.Add(t.LineCredit)})
			}
		}
		snapshots, err := tx.ListBalanceSnapshots(ctx, companyID)
		if err != nil {
			return err
		}
		for _, snap := range snapshots {
			expected := balanceDelta(snap.Type, snap.PostedDebit, snap.PostedCredit)
			if !expected.Equal(snap.Balance) {
				accountID := snap.AccountID
				issues = append(issues, IntegrityIssue{Kind: IssueBalanceDrift, AccountID: &accountID, Expected: expected, Actual: snap.Balance})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// applyDeltas aggregates the lines per account and adds the signed result to each
// balance in id order.
func applyDeltas(ctx context.Context, tx TxRepository, accounts map[int64]Account, lines []JournalLine, reverse bool) error {
	deltas := make(map[int64]decimal.Decimal, len(accounts))
	for _, line := range lines {
		account, ok := accounts[line.AccountID]
		if !ok {
			return fmt.Errorf("%w: id %d", ErrAccountNotFound, line.AccountID)
		}
		delta := balanceDelta(account.Type, line.Debit, line.Credit)
		if reverse {
			delta = delta.Neg()
		}
		deltas[line.AccountID] = deltas[line.AccountID].Add(delta)
	}
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if deltas[id].IsZero() {
			continue
		}
		if err := tx.AddToBalance(ctx, id, deltas[id]); err != nil {
			return err
		}
	}
	return nil
}

func lineAccountIDs(lines []LineInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func journalAccountIDs(lines []JournalLine) []int64 {
	inputs := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, LineInput{AccountID: line.AccountID})
	}
	return lineAccountIDs(inputs)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUnbalanced):
		return "unbalanced"
	case errors.Is(err, ErrTooFewLines):
		return "too_few_lines"
	case errors.Is(err, ErrInvalidLine):
		return "invalid_line"
	default:
		return "invalid_request"
	}
}

func (s *Service) record(ctx context.Context, entry JournalEntry, actorID int64, action string, meta map[string]any) error {
	return s.audited(ctx, shared.AuditLog{
		CompanyID: entry.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  fmt.Sprintf("%d", entry.ID),
		Meta:      meta,
		At:        s.now(),
	})
}

// audited stores an audit entry. Inside a caller's transaction a failed insert has
// aborted that transaction, so the error is returned; on its own connection the
// failure is only logged.
func (s *Service) audited(ctx context.Context, log shared.AuditLog) error {
	if s.audit == nil {
		return nil
	}
	err := s.audit.Record(ctx, log)
	if err == nil {
		return nil
	}
	if _, joined := db.TxFromContext(ctx); joined {
		return fmt.Errorf("accounting: audit %s: %w", log.Action, err)
	}
	s.logger.Warn("ledger audit failed", slog.String("action", log.Action), slog.String("entity_id", log.EntityID), slog.Any("error", err))
	return nil
}
