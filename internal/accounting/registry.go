package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/db"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// InitializeSystemAccounts provisions the catalog accounts and expense categories for
// a company. Running it again creates nothing. Concurrent calls for one company share
// a single run unless the caller already holds a unit of work.
func (s *Service) InitializeSystemAccounts(ctx context.Context, companyID, actorID int64) (ProvisionResult, error) {
	if companyID == 0 {
		return ProvisionResult{}, fmt.Errorf("%w: company required", ErrValidation)
	}
	if _, inTx := db.TxFromContext(ctx); inTx {
		return s.provisionCompany(ctx, companyID, actorID)
	}
	resultChan := s.provision.DoChan(strconv.FormatInt(companyID, 10), func() (interface{}, error) {
		return s.provisionCompany(ctx, companyID, actorID)
	})
	select {
	case <-ctx.Done():
		return ProvisionResult{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return ProvisionResult{}, res.Err
		}
		return res.Val.(ProvisionResult), nil
	}
}

func (s *Service) provisionCompany(ctx context.Context, companyID, actorID int64) (ProvisionResult, error) {
	var result ProvisionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, account := range systemAccounts {
			created, err := tx.EnsureAccount(ctx, companyID, account)
			if err != nil {
				return fmt.Errorf("ensure account %s: %w", account.Code, err)
			}
			if created {
				result.AccountsCreated++
			}
		}
		for _, category := range systemCategories {
			var accountID *int64
			if category.AccountCode != "" {
				account, err := tx.GetAccountByCode(ctx, companyID, category.AccountCode)
				if err != nil {
					return err
				}
				accountID = &account.ID
			}
			created, err := tx.EnsureExpenseCategory(ctx, companyID, category, accountID)
			if err != nil {
				return fmt.Errorf("ensure category %s: %w", category.Code, err)
			}
			if created {
				result.CategoriesCreated++
			}
		}
		return nil
	})
	if err != nil {
		return ProvisionResult{}, err
	}
	if result.AccountsCreated > 0 || result.CategoriesCreated > 0 {
		s.logger.Info("ledger provisioned",
			slog.Int64("company_id", companyID),
			slog.Int("accounts_created", result.AccountsCreated),
			slog.Int("categories_created", result.CategoriesCreated))
		if err := s.audited(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   actorID,
			Action:    "ledger.provision",
			Entity:    "company",
			EntityID:  strconv.FormatInt(companyID, 10),
			Meta: map[string]any{
				"accounts_created":   result.AccountsCreated,
				"categories_created": result.CategoriesCreated,
			},
			At: s.now(),
		}); err != nil {
			return ProvisionResult{}, err
		}
	}
	return result, nil
}

// HasSystemAccounts reports whether the company was provisioned.
func (s *Service) HasSystemAccounts(ctx context.Context, companyID int64) (bool, error) {
	var count int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		count, err = tx.CountSystemAccounts(ctx, companyID)
		return err
	})
	return count > 0, err
}

// FindByCode returns the account with code, or ErrAccountNotConfigured.
func (s *Service) FindByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountByCode(ctx, companyID, code)
		return err
	})
	return account, err
}

// ResolveAccount returns the identity of the account with code, served from the
// cache when possible.
func (s *Service) ResolveAccount(ctx context.Context, companyID int64, code string) (AccountRef, error) {
	if s.cache != nil {
		ref, ok, err := s.cache.Get(ctx, companyID, code)
		if err != nil {
			s.logger.Warn("account cache read failed", slog.Int64("company_id", companyID), slog.String("code", code), slog.Any("error", err))
		} else if ok {
			return ref, nil
		}
	}
	account, err := s.FindByCode(ctx, companyID, code)
	if err != nil {
		return AccountRef{}, err
	}
	ref := account.Ref()
	if s.cache != nil {
		if err := s.cache.Set(ctx, companyID, ref); err != nil {
			s.logger.Warn("account cache write failed", slog.Int64("company_id", companyID), slog.String("code", code), slog.Any("error", err))
		}
	}
	return ref, nil
}

// CategoryAccount resolves the account an expense category posts to. The boolean is
// false when the category carries no account link.
func (s *Service) CategoryAccount(ctx context.Context, companyID, categoryID int64) (AccountRef, bool, error) {
	var (
		ref    AccountRef
		linked bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		category, err := tx.GetExpenseCategory(ctx, companyID, categoryID)
		if err != nil {
			return err
		}
		if category.AccountID == nil {
			return nil
		}
		account, err := tx.GetAccount(ctx, companyID, *category.AccountID)
		if err != nil {
			return err
		}
		ref, linked = account.Ref(), true
		return nil
	})
	if err != nil {
		return AccountRef{}, false, err
	}
	return ref, linked, nil
}

// ExpenseCategoryByCode returns the company's expense category with code.
func (s *Service) ExpenseCategoryByCode(ctx context.Context, companyID int64, code string) (ExpenseCategory, error) {
	var category ExpenseCategory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		category, err = tx.GetExpenseCategoryByCode(ctx, companyID, code)
		return err
	})
	return category, err
}

// GetExpenseCategory returns the company's expense category by id.
func (s *Service) GetExpenseCategory(ctx context.Context, companyID, categoryID int64) (ExpenseCategory, error) {
	var category ExpenseCategory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		category, err = tx.GetExpenseCategory(ctx, companyID, categoryID)
		return err
	})
	return category, err
}

// ListAccounts retrieves the company's chart of accounts.
func (s *Service) ListAccounts(ctx context.Context, companyID int64) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, companyID)
		return err
	})
	return accounts, err
}

// ListProvisionedCompanies returns every company holding system accounts.
func (s *Service) ListProvisionedCompanies(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.ListCompaniesWithSystemAccounts(ctx)
		return err
	})
	return ids, err
}

// IsNotConfigured reports whether err signals a missing account code.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrAccountNotConfigured)
}
