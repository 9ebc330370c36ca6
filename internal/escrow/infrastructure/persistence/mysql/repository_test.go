package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/investmarket/internal/escrow/domain"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestAccountRepositoryGetByDeal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	rows := sqlmock.NewRows([]string{"id", "account_id", "deal_id", "balance", "status"}).
		AddRow(1, "ESC-1", "DEAL-1", "1000", "OPEN")
	mock.ExpectQuery("SELECT \\* FROM `escrow_accounts` WHERE deal_id = \\?").
		WithArgs("DEAL-1", 1).
		WillReturnRows(rows)

	account, err := repo.GetByDeal(context.Background(), "DEAL-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "ESC-1", account.AccountID)
	assert.Equal(t, domain.AccountStatusOpen, account.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryGetByDealNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `escrow_accounts` WHERE deal_id = \\?").
		WithArgs("DEAL-404", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	account, err := repo.GetByDeal(context.Background(), "DEAL-404")
	require.NoError(t, err)
	assert.Nil(t, account)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepositoryGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `escrow_transactions` WHERE transaction_id = \\?").
		WithArgs("ETX-404", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "ETX-404")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryGetForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "account_id", "deal_id", "balance", "status"}).
		AddRow(1, "ESC-1", "DEAL-1", "1000", "OPEN")
	mock.ExpectQuery("SELECT \\* FROM `escrow_accounts` WHERE deal_id = \\? .* FOR UPDATE").
		WithArgs("DEAL-1", 1).
		WillReturnRows(rows)
	mock.ExpectCommit()

	err := repo.Transaction(context.Background(), func(txCtx context.Context) error {
		account, err := repo.GetByDealForUpdate(txCtx, "DEAL-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "ESC-1", account.AccountID)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
