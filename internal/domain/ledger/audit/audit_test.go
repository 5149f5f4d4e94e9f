package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAuditor(t *testing.T) (*Auditor, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewAuditor(sqlx.NewDb(sqlDB, "sqlmock")), mock
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "change_points", "balance_after", "running"})
}

func TestAccounts(t *testing.T) {
	a, mock := newMockAuditor(t)

	mock.ExpectQuery(`SELECT id, points_balance FROM volunteers WHERE deleted = FALSE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "points_balance"}).
			AddRow(1, "10.00").
			AddRow(2, "0"))

	accounts, err := a.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.EqualValues(t, 1, accounts[0].ID)
	assert.Equal(t, "10.00", accounts[0].Balance.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheck_Consistent(t *testing.T) {
	a, mock := newMockAuditor(t)

	mock.ExpectQuery(`FROM point_change_records WHERE volunteer_id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(entryRows().
			AddRow(1, "20.00", "20.00", "20.00").
			AddRow(4, "-5.50", "14.50", "14.50"))

	f, err := a.Check(context.Background(), Account{ID: 7, Balance: decimal.RequireFromString("14.50")})
	require.NoError(t, err)
	assert.True(t, f.OK())
	assert.Equal(t, 2, f.Entries)
	assert.Equal(t, "14.50", f.Sum.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheck_BalanceDrift(t *testing.T) {
	a, mock := newMockAuditor(t)

	mock.ExpectQuery(`FROM point_change_records`).
		WithArgs(int64(7)).
		WillReturnRows(entryRows().AddRow(1, "20.00", "20.00", "20.00"))

	f, err := a.Check(context.Background(), Account{ID: 7, Balance: decimal.RequireFromString("25.00")})
	require.NoError(t, err)
	assert.False(t, f.OK())
	require.Len(t, f.Problems, 1)
	assert.Contains(t, f.Problems[0], "balance 25.00")
}

func TestCheck_BrokenRunningSum(t *testing.T) {
	a, mock := newMockAuditor(t)

	mock.ExpectQuery(`FROM point_change_records`).
		WithArgs(int64(7)).
		WillReturnRows(entryRows().
			AddRow(1, "20.00", "20.00", "20.00").
			AddRow(2, "-5.00", "10.00", "15.00"))

	f, err := a.Check(context.Background(), Account{ID: 7, Balance: decimal.RequireFromString("15.00")})
	require.NoError(t, err)
	require.Len(t, f.Problems, 1)
	assert.Contains(t, f.Problems[0], "record 2")
}

func TestCheck_NoEntries(t *testing.T) {
	a, mock := newMockAuditor(t)

	mock.ExpectQuery(`FROM point_change_records`).
		WithArgs(int64(3)).
		WillReturnRows(entryRows())

	f, err := a.Check(context.Background(), Account{ID: 3, Balance: decimal.Zero})
	require.NoError(t, err)
	assert.True(t, f.OK())
	assert.Zero(t, f.Entries)
}
