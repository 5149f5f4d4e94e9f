// Package audit 离线核对积分流水：志愿者余额必须等于流水之和，
// 每条流水的 balance_after 必须等于按写入顺序累加的结果
package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	volunteersQuery = `SELECT id, points_balance FROM volunteers WHERE deleted = FALSE ORDER BY id`
	entriesQuery    = `SELECT id, change_points, balance_after,
	SUM(change_points) OVER (ORDER BY id) AS running
FROM point_change_records WHERE volunteer_id = $1 ORDER BY id`
)

type Account struct {
	ID      int64           `db:"id"`
	Balance decimal.Decimal `db:"points_balance"`
}

type entry struct {
	ID           int64           `db:"id"`
	ChangePoints decimal.Decimal `db:"change_points"`
	BalanceAfter decimal.Decimal `db:"balance_after"`
	Running      decimal.Decimal `db:"running"`
}

// Finding 一名志愿者的核对结果，OK 为 false 时 Problems 非空
type Finding struct {
	VolunteerID int64
	Balance     decimal.Decimal
	Sum         decimal.Decimal
	Entries     int
	Problems    []string
}

func (f Finding) OK() bool {
	return len(f.Problems) == 0
}

type Auditor struct {
	db *sqlx.DB
}

func NewAuditor(db *sqlx.DB) *Auditor {
	return &Auditor{db: db}
}

func (a *Auditor) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := a.db.SelectContext(ctx, &accounts, volunteersQuery); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Check 逐条核对一名志愿者的流水
func (a *Auditor) Check(ctx context.Context, acc Account) (Finding, error) {
	var entries []entry
	if err := a.db.SelectContext(ctx, &entries, entriesQuery, acc.ID); err != nil {
		return Finding{}, err
	}

	f := Finding{VolunteerID: acc.ID, Balance: acc.Balance, Sum: decimal.Zero, Entries: len(entries)}
	for _, e := range entries {
		f.Sum = f.Sum.Add(e.ChangePoints)
		if !e.BalanceAfter.Equal(e.Running) {
			f.Problems = append(f.Problems, fmt.Sprintf("record %d: balance_after %s, running sum %s",
				e.ID, e.BalanceAfter.StringFixed(2), e.Running.StringFixed(2)))
		}
	}
	if !f.Sum.Equal(acc.Balance) {
		f.Problems = append(f.Problems, fmt.Sprintf("balance %s, sum of entries %s",
			acc.Balance.StringFixed(2), f.Sum.StringFixed(2)))
	}
	return f, nil
}
