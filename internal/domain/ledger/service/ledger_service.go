package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"volunteer_hub/internal/domain/ledger/model"
	"volunteer_hub/internal/domain/ledger/repository"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/metrics"
	"volunteer_hub/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTextLength = 200

var (
	ErrEntryNotFound      = errs.New(errs.KindNotFound, "积分记录不存在")
	ErrVolunteerNotFound  = errs.New(errs.KindNotFound, "志愿者不存在")
	ErrVolunteerSuspended = errs.New(errs.KindNotCertified, "志愿者账号已停用，无法变动积分")
	ErrZeroDelta          = errs.New(errs.KindValidation, "变动积分不能为0")
)

// VolunteerStore 账本依赖的志愿者行锁与物化余额
type VolunteerStore interface {
	LockByID(ctx context.Context, id int64) (*volunteerModel.Volunteer, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	FindByIDs(ctx context.Context, ids []int64) (map[int64]volunteerModel.Volunteer, error)
}

// AppendInput 追加流水
type AppendInput struct {
	VolunteerID int64
	Delta       decimal.Decimal
	ChangeType  string
	Reason      string
	Note        string
	RelatedID   *int64
	RelatedType *string
}

// AdjustInput 管理员新增积分记录
type AdjustInput struct {
	VolunteerID  int64           `json:"volunteerId" binding:"required"`
	ChangePoints decimal.Decimal `json:"changePoints" binding:"required"`
	ChangeType   string          `json:"changeType" binding:"required"`
	Reason       string          `json:"reason"`
	Note         string          `json:"note"`
}

// UpdateInput 管理员修改积分记录
type UpdateInput struct {
	ChangePoints *decimal.Decimal `json:"changePoints"`
	Reason       *string          `json:"reason"`
	Note         *string          `json:"note"`
}

// EntryView 志愿者查看的积分流水
type EntryView struct {
	ID              int64   `json:"id"`
	ChangeTime      string  `json:"changeTime"`
	ChangeType      string  `json:"changeType"`
	ChangeTypeLabel string  `json:"changeTypeLabel"`
	ChangePoints    float64 `json:"changePoints"`
	BalanceAfter    float64 `json:"balanceAfter"`
	Reason          string  `json:"reason"`
	Note            string  `json:"note"`
}

// AdminEntryView 管理端积分流水
type AdminEntryView struct {
	ID                int64   `json:"id"`
	VolunteerID       int64   `json:"volunteerId"`
	VolunteerName     string  `json:"volunteerName"`
	ChangeType        string  `json:"changeType"`
	ChangePoints      float64 `json:"changePoints"`
	BalanceAfter      float64 `json:"balanceAfter"`
	Reason            string  `json:"reason"`
	Note              string  `json:"note"`
	RelatedRecordType *string `json:"relatedRecordType"`
	RelatedRecordID   *int64  `json:"relatedRecordId"`
	ChangeTime        string  `json:"changeTime"`
}

// LedgerService 积分账本。所有余额变化都经过 Append。
type LedgerService interface {
	Append(ctx context.Context, in AppendInput) (*model.PointChangeRecord, error)
	BalanceOf(ctx context.Context, volunteerID int64) (decimal.Decimal, error)
	// CreditedFor 已为某条关联记录入账的累计积分
	CreditedFor(ctx context.Context, changeType, relatedType string, relatedID int64) (decimal.Decimal, error)
	History(ctx context.Context, volunteerID int64, changeType string, p utils.Pagination) (utils.PageResult[EntryView], error)
	Recent(ctx context.Context, volunteerID int64, n int) ([]EntryView, error)
	AdminList(ctx context.Context, changeType, nameKeyword string, p utils.Pagination) (utils.PageResult[AdminEntryView], error)
	Adjust(ctx context.Context, in AdjustInput) (*AdminEntryView, error)
	Update(ctx context.Context, id int64, in UpdateInput) (*AdminEntryView, error)
	Revert(ctx context.Context, id int64) (*AdminEntryView, error)
}

type ledgerService struct {
	repo       repository.LedgerRepository
	volunteers VolunteerStore
	tx         txn.Runner
	now        func() time.Time
}

func NewLedgerService(repo repository.LedgerRepository, volunteers VolunteerStore, tx txn.Runner) LedgerService {
	return &ledgerService{
		repo:       repo,
		volunteers: volunteers,
		tx:         tx,
		now:        time.Now,
	}
}

func (s *ledgerService) lockVolunteer(ctx context.Context, id int64) (*volunteerModel.Volunteer, error) {
	v, err := s.volunteers.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVolunteerNotFound
		}
		return nil, err
	}
	return v, nil
}

func (s *ledgerService) Append(ctx context.Context, in AppendInput) (*model.PointChangeRecord, error) {
	delta := utils.RoundPoints(in.Delta)
	if delta.IsZero() {
		return nil, ErrZeroDelta
	}
	if !model.ValidChangeType(in.ChangeType) {
		return nil, errs.Newf(errs.KindValidation, "未知的积分变动类型: %s", in.ChangeType)
	}

	var rec *model.PointChangeRecord
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		v, err := s.lockVolunteer(ctx, in.VolunteerID)
		if err != nil {
			return err
		}
		if v.Status == volunteerModel.StatusSuspended {
			return ErrVolunteerSuspended
		}

		balance, err := s.repo.SumByVolunteer(ctx, v.ID)
		if err != nil {
			return err
		}
		newBalance := utils.RoundPoints(balance.Add(delta))
		if delta.IsNegative() && newBalance.IsNegative() {
			return errs.ErrInsufficientPoints
		}

		rec = &model.PointChangeRecord{
			VolunteerID:       v.ID,
			ChangePoints:      delta,
			ChangeType:        in.ChangeType,
			Reason:            in.Reason,
			Note:              in.Note,
			RelatedRecordID:   in.RelatedID,
			RelatedRecordType: in.RelatedType,
			BalanceAfter:      newBalance,
			ChangeTime:        s.now(),
		}
		if err := s.repo.Create(ctx, rec); err != nil {
			return err
		}
		return s.volunteers.UpdateBalance(ctx, v.ID, newBalance)
	})
	if err != nil {
		return nil, err
	}

	// 嵌套在外层事务中时，等外层提交后再计数
	txn.AfterCommit(ctx, func() {
		metrics.Default().RecordLedgerEntry(rec.ChangeType)
		logger.Log.Info("ledger entry appended",
			zap.Int64("entry_id", rec.ID),
			zap.Int64("volunteer_id", rec.VolunteerID),
			zap.String("change_type", rec.ChangeType),
			zap.String("change_points", rec.ChangePoints.StringFixed(utils.PointsScale)),
			zap.String("balance_after", rec.BalanceAfter.StringFixed(utils.PointsScale)),
		)
	})
	return rec, nil
}

func (s *ledgerService) BalanceOf(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	total, err := s.repo.SumByVolunteer(ctx, volunteerID)
	if err != nil {
		return decimal.Zero, err
	}
	return utils.RoundPoints(total), nil
}

func (s *ledgerService) CreditedFor(ctx context.Context, changeType, relatedType string, relatedID int64) (decimal.Decimal, error) {
	total, err := s.repo.SumByRelated(ctx, changeType, relatedType, relatedID)
	if err != nil {
		return decimal.Zero, err
	}
	return utils.RoundPoints(total), nil
}

func (s *ledgerService) History(ctx context.Context, volunteerID int64, changeType string, p utils.Pagination) (utils.PageResult[EntryView], error) {
	changeType, err := normalizeType(changeType)
	if err != nil {
		return utils.PageResult[EntryView]{}, err
	}

	offset, limit := p.GetPageOffset()
	list, total, err := s.repo.ListByVolunteer(ctx, volunteerID, changeType, offset, limit)
	if err != nil {
		return utils.PageResult[EntryView]{}, err
	}

	views := make([]EntryView, 0, len(list))
	for i := range list {
		views = append(views, toEntryView(&list[i]))
	}
	return utils.NewPageResult(views, p, total), nil
}

func (s *ledgerService) Recent(ctx context.Context, volunteerID int64, n int) ([]EntryView, error) {
	list, _, err := s.repo.ListByVolunteer(ctx, volunteerID, "", 0, n)
	if err != nil {
		return nil, err
	}
	views := make([]EntryView, 0, len(list))
	for i := range list {
		views = append(views, toEntryView(&list[i]))
	}
	return views, nil
}

func (s *ledgerService) AdminList(ctx context.Context, changeType, nameKeyword string, p utils.Pagination) (utils.PageResult[AdminEntryView], error) {
	changeType, err := normalizeType(changeType)
	if err != nil {
		return utils.PageResult[AdminEntryView]{}, err
	}

	offset, limit := p.GetPageOffset()
	list, total, err := s.repo.ListAll(ctx, changeType, strings.TrimSpace(nameKeyword), offset, limit)
	if err != nil {
		return utils.PageResult[AdminEntryView]{}, err
	}

	views, err := s.toAdminViews(ctx, list)
	if err != nil {
		return utils.PageResult[AdminEntryView]{}, err
	}
	return utils.NewPageResult(views, p, total), nil
}

func (s *ledgerService) Adjust(ctx context.Context, in AdjustInput) (*AdminEntryView, error) {
	if in.VolunteerID <= 0 {
		return nil, errs.New(errs.KindValidation, "志愿者ID不能为空")
	}
	changeType := strings.ToUpper(strings.TrimSpace(in.ChangeType))
	if !model.ValidChangeType(changeType) {
		return nil, errs.Newf(errs.KindValidation, "未知的积分变动类型: %s", in.ChangeType)
	}
	reason, err := validateReason(in.Reason)
	if err != nil {
		return nil, err
	}
	note, err := validateNote(in.Note)
	if err != nil {
		return nil, err
	}

	rec, err := s.Append(ctx, AppendInput{
		VolunteerID: in.VolunteerID,
		Delta:       in.ChangePoints,
		ChangeType:  changeType,
		Reason:      reason,
		Note:        note,
	})
	if err != nil {
		return nil, err
	}
	return s.toAdminView(ctx, rec)
}

// Update 修改历史流水，并从该条开始重算之后每条流水的 balanceAfter 以及物化余额
func (s *ledgerService) Update(ctx context.Context, id int64, in UpdateInput) (*AdminEntryView, error) {
	var reason, note *string
	if in.Reason != nil {
		r, err := validateReason(*in.Reason)
		if err != nil {
			return nil, err
		}
		reason = &r
	}
	if in.Note != nil {
		n, err := validateNote(*in.Note)
		if err != nil {
			return nil, err
		}
		note = &n
	}

	var updated *model.PointChangeRecord
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		entry, err := s.getEntry(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.lockVolunteer(ctx, entry.VolunteerID); err != nil {
			return err
		}
		// 持有志愿者行锁后重新读取
		if entry, err = s.getEntry(ctx, id); err != nil {
			return err
		}

		if reason != nil {
			entry.Reason = *reason
		}
		if note != nil {
			entry.Note = *note
		}

		if in.ChangePoints == nil {
			updated = entry
			return s.repo.UpdateEntry(ctx, entry)
		}

		newDelta := utils.RoundPoints(*in.ChangePoints)
		if newDelta.IsZero() {
			return ErrZeroDelta
		}
		if newDelta.Equal(entry.ChangePoints) {
			return errs.New(errs.KindValidation, "变动数量未发生变化")
		}

		running, err := s.repo.SumBefore(ctx, entry.VolunteerID, entry.ID)
		if err != nil {
			return err
		}
		entries, err := s.repo.ListFrom(ctx, entry.VolunteerID, entry.ID)
		if err != nil {
			return err
		}

		for i := range entries {
			e := &entries[i]
			if e.ID == entry.ID {
				e.ChangePoints = newDelta
				e.Reason = entry.Reason
				e.Note = entry.Note
			}
			running = utils.RoundPoints(running.Add(e.ChangePoints))
			if running.IsNegative() {
				return errs.ErrInsufficientPoints
			}
			e.BalanceAfter = running
			if err := s.repo.UpdateEntry(ctx, e); err != nil {
				return err
			}
			if e.ID == entry.ID {
				updated = e
			}
		}
		if updated == nil {
			return ErrEntryNotFound
		}
		return s.volunteers.UpdateBalance(ctx, entry.VolunteerID, running)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("ledger entry updated", zap.Int64("entry_id", id))
	return s.toAdminView(ctx, updated)
}

// Revert 追加一条与原流水相反的调整记录，重复撤销不做拦截
func (s *ledgerService) Revert(ctx context.Context, id int64) (*AdminEntryView, error) {
	var rec *model.PointChangeRecord
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		original, err := s.getEntry(ctx, id)
		if err != nil {
			return err
		}

		relatedID := original.ID
		rec, err = s.Append(ctx, AppendInput{
			VolunteerID: original.VolunteerID,
			Delta:       original.ChangePoints.Neg(),
			ChangeType:  model.TypeAdminAdjust,
			Reason:      "revert:" + strconv.FormatInt(original.ID, 10),
			Note:        truncate("原记录: "+original.Reason, maxTextLength),
			RelatedID:   &relatedID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.toAdminView(ctx, rec)
}

func (s *ledgerService) getEntry(ctx context.Context, id int64) (*model.PointChangeRecord, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (s *ledgerService) toAdminView(ctx context.Context, rec *model.PointChangeRecord) (*AdminEntryView, error) {
	views, err := s.toAdminViews(ctx, []model.PointChangeRecord{*rec})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ledgerService) toAdminViews(ctx context.Context, list []model.PointChangeRecord) ([]AdminEntryView, error) {
	ids := make([]int64, 0, len(list))
	for _, rec := range list {
		ids = append(ids, rec.VolunteerID)
	}
	volunteers, err := s.volunteers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]AdminEntryView, 0, len(list))
	for _, rec := range list {
		views = append(views, AdminEntryView{
			ID:                rec.ID,
			VolunteerID:       rec.VolunteerID,
			VolunteerName:     volunteers[rec.VolunteerID].Name,
			ChangeType:        rec.ChangeType,
			ChangePoints:      utils.PointsValue(rec.ChangePoints),
			BalanceAfter:      utils.PointsValue(rec.BalanceAfter),
			Reason:            rec.Reason,
			Note:              rec.Note,
			RelatedRecordType: rec.RelatedRecordType,
			RelatedRecordID:   rec.RelatedRecordID,
			ChangeTime:        utils.FormatTime(rec.ChangeTime),
		})
	}
	return views, nil
}

func toEntryView(rec *model.PointChangeRecord) EntryView {
	return EntryView{
		ID:              rec.ID,
		ChangeTime:      utils.FormatTime(rec.ChangeTime),
		ChangeType:      rec.ChangeType,
		ChangeTypeLabel: model.TypeLabel(rec.ChangeType),
		ChangePoints:    utils.PointsValue(rec.ChangePoints),
		BalanceAfter:    utils.PointsValue(rec.BalanceAfter),
		Reason:          rec.Reason,
		Note:            rec.Note,
	}
}

func normalizeType(changeType string) (string, error) {
	changeType = strings.ToUpper(strings.TrimSpace(changeType))
	if changeType == "" || changeType == "ALL" {
		return "", nil
	}
	if !model.ValidChangeType(changeType) {
		return "", errs.Newf(errs.KindValidation, "未知的积分变动类型: %s", changeType)
	}
	return changeType, nil
}

func validateReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", errs.New(errs.KindValidation, "变动原因不能为空")
	}
	if utf8.RuneCountInString(reason) > maxTextLength {
		return "", errs.New(errs.KindValidation, "变动原因长度不能超过200个字符")
	}
	return reason, nil
}

func validateNote(note string) (string, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxTextLength {
		return "", errs.New(errs.KindValidation, "备注长度不能超过200个字符")
	}
	return note, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
