package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	ledgerModel "volunteer_hub/internal/domain/ledger/model"
	ledgerService "volunteer_hub/internal/domain/ledger/service"
	"volunteer_hub/internal/domain/product/model"
	"volunteer_hub/internal/domain/product/repository"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/metrics"
	"volunteer_hub/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultApproveNote = "管理员批准兑换"
	defaultRejectNote  = "管理员拒绝兑换"
	userCancelNote     = "用户主动取消兑换"
)

var ErrExchangeNotFound = errs.New(errs.KindNotFound, "兑换记录不存在")

// VolunteerStore 兑换引擎依赖的志愿者查询与行锁
type VolunteerStore interface {
	GetByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error)
	LockByID(ctx context.Context, id int64) (*volunteerModel.Volunteer, error)
	LockByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]volunteerModel.Volunteer, error)
}

// ExchangeInput 兑换请求
type ExchangeInput struct {
	ProductID int64  `json:"productId" binding:"required"`
	Number    int64  `json:"number"`
	RecvInfo  string `json:"recvInfo"`
}

// ProcessInput 管理员审批
type ProcessInput struct {
	Note string `json:"note"`
}

// ExchangeResult 下单结果
type ExchangeResult struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// ExchangeRecordView 志愿者自己的兑换记录
type ExchangeRecordView struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"productId"`
	ItemName    string  `json:"itemName"`
	Number      int64   `json:"number"`
	TotalPoints float64 `json:"totalPoints"`
	Status      string  `json:"status"`
	OrderTime   string  `json:"orderTime"`
	ProcessTime *string `json:"processTime"`
	Note        string  `json:"note"`
	RecvInfo    string  `json:"recvInfo"`
}

// AdminExchangeView 管理端兑换记录
type AdminExchangeView struct {
	ID            int64   `json:"id"`
	VolunteerID   int64   `json:"volunteerId"`
	VolunteerName string  `json:"volunteerName"`
	ProductID     int64   `json:"productId"`
	ProductName   string  `json:"productName"`
	Number        int64   `json:"number"`
	TotalPoints   float64 `json:"totalPoints"`
	Status        string  `json:"status"`
	OrderTime     string  `json:"orderTime"`
	ProcessTime   *string `json:"processTime"`
	Note          string  `json:"note"`
	RecvInfo      string  `json:"recvInfo"`
}

// ExchangeService 兑换引擎：下单扣积分扣库存，审批通过完成订单，拒绝或取消时退还
type ExchangeService interface {
	Exchange(ctx context.Context, p *auth.Principal, in ExchangeInput) (*ExchangeResult, error)
	Approve(ctx context.Context, orderID int64, note string) (*AdminExchangeView, error)
	Reject(ctx context.Context, orderID int64, note string) (*AdminExchangeView, error)
	UserCancel(ctx context.Context, p *auth.Principal, volunteerID, orderID int64) error
	MyExchanges(ctx context.Context, volunteerID int64, page utils.Pagination) (utils.PageResult[ExchangeRecordView], error)
	AdminList(ctx context.Context, status string, page utils.Pagination) (utils.PageResult[AdminExchangeView], error)
}

type exchangeService struct {
	products   repository.ProductRepository
	exchanges  repository.ExchangeRepository
	volunteers VolunteerStore
	ledger     ledgerService.LedgerService
	tx         txn.Runner
	now        func() time.Time
}

func NewExchangeService(
	products repository.ProductRepository,
	exchanges repository.ExchangeRepository,
	volunteers VolunteerStore,
	ledger ledgerService.LedgerService,
	tx txn.Runner,
) ExchangeService {
	return &exchangeService{
		products:   products,
		exchanges:  exchanges,
		volunteers: volunteers,
		ledger:     ledger,
		tx:         tx,
		now:        time.Now,
	}
}

func (s *exchangeService) Exchange(ctx context.Context, p *auth.Principal, in ExchangeInput) (result *ExchangeResult, err error) {
	defer func() { metrics.Default().RecordExchange("order", err) }()

	if p == nil {
		return nil, errs.ErrUnauthorized
	}
	if in.ProductID <= 0 {
		return nil, errs.New(errs.KindValidation, "商品ID不能为空")
	}
	if in.Number <= 0 {
		return nil, errs.New(errs.KindValidation, "兑换数量必须大于0")
	}
	recvInfo := strings.TrimSpace(in.RecvInfo)
	if utf8.RuneCountInString(recvInfo) > 200 {
		return nil, errs.New(errs.KindValidation, "收货信息长度不能超过200个字符")
	}

	var rec *model.ExchangeRecord
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		v, err := s.volunteers.LockByUserID(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotCertified
			}
			return err
		}
		if !v.IsCertified() {
			return errs.ErrNotCertified
		}

		product, err := s.lockProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		product.Refresh()
		if product.Status != model.StatusAvailable {
			return errs.ErrProductUnavailable
		}
		if product.Stock < in.Number {
			return errs.ErrInsufficientStock
		}

		total := utils.RoundPoints(product.Price.Mul(decimal.NewFromInt(in.Number)))
		balance, err := s.ledger.BalanceOf(ctx, v.ID)
		if err != nil {
			return err
		}
		if balance.LessThan(total) {
			return errs.ErrInsufficientPoints
		}

		if err := s.products.Reserve(ctx, product.ID, in.Number); err != nil {
			return err
		}

		rec = &model.ExchangeRecord{
			VolunteerID: v.ID,
			ProductID:   product.ID,
			Number:      in.Number,
			TotalPoints: total,
			Status:      model.ExchangeReviewing,
			OrderTime:   s.now(),
			RecvInfo:    recvInfo,
		}
		if err := s.exchanges.Create(ctx, rec); err != nil {
			return err
		}

		relatedID := rec.ID
		relatedType := ledgerModel.RelatedExchange
		_, err = s.ledger.Append(ctx, ledgerService.AppendInput{
			VolunteerID: v.ID,
			Delta:       total.Neg(),
			ChangeType:  ledgerModel.TypeExchangeUse,
			Reason:      "product:" + strconv.FormatInt(product.ID, 10),
			Note:        "兑换商品: " + product.Name,
			RelatedID:   &relatedID,
			RelatedType: &relatedType,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("exchange ordered",
		zap.Int64("order_id", rec.ID),
		zap.Int64("volunteer_id", rec.VolunteerID),
		zap.Int64("product_id", rec.ProductID),
		zap.Int64("number", rec.Number),
		zap.String("total_points", rec.TotalPoints.StringFixed(utils.PointsScale)),
	)
	return &ExchangeResult{ID: rec.ID, Message: "兑换申请已提交，等待管理员审核"}, nil
}

func (s *exchangeService) Approve(ctx context.Context, orderID int64, note string) (view *AdminExchangeView, err error) {
	defer func() { metrics.Default().RecordExchange("approve", err) }()

	note, err = processNote(note, defaultApproveNote)
	if err != nil {
		return nil, err
	}

	var rec *model.ExchangeRecord
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		rec, err = s.exchanges.LockByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrExchangeNotFound
			}
			return err
		}
		if !rec.Pending() {
			return errs.ErrAlreadyProcessed
		}
		rec.Close(model.ExchangeCompleted, note, s.now())
		return s.exchanges.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("exchange approved", zap.Int64("order_id", orderID))
	return s.adminView(ctx, rec)
}

func (s *exchangeService) Reject(ctx context.Context, orderID int64, note string) (view *AdminExchangeView, err error) {
	defer func() { metrics.Default().RecordExchange("reject", err) }()

	note, err = processNote(note, defaultRejectNote)
	if err != nil {
		return nil, err
	}

	var rec *model.ExchangeRecord
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		found, err := s.getOrder(ctx, orderID)
		if err != nil {
			return err
		}
		rec, err = s.refund(ctx, found, model.ExchangeRejected, note)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("exchange rejected", zap.Int64("order_id", orderID))
	return s.adminView(ctx, rec)
}

func (s *exchangeService) UserCancel(ctx context.Context, p *auth.Principal, volunteerID, orderID int64) (err error) {
	defer func() { metrics.Default().RecordExchange("cancel", err) }()

	if p == nil {
		return errs.ErrUnauthorized
	}

	err = s.tx.Do(ctx, func(ctx context.Context) error {
		own, err := s.volunteers.GetByUserID(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.New(errs.KindNotFound, "未找到志愿者信息")
			}
			return err
		}
		found, err := s.getOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if own.ID != volunteerID || found.VolunteerID != own.ID {
			return errs.New(errs.KindForbidden, "无权操作此兑换记录")
		}
		_, err = s.refund(ctx, found, model.ExchangeCancelled, userCancelNote)
		return err
	})
	if err != nil {
		return err
	}

	logger.Log.Info("exchange cancelled by volunteer", zap.Int64("order_id", orderID), zap.Int64("user_id", p.UserID))
	return nil
}

// refund 关闭待审核订单、归还库存并退还积分。加锁顺序: 志愿者 → 商品 → 订单
func (s *exchangeService) refund(ctx context.Context, found *model.ExchangeRecord, status, note string) (*model.ExchangeRecord, error) {
	if _, err := s.volunteers.LockByID(ctx, found.VolunteerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.New(errs.KindNotFound, "志愿者不存在")
		}
		return nil, err
	}
	if _, err := s.lockProduct(ctx, found.ProductID); err != nil {
		return nil, err
	}
	rec, err := s.exchanges.LockByID(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if !rec.Pending() {
		return nil, errs.ErrAlreadyProcessed
	}

	if err := s.products.Release(ctx, rec.ProductID, rec.Number); err != nil {
		return nil, err
	}
	rec.Close(status, note, s.now())
	if err := s.exchanges.Update(ctx, rec); err != nil {
		return nil, err
	}

	relatedID := rec.ID
	relatedType := ledgerModel.RelatedExchange
	_, err = s.ledger.Append(ctx, ledgerService.AppendInput{
		VolunteerID: rec.VolunteerID,
		Delta:       rec.TotalPoints,
		ChangeType:  ledgerModel.TypeAdminAdjust,
		Reason:      truncate("refund:"+note, 200),
		Note:        note,
		RelatedID:   &relatedID,
		RelatedType: &relatedType,
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *exchangeService) MyExchanges(ctx context.Context, volunteerID int64, page utils.Pagination) (utils.PageResult[ExchangeRecordView], error) {
	offset, limit := page.GetPageOffset()
	list, total, err := s.exchanges.ListByVolunteer(ctx, volunteerID, offset, limit)
	if err != nil {
		return utils.PageResult[ExchangeRecordView]{}, err
	}
	products, err := s.products.FindByIDs(ctx, productIDs(list))
	if err != nil {
		return utils.PageResult[ExchangeRecordView]{}, err
	}

	views := make([]ExchangeRecordView, 0, len(list))
	for i := range list {
		rec := &list[i]
		views = append(views, ExchangeRecordView{
			ID:          rec.ID,
			ProductID:   rec.ProductID,
			ItemName:    products[rec.ProductID].Name,
			Number:      rec.Number,
			TotalPoints: utils.PointsValue(rec.TotalPoints),
			Status:      rec.Status,
			OrderTime:   utils.FormatTime(rec.OrderTime),
			ProcessTime: utils.FormatTimePtr(rec.ProcessTime),
			Note:        rec.Note,
			RecvInfo:    rec.RecvInfo,
		})
	}
	return utils.NewPageResult(views, page, total), nil
}

func (s *exchangeService) AdminList(ctx context.Context, status string, page utils.Pagination) (utils.PageResult[AdminExchangeView], error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "ALL" {
		status = ""
	}
	if status != "" && !model.ValidExchangeStatus(status) {
		return utils.PageResult[AdminExchangeView]{}, errs.Newf(errs.KindValidation, "未知的兑换状态: %s", status)
	}

	offset, limit := page.GetPageOffset()
	list, total, err := s.exchanges.ListAll(ctx, status, offset, limit)
	if err != nil {
		return utils.PageResult[AdminExchangeView]{}, err
	}
	views, err := s.adminViews(ctx, list)
	if err != nil {
		return utils.PageResult[AdminExchangeView]{}, err
	}
	return utils.NewPageResult(views, page, total), nil
}

func (s *exchangeService) getOrder(ctx context.Context, id int64) (*model.ExchangeRecord, error) {
	rec, err := s.exchanges.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *exchangeService) lockProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.products.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *exchangeService) adminView(ctx context.Context, rec *model.ExchangeRecord) (*AdminExchangeView, error) {
	views, err := s.adminViews(ctx, []model.ExchangeRecord{*rec})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *exchangeService) adminViews(ctx context.Context, list []model.ExchangeRecord) ([]AdminExchangeView, error) {
	products, err := s.products.FindByIDs(ctx, productIDs(list))
	if err != nil {
		return nil, err
	}
	vids := make([]int64, 0, len(list))
	for _, rec := range list {
		vids = append(vids, rec.VolunteerID)
	}
	volunteers, err := s.volunteers.FindByIDs(ctx, vids)
	if err != nil {
		return nil, err
	}

	views := make([]AdminExchangeView, 0, len(list))
	for _, rec := range list {
		views = append(views, AdminExchangeView{
			ID:            rec.ID,
			VolunteerID:   rec.VolunteerID,
			VolunteerName: volunteers[rec.VolunteerID].Name,
			ProductID:     rec.ProductID,
			ProductName:   products[rec.ProductID].Name,
			Number:        rec.Number,
			TotalPoints:   utils.PointsValue(rec.TotalPoints),
			Status:        rec.Status,
			OrderTime:     utils.FormatTime(rec.OrderTime),
			ProcessTime:   utils.FormatTimePtr(rec.ProcessTime),
			Note:          rec.Note,
			RecvInfo:      rec.RecvInfo,
		})
	}
	return views, nil
}

func productIDs(list []model.ExchangeRecord) []int64 {
	ids := make([]int64, 0, len(list))
	for _, rec := range list {
		ids = append(ids, rec.ProductID)
	}
	return ids
}

func processNote(note, fallback string) (string, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return fallback, nil
	}
	if utf8.RuneCountInString(note) > 200 {
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
