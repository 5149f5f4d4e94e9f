package service

import (
	"context"
	"testing"
	"time"

	ledgerModel "volunteer_hub/internal/domain/ledger/model"
	ledgerService "volunteer_hub/internal/domain/ledger/service"
	"volunteer_hub/internal/domain/product/model"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/memstore"
	"volunteer_hub/internal/pkg/txn/txntest"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exchangeFixture struct {
	store    *memstore.Store
	runner   *txntest.SerialRunner
	ledger   ledgerService.LedgerService
	exchange *exchangeService
	products *productService
}

func newExchangeFixture(t *testing.T) *exchangeFixture {
	t.Helper()
	store := memstore.New()
	runner := store.Runner()
	ledger := ledgerService.NewLedgerService(store.Ledger(), store.Volunteers(), runner)

	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }

	ex := NewExchangeService(store.Products(), store.Exchanges(), store.Volunteers(), ledger, runner).(*exchangeService)
	ex.now = clock
	ps := NewProductService(store.Products(), runner).(*productService)
	ps.now = clock

	return &exchangeFixture{store: store, runner: runner, ledger: ledger, exchange: ex, products: ps}
}

// volunteer 创建已认证志愿者并发放初始积分
func (f *exchangeFixture) volunteer(t *testing.T, userID int64, balance int64) (*auth.Principal, int64) {
	t.Helper()
	vid := f.store.PutVolunteer(volunteerModel.Volunteer{UserID: userID, Name: "志愿者", Status: volunteerModel.StatusCertified})
	if balance > 0 {
		_, err := f.ledger.Append(context.Background(), ledgerService.AppendInput{
			VolunteerID: vid,
			Delta:       decimal.NewFromInt(balance),
			ChangeType:  ledgerModel.TypeAdminAdjust,
			Reason:      "初始",
		})
		require.NoError(t, err)
	}
	return &auth.Principal{UserID: userID, Role: auth.RoleVolunteer}, vid
}

func (f *exchangeFixture) product(price, stock int64) int64 {
	return f.store.PutProduct(model.Product{
		Name:     "保温杯",
		Price:    decimal.NewFromInt(price),
		Stock:    stock,
		Category: "DAILY",
		Status:   model.StatusAvailable,
	})
}

func (f *exchangeFixture) balance(t *testing.T, vid int64) string {
	t.Helper()
	b, err := f.ledger.BalanceOf(context.Background(), vid)
	require.NoError(t, err)
	return b.StringFixed(2)
}

func TestExchange_OrderThenReject(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	p, vid := f.volunteer(t, 10, 100)
	pid := f.product(20, 3)

	res, err := f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 2, RecvInfo: "3号楼"})
	require.NoError(t, err)
	assert.Equal(t, "兑换申请已提交，等待管理员审核", res.Message)

	assert.Equal(t, "60.00", f.balance(t, vid))
	assert.EqualValues(t, 1, f.store.Product(pid).Stock)
	order := f.store.Exchange(res.ID)
	assert.Equal(t, model.ExchangeReviewing, order.Status)
	assert.Equal(t, "40.00", order.TotalPoints.StringFixed(2))

	entries := f.store.Entries(vid)
	debit := entries[len(entries)-1]
	assert.Equal(t, ledgerModel.TypeExchangeUse, debit.ChangeType)
	require.NotNil(t, debit.RelatedRecordID)
	assert.Equal(t, res.ID, *debit.RelatedRecordID)

	view, err := f.exchange.Reject(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.ExchangeRejected, view.Status)
	assert.Equal(t, defaultRejectNote, view.Note)
	assert.NotNil(t, view.ProcessTime)

	// 驳回归还全部预留数量
	assert.Equal(t, "100.00", f.balance(t, vid))
	assert.EqualValues(t, 3, f.store.Product(pid).Stock)
	assert.Equal(t, model.StatusAvailable, f.store.Product(pid).Status)
	assert.Equal(t, "100.00", f.store.Volunteer(vid).PointsBalance.StringFixed(2))
}

func TestExchange_InsufficientPointsMutatesNothing(t *testing.T) {
	f := newExchangeFixture(t)
	p, vid := f.volunteer(t, 10, 10)
	pid := f.product(20, 3)
	before := len(f.store.Entries(vid))

	_, err := f.exchange.Exchange(context.Background(), p, ExchangeInput{ProductID: pid, Number: 1})
	assert.ErrorIs(t, err, errs.ErrInsufficientPoints)

	assert.Equal(t, "10.00", f.balance(t, vid))
	assert.EqualValues(t, 3, f.store.Product(pid).Stock)
	assert.Len(t, f.store.Entries(vid), before)
	page, err := f.exchange.MyExchanges(context.Background(), vid, utils.Pagination{Size: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
}

func TestExchange_LastUnitSellsOut(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	p, _ := f.volunteer(t, 10, 100)
	pid := f.product(10, 2)

	_, err := f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 3})
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)

	res, err := f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 2})
	require.NoError(t, err)
	prod := f.store.Product(pid)
	assert.EqualValues(t, 0, prod.Stock)
	assert.Equal(t, model.StatusSoldOut, prod.Status)

	_, err = f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 1})
	assert.ErrorIs(t, err, errs.ErrProductUnavailable)

	// 取消后恢复上架
	require.NoError(t, f.exchange.UserCancel(ctx, p, f.store.Exchange(res.ID).VolunteerID, res.ID))
	prod = f.store.Product(pid)
	assert.EqualValues(t, 2, prod.Stock)
	assert.Equal(t, model.StatusAvailable, prod.Status)
}

func TestExchange_InputValidation(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	p, _ := f.volunteer(t, 10, 100)
	pid := f.product(10, 2)

	_, err := f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 0})
	assert.True(t, errs.Is(err, errs.KindValidation))
	_, err = f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: -1})
	assert.True(t, errs.Is(err, errs.KindValidation))
	_, err = f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: 0, Number: 1})
	assert.True(t, errs.Is(err, errs.KindValidation))
	_, err = f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: 9999, Number: 1})
	assert.True(t, errs.Is(err, errs.KindNotFound))
	_, err = f.exchange.Exchange(ctx, nil, ExchangeInput{ProductID: pid, Number: 1})
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	f.store.PutVolunteer(volunteerModel.Volunteer{UserID: 20, Name: "待审核", Status: volunteerModel.StatusReviewing})
	_, err = f.exchange.Exchange(ctx, &auth.Principal{UserID: 20}, ExchangeInput{ProductID: pid, Number: 1})
	assert.ErrorIs(t, err, errs.ErrNotCertified)
}

func TestExchange_ProcessedOnlyOnce(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	p, vid := f.volunteer(t, 10, 100)
	pid := f.product(20, 3)

	res, err := f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 1})
	require.NoError(t, err)

	view, err := f.exchange.Approve(ctx, res.ID, "  已发货 ")
	require.NoError(t, err)
	assert.Equal(t, model.ExchangeCompleted, view.Status)
	assert.Equal(t, "已发货", view.Note)

	entries := len(f.store.Entries(vid))
	_, err = f.exchange.Reject(ctx, res.ID, "")
	assert.ErrorIs(t, err, errs.ErrAlreadyProcessed)
	_, err = f.exchange.Approve(ctx, res.ID, "")
	assert.ErrorIs(t, err, errs.ErrAlreadyProcessed)
	assert.ErrorIs(t, f.exchange.UserCancel(ctx, p, vid, res.ID), errs.ErrAlreadyProcessed)

	assert.Len(t, f.store.Entries(vid), entries)
	assert.Equal(t, "80.00", f.balance(t, vid))
	assert.EqualValues(t, 2, f.store.Product(pid).Stock)

	_, err = f.exchange.Approve(ctx, 9999, "")
	assert.ErrorIs(t, err, ErrExchangeNotFound)
}

func TestUserCancel_OwnerOnly(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	owner, ownerID := f.volunteer(t, 10, 100)
	stranger, strangerID := f.volunteer(t, 11, 0)
	pid := f.product(20, 3)

	res, err := f.exchange.Exchange(ctx, owner, ExchangeInput{ProductID: pid, Number: 1})
	require.NoError(t, err)

	err = f.exchange.UserCancel(ctx, stranger, strangerID, res.ID)
	assert.True(t, errs.Is(err, errs.KindForbidden))
	err = f.exchange.UserCancel(ctx, stranger, ownerID, res.ID)
	assert.True(t, errs.Is(err, errs.KindForbidden))
	assert.Equal(t, model.ExchangeReviewing, f.store.Exchange(res.ID).Status)

	require.NoError(t, f.exchange.UserCancel(ctx, owner, ownerID, res.ID))
	order := f.store.Exchange(res.ID)
	assert.Equal(t, model.ExchangeCancelled, order.Status)
	assert.Equal(t, userCancelNote, order.Note)
	assert.Equal(t, "100.00", f.balance(t, ownerID))
}

func TestExchange_Listings(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	p, vid := f.volunteer(t, 10, 100)
	pid := f.product(5, 10)

	first, err := f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 1})
	require.NoError(t, err)
	_, err = f.exchange.Exchange(ctx, p, ExchangeInput{ProductID: pid, Number: 2})
	require.NoError(t, err)
	_, err = f.exchange.Approve(ctx, first.ID, "")
	require.NoError(t, err)

	mine, err := f.exchange.MyExchanges(ctx, vid, utils.Pagination{Size: 10})
	require.NoError(t, err)
	require.Len(t, mine.Content, 2)
	assert.Equal(t, "保温杯", mine.Content[0].ItemName)

	reviewing, err := f.exchange.AdminList(ctx, "reviewing", utils.Pagination{Size: 10})
	require.NoError(t, err)
	require.Len(t, reviewing.Content, 1)
	assert.EqualValues(t, 2, reviewing.Content[0].Number)
	assert.Equal(t, "保温杯", reviewing.Content[0].ProductName)

	all, err := f.exchange.AdminList(ctx, "ALL", utils.Pagination{Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.TotalElements)

	_, err = f.exchange.AdminList(ctx, "SHIPPED", utils.Pagination{Size: 10})
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestProductService_Catalog(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	cup, err := f.products.Create(ctx, ProductInput{Name: "保温杯", Price: decimal.NewFromInt(20), Stock: 5, Category: "daily"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, cup.Status)
	assert.Equal(t, "DAILY", cup.Category)

	empty, err := f.products.Create(ctx, ProductInput{Name: "帆布袋", Price: decimal.NewFromInt(8), Stock: 0, Category: "DAILY", SortWeight: 9})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSoldOut, empty.Status)

	book, err := f.products.Create(ctx, ProductInput{Name: "笔记本", Price: decimal.NewFromInt(5), Stock: 2, Category: "STATIONERY"})
	require.NoError(t, err)
	require.NoError(t, f.products.Delete(ctx, book.ID))
	assert.True(t, errs.Is(f.products.Delete(ctx, book.ID), errs.KindValidation))

	// 不分类时展示售罄商品，隐藏已删除商品
	all, err := f.products.List(ctx, ProductQuery{})
	require.NoError(t, err)
	require.Len(t, all.Content, 2)
	assert.Equal(t, empty.ID, all.Content[0].ID, "higher sort weight first")

	// 指定分类时隐藏售罄商品
	daily, err := f.products.List(ctx, ProductQuery{Category: "daily"})
	require.NoError(t, err)
	require.Len(t, daily.Content, 1)
	assert.Equal(t, cup.ID, daily.Content[0].ID)

	deleted, err := f.products.AdminList(ctx, ProductQuery{Status: "deleted"})
	require.NoError(t, err)
	require.Len(t, deleted.Content, 1)
	assert.Equal(t, book.ID, deleted.Content[0].ID)

	name := "新名字"
	_, err = f.products.Update(ctx, book.ID, ProductUpdateInput{Name: &name})
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestProductService_UpdateStockFlipsStatus(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()
	pid := f.store.PutProduct(model.Product{Name: "雨伞", Price: decimal.NewFromInt(15), Stock: 0, Category: "DAILY", Status: model.StatusSoldOut})

	price := decimal.NewFromInt(12)
	view, err := f.products.Update(ctx, pid, ProductUpdateInput{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSoldOut, view.Status)
	assert.Equal(t, 12.0, view.Price)

	stock := int64(4)
	view, err = f.products.Update(ctx, pid, ProductUpdateInput{Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, view.Status)

	zero := int64(0)
	view, err = f.products.Update(ctx, pid, ProductUpdateInput{Stock: &zero})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSoldOut, view.Status)

	negative := int64(-1)
	_, err = f.products.Update(ctx, pid, ProductUpdateInput{Stock: &negative})
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = f.products.Update(ctx, 9999, ProductUpdateInput{Stock: &stock})
	assert.True(t, errs.Is(err, errs.KindNotFound))
}
