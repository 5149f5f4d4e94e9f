package memstore

import (
	"context"
	"errors"
	"time"

	activityModel "volunteer_hub/internal/domain/activity/model"
	activityRepository "volunteer_hub/internal/domain/activity/repository"
	ledgerModel "volunteer_hub/internal/domain/ledger/model"
	ledgerRepository "volunteer_hub/internal/domain/ledger/repository"
	productModel "volunteer_hub/internal/domain/product/model"
	productRepository "volunteer_hub/internal/domain/product/repository"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"
	"volunteer_hub/pkg/errs"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ---- volunteers ----

type volunteerRepo struct{ s *Store }

func (s *Store) Volunteers() volunteerRepository.VolunteerRepository { return volunteerRepo{s} }

func (r volunteerRepo) Create(ctx context.Context, v *volunteerModel.Volunteer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.volunteers {
		if existing.UserID == v.UserID {
			return errors.New("duplicate key value violates unique constraint \"volunteers_user_id_key\"")
		}
	}
	v.ID = r.s.id()
	stamp(&v.CreateTime)
	r.s.volunteers[v.ID] = *v
	return nil
}

func (r volunteerRepo) Update(ctx context.Context, v *volunteerModel.Volunteer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.volunteers[v.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cur.Name, cur.Phone, cur.Status = v.Name, v.Phone, v.Status
	cur.ReviewNote, cur.ReviewTime = v.ReviewNote, v.ReviewTime
	r.s.volunteers[v.ID] = cur
	return nil
}

func (r volunteerRepo) GetByID(ctx context.Context, id int64) (*volunteerModel.Volunteer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.volunteers[id]
	if !ok || v.Deleted {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r volunteerRepo) GetByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.volunteers {
		if v.UserID == userID && !v.Deleted {
			return &v, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r volunteerRepo) LockByID(ctx context.Context, id int64) (*volunteerModel.Volunteer, error) {
	return r.GetByID(ctx, id)
}

func (r volunteerRepo) LockByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error) {
	return r.GetByUserID(ctx, userID)
}

func (r volunteerRepo) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.volunteers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.PointsBalance = balance
	r.s.volunteers[id] = v
	return nil
}

func (r volunteerRepo) List(ctx context.Context, filter string) ([]volunteerModel.Volunteer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := make([]volunteerModel.Volunteer, 0, len(r.s.volunteers))
	for _, v := range r.s.volunteers {
		if v.Deleted {
			continue
		}
		switch filter {
		case volunteerRepository.FilterReviewing:
			if v.Status != volunteerModel.StatusReviewing {
				continue
			}
		case volunteerRepository.FilterProcessed:
			if v.Status == volunteerModel.StatusReviewing {
				continue
			}
		}
		list = append(list, v)
	}
	sortByIDDesc(list, func(v volunteerModel.Volunteer) int64 { return v.ID },
		func(a, b volunteerModel.Volunteer) int { return compareTime(a.CreateTime, b.CreateTime) })
	return list, nil
}

func (r volunteerRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]volunteerModel.Volunteer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]volunteerModel.Volunteer, len(ids))
	for _, id := range ids {
		if v, ok := r.s.volunteers[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// ---- ledger ----

type ledgerRepo struct{ s *Store }

func (s *Store) Ledger() ledgerRepository.LedgerRepository { return ledgerRepo{s} }

func (r ledgerRepo) Create(ctx context.Context, rec *ledgerModel.PointChangeRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec.ID = r.s.id()
	r.s.entries = append(r.s.entries, *rec)
	return nil
}

func (r ledgerRepo) GetByID(ctx context.Context, id int64) (*ledgerModel.PointChangeRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r ledgerRepo) sum(match func(e ledgerModel.PointChangeRecord) bool) decimal.Decimal {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := decimal.Zero
	for _, e := range r.s.entries {
		if match(e) {
			total = total.Add(e.ChangePoints)
		}
	}
	return total
}

func (r ledgerRepo) SumByVolunteer(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	return r.sum(func(e ledgerModel.PointChangeRecord) bool { return e.VolunteerID == volunteerID }), nil
}

func (r ledgerRepo) SumBefore(ctx context.Context, volunteerID, id int64) (decimal.Decimal, error) {
	return r.sum(func(e ledgerModel.PointChangeRecord) bool { return e.VolunteerID == volunteerID && e.ID < id }), nil
}

func (r ledgerRepo) SumByRelated(ctx context.Context, changeType, relatedType string, relatedID int64) (decimal.Decimal, error) {
	return r.sum(func(e ledgerModel.PointChangeRecord) bool {
		return e.ChangeType == changeType &&
			e.RelatedRecordType != nil && *e.RelatedRecordType == relatedType &&
			e.RelatedRecordID != nil && *e.RelatedRecordID == relatedID
	}), nil
}

func (r ledgerRepo) ListFrom(ctx context.Context, volunteerID, fromID int64) ([]ledgerModel.PointChangeRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []ledgerModel.PointChangeRecord
	for _, e := range r.s.entries {
		if e.VolunteerID == volunteerID && e.ID >= fromID {
			list = append(list, e)
		}
	}
	return list, nil
}

func (r ledgerRepo) UpdateEntry(ctx context.Context, rec *ledgerModel.PointChangeRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.entries {
		if r.s.entries[i].ID == rec.ID {
			e := &r.s.entries[i]
			e.ChangePoints, e.BalanceAfter = rec.ChangePoints, rec.BalanceAfter
			e.Reason, e.Note = rec.Reason, rec.Note
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r ledgerRepo) list(match func(e ledgerModel.PointChangeRecord) bool, offset, limit int) ([]ledgerModel.PointChangeRecord, int64) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []ledgerModel.PointChangeRecord
	for _, e := range r.s.entries {
		if match(e) {
			list = append(list, e)
		}
	}
	sortByIDDesc(list, func(e ledgerModel.PointChangeRecord) int64 { return e.ID },
		func(a, b ledgerModel.PointChangeRecord) int { return compareTime(a.ChangeTime, b.ChangeTime) })
	return page(list, offset, limit), int64(len(list))
}

func (r ledgerRepo) ListByVolunteer(ctx context.Context, volunteerID int64, changeType string, offset, limit int) ([]ledgerModel.PointChangeRecord, int64, error) {
	list, total := r.list(func(e ledgerModel.PointChangeRecord) bool {
		return e.VolunteerID == volunteerID && (changeType == "" || e.ChangeType == changeType)
	}, offset, limit)
	return list, total, nil
}

func (r ledgerRepo) ListAll(ctx context.Context, changeType, nameKeyword string, offset, limit int) ([]ledgerModel.PointChangeRecord, int64, error) {
	r.s.mu.Lock()
	names := make(map[int64]string, len(r.s.volunteers))
	for id, v := range r.s.volunteers {
		names[id] = v.Name
	}
	r.s.mu.Unlock()

	list, total := r.list(func(e ledgerModel.PointChangeRecord) bool {
		if changeType != "" && e.ChangeType != changeType {
			return false
		}
		return nameKeyword == "" || containsFold(names[e.VolunteerID], nameKeyword)
	}, offset, limit)
	return list, total, nil
}

// ---- activities ----

type activityRepo struct{ s *Store }

func (s *Store) Activities() activityRepository.ActivityRepository { return activityRepo{s} }

func (r activityRepo) Create(ctx context.Context, a *activityModel.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	stamp(&a.CreateTime)
	stamp(&a.UpdateTime)
	r.s.activities[a.ID] = *a
	return nil
}

func (r activityRepo) Update(ctx context.Context, a *activityModel.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.activities[a.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	// 名额计数只通过 UpdateParticipants 修改
	next := *a
	next.CurParticipants = cur.CurParticipants
	next.CreateTime = cur.CreateTime
	r.s.activities[a.ID] = next
	return nil
}

func (r activityRepo) GetByID(ctx context.Context, id int64) (*activityModel.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.activities[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r activityRepo) LockByID(ctx context.Context, id int64) (*activityModel.Activity, error) {
	return r.GetByID(ctx, id)
}

func (r activityRepo) UpdateParticipants(ctx context.Context, id int64, cur int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.activities[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.CurParticipants = cur
	r.s.activities[id] = a
	return nil
}

func (r activityRepo) List(ctx context.Context, filter activityRepository.ActivityFilter, now time.Time, offset, limit int) ([]activityModel.Activity, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []activityModel.Activity
	for _, a := range r.s.activities {
		if filter.Keyword != "" && !containsFold(a.Title, filter.Keyword) && !containsFold(a.Description, filter.Keyword) {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Status != "" && a.Effective(now) != filter.Status {
			continue
		}
		if filter.Day != nil && (a.StartTime.Before(*filter.Day) || !a.StartTime.Before(filter.Day.AddDate(0, 0, 1))) {
			continue
		}
		list = append(list, a)
	}

	rank := func(a activityModel.Activity) int {
		switch a.Effective(now) {
		case activityModel.StatusCancelled, activityModel.StatusCompleted:
			return 2
		case activityModel.StatusOngoing:
			return 1
		}
		return 0
	}
	sortByIDDesc(list, func(a activityModel.Activity) int64 { return a.ID }, func(a, b activityModel.Activity) int {
		if filter.SortByStatus && rank(a) != rank(b) {
			// 排名小的排在前面
			return rank(b) - rank(a)
		}
		return compareTime(a.StartTime, b.StartTime)
	})
	return page(list, offset, limit), int64(len(list)), nil
}

func (r activityRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]activityModel.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]activityModel.Activity, len(ids))
	for _, id := range ids {
		if a, ok := r.s.activities[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// ---- signups ----

type signupRepo struct{ s *Store }

func (s *Store) Signups() activityRepository.SignupRepository { return signupRepo{s} }

func (r signupRepo) Create(ctx context.Context, rec *activityModel.SignupRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// 与 uq_signup_live 部分唯一索引一致
	if rec.Live() {
		for _, other := range r.s.signups {
			if other.VolunteerID == rec.VolunteerID && other.ActivityID == rec.ActivityID && other.Live() {
				return errs.ErrAlreadySignedUp
			}
		}
	}
	rec.ID = r.s.id()
	r.s.signups[rec.ID] = *rec
	return nil
}

func (r signupRepo) Update(ctx context.Context, rec *activityModel.SignupRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.signups[rec.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cur.Status = rec.Status
	cur.VolunteerStartTime, cur.VolunteerEndTime = rec.VolunteerStartTime, rec.VolunteerEndTime
	cur.ActualHours, cur.Points = rec.ActualHours, rec.Points
	cur.UpdateTime, cur.Note = rec.UpdateTime, rec.Note
	r.s.signups[rec.ID] = cur
	return nil
}

func (r signupRepo) GetByID(ctx context.Context, id int64) (*activityModel.SignupRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.signups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rec, nil
}

func (r signupRepo) LockByID(ctx context.Context, id int64) (*activityModel.SignupRecord, error) {
	return r.GetByID(ctx, id)
}

func (r signupRepo) FindLive(ctx context.Context, volunteerID, activityID int64) (*activityModel.SignupRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *activityModel.SignupRecord
	for _, rec := range r.s.signups {
		if rec.VolunteerID == volunteerID && rec.ActivityID == activityID && rec.Live() {
			if found == nil || rec.ID > found.ID {
				rec := rec
				found = &rec
			}
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r signupRepo) ListByActivity(ctx context.Context, activityID int64) ([]activityModel.SignupRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []activityModel.SignupRecord
	for _, rec := range r.s.signups {
		if rec.ActivityID == activityID {
			list = append(list, rec)
		}
	}
	sortByIDDesc(list, func(s activityModel.SignupRecord) int64 { return s.ID },
		func(a, b activityModel.SignupRecord) int { return compareTime(a.SignupTime, b.SignupTime) })
	return list, nil
}

func (r signupRepo) ListByVolunteer(ctx context.Context, volunteerID int64, offset, limit int) ([]activityModel.SignupRecord, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []activityModel.SignupRecord
	for _, rec := range r.s.signups {
		if rec.VolunteerID == volunteerID {
			list = append(list, rec)
		}
	}
	sortByIDDesc(list, func(s activityModel.SignupRecord) int64 { return s.ID },
		func(a, b activityModel.SignupRecord) int { return compareTime(a.SignupTime, b.SignupTime) })
	return page(list, offset, limit), int64(len(list)), nil
}

func (r signupRepo) LatestStatuses(ctx context.Context, volunteerID int64, activityIDs []int64) (map[int64]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[int64]bool, len(activityIDs))
	for _, id := range activityIDs {
		wanted[id] = true
	}
	latest := make(map[int64]int64)
	out := make(map[int64]string)
	for _, rec := range r.s.signups {
		if rec.VolunteerID != volunteerID || !wanted[rec.ActivityID] {
			continue
		}
		if rec.ID > latest[rec.ActivityID] {
			latest[rec.ActivityID] = rec.ID
			out[rec.ActivityID] = rec.Status
		}
	}
	return out, nil
}

func (r signupRepo) SumParticipatedHours(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := decimal.Zero
	for _, rec := range r.s.signups {
		if rec.VolunteerID == volunteerID && rec.Status == activityModel.SignupParticipated {
			total = total.Add(rec.ActualHours)
		}
	}
	return total, nil
}

// ---- products ----

type productRepo struct{ s *Store }

func (s *Store) Products() productRepository.ProductRepository { return productRepo{s} }

func (r productRepo) Create(ctx context.Context, p *productModel.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id()
	stamp(&p.CreateTime)
	stamp(&p.UpdateTime)
	r.s.products[p.ID] = *p
	return nil
}

func (r productRepo) Update(ctx context.Context, p *productModel.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.products[p.ID]
	if !ok || cur.Deleted() {
		return errs.New(errs.KindValidation, "该商品已被删除，无法修改")
	}
	next := *p
	next.CreateTime = cur.CreateTime
	r.s.products[p.ID] = next
	return nil
}

func (r productRepo) GetByID(ctx context.Context, id int64) (*productModel.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r productRepo) LockByID(ctx context.Context, id int64) (*productModel.Product, error) {
	return r.GetByID(ctx, id)
}

func (r productRepo) Reserve(ctx context.Context, id int64, n int64) error {
	if n <= 0 {
		return errs.New(errs.KindValidation, "兑换数量必须大于0")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return productRepository.ErrProductNotFound
	}
	if p.Status != productModel.StatusAvailable {
		return errs.ErrProductUnavailable
	}
	if p.Stock < n {
		return errs.ErrInsufficientStock
	}
	p.Stock -= n
	if p.Stock <= 0 {
		p.Status = productModel.StatusSoldOut
	}
	r.s.products[id] = p
	return nil
}

func (r productRepo) Release(ctx context.Context, id int64, n int64) error {
	if n <= 0 {
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return productRepository.ErrProductNotFound
	}
	p.Stock += n
	if p.Status == productModel.StatusSoldOut && p.Stock > 0 {
		p.Status = productModel.StatusAvailable
	}
	r.s.products[id] = p
	return nil
}

func (r productRepo) SoftDelete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.Deleted() {
		return errs.New(errs.KindValidation, "该商品已被删除")
	}
	p.Status = productModel.StatusDeleted
	r.s.products[id] = p
	return nil
}

func (r productRepo) List(ctx context.Context, filter productRepository.ProductFilter, offset, limit int) ([]productModel.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []productModel.Product
	for _, p := range r.s.products {
		if filter.Keyword != "" && !containsFold(p.Name, filter.Keyword) && !containsFold(p.Description, filter.Keyword) {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Storefront {
			if p.Deleted() || (filter.Category != "" && p.Status == productModel.StatusSoldOut) {
				continue
			}
		}
		list = append(list, p)
	}
	sortByIDDesc(list, func(p productModel.Product) int64 { return p.ID }, func(a, b productModel.Product) int {
		if a.SortWeight != b.SortWeight {
			return a.SortWeight - b.SortWeight
		}
		return compareTime(a.CreateTime, b.CreateTime)
	})
	return page(list, offset, limit), int64(len(list)), nil
}

func (r productRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]productModel.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]productModel.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// ---- exchanges ----

type exchangeRepo struct{ s *Store }

func (s *Store) Exchanges() productRepository.ExchangeRepository { return exchangeRepo{s} }

func (r exchangeRepo) Create(ctx context.Context, rec *productModel.ExchangeRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec.ID = r.s.id()
	r.s.exchanges[rec.ID] = *rec
	return nil
}

func (r exchangeRepo) Update(ctx context.Context, rec *productModel.ExchangeRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.exchanges[rec.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cur.Status, cur.ProcessTime, cur.Note = rec.Status, rec.ProcessTime, rec.Note
	r.s.exchanges[rec.ID] = cur
	return nil
}

func (r exchangeRepo) GetByID(ctx context.Context, id int64) (*productModel.ExchangeRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.exchanges[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rec, nil
}

func (r exchangeRepo) LockByID(ctx context.Context, id int64) (*productModel.ExchangeRecord, error) {
	return r.GetByID(ctx, id)
}

func (r exchangeRepo) list(match func(productModel.ExchangeRecord) bool, offset, limit int) ([]productModel.ExchangeRecord, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []productModel.ExchangeRecord
	for _, rec := range r.s.exchanges {
		if match(rec) {
			list = append(list, rec)
		}
	}
	sortByIDDesc(list, func(e productModel.ExchangeRecord) int64 { return e.ID },
		func(a, b productModel.ExchangeRecord) int { return compareTime(a.OrderTime, b.OrderTime) })
	return page(list, offset, limit), int64(len(list)), nil
}

func (r exchangeRepo) ListByVolunteer(ctx context.Context, volunteerID int64, offset, limit int) ([]productModel.ExchangeRecord, int64, error) {
	return r.list(func(rec productModel.ExchangeRecord) bool { return rec.VolunteerID == volunteerID }, offset, limit)
}

func (r exchangeRepo) ListAll(ctx context.Context, status string, offset, limit int) ([]productModel.ExchangeRecord, int64, error) {
	return r.list(func(rec productModel.ExchangeRecord) bool { return status == "" || rec.Status == status }, offset, limit)
}
