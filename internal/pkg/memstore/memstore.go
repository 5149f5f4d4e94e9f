// Package memstore 内存版仓储实现，供服务层与接口层测试使用。
//
// 所有仓储共享同一个 Store，配合 txntest.SerialRunner 使用时，
// 事务失败会把 Store 恢复到事务开始前的快照。
package memstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	activityModel "volunteer_hub/internal/domain/activity/model"
	ledgerModel "volunteer_hub/internal/domain/ledger/model"
	productModel "volunteer_hub/internal/domain/product/model"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/txn/txntest"
)

// Store 内存数据
type Store struct {
	mu     sync.Mutex
	nextID int64

	volunteers map[int64]volunteerModel.Volunteer
	entries    []ledgerModel.PointChangeRecord
	activities map[int64]activityModel.Activity
	signups    map[int64]activityModel.SignupRecord
	products   map[int64]productModel.Product
	exchanges  map[int64]productModel.ExchangeRecord
}

func New() *Store {
	return &Store{
		volunteers: make(map[int64]volunteerModel.Volunteer),
		activities: make(map[int64]activityModel.Activity),
		signups:    make(map[int64]activityModel.SignupRecord),
		products:   make(map[int64]productModel.Product),
		exchanges:  make(map[int64]productModel.ExchangeRecord),
	}
}

// Runner 串行事务执行器，失败时回滚到快照
func (s *Store) Runner() *txntest.SerialRunner {
	return &txntest.SerialRunner{Snapshot: s.Snapshot}
}

// Snapshot 复制当前状态，返回恢复函数
func (s *Store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextID := s.nextID
	volunteers := cloneMap(s.volunteers)
	entries := append([]ledgerModel.PointChangeRecord(nil), s.entries...)
	activities := cloneMap(s.activities)
	signups := cloneMap(s.signups)
	products := cloneMap(s.products)
	exchanges := cloneMap(s.exchanges)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.nextID = nextID
		s.volunteers = volunteers
		s.entries = entries
		s.activities = activities
		s.signups = signups
		s.products = products
		s.exchanges = exchanges
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// PutVolunteer 直接写入一条志愿者档案，返回分配的 ID
func (s *Store) PutVolunteer(v volunteerModel.Volunteer) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		v.ID = s.id()
	}
	s.volunteers[v.ID] = v
	return v.ID
}

func (s *Store) PutActivity(a activityModel.Activity) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	}
	s.activities[a.ID] = a
	return a.ID
}

func (s *Store) PutSignup(rec activityModel.SignupRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = s.id()
	}
	s.signups[rec.ID] = rec
	return rec.ID
}

func (s *Store) PutProduct(p productModel.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.products[p.ID] = p
	return p.ID
}

func (s *Store) Volunteer(id int64) volunteerModel.Volunteer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volunteers[id]
}

func (s *Store) Activity(id int64) activityModel.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activities[id]
}

func (s *Store) Signup(id int64) activityModel.SignupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signups[id]
}

func (s *Store) Product(id int64) productModel.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *Store) Exchange(id int64) productModel.ExchangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges[id]
}

// Entries 志愿者的全部流水，按写入顺序
func (s *Store) Entries(volunteerID int64) []ledgerModel.PointChangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []ledgerModel.PointChangeRecord
	for _, e := range s.entries {
		if e.VolunteerID == volunteerID {
			list = append(list, e)
		}
	}
	return list
}

// LiveSignups 活动下占用名额的报名数
func (s *Store) LiveSignups(activityID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.signups {
		if rec.ActivityID == activityID && rec.Live() {
			n++
		}
	}
	return n
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func page[T any](list []T, offset, limit int) []T {
	if offset >= len(list) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return append([]T(nil), list[offset:end]...)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now()
	}
}

func sortByIDDesc[T any](list []T, id func(T) int64, newer func(a, b T) int) {
	sort.SliceStable(list, func(i, j int) bool {
		if c := newer(list[i], list[j]); c != 0 {
			return c > 0
		}
		return id(list[i]) > id(list[j])
	})
}

func compareTime(a, b time.Time) int {
	switch {
	case a.After(b):
		return 1
	case a.Before(b):
		return -1
	}
	return 0
}
