package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/memstore"
	"volunteer_hub/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPromoter struct {
	mock.Mock
}

func (m *MockPromoter) PromoteToVolunteer(ctx context.Context, userID int64) error {
	return m.Called(userID).Error(0)
}

func newReviewFixture(t *testing.T) (*memstore.Store, *volunteerService, *MockPromoter) {
	t.Helper()
	store := memstore.New()
	promoter := new(MockPromoter)
	s := NewVolunteerService(store.Volunteers(), promoter, store.Runner()).(*volunteerService)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local) }
	return store, s, promoter
}

func TestReview_Approve(t *testing.T) {
	store, s, promoter := newReviewFixture(t)
	id := store.PutVolunteer(*model.NewApplication(20, "张三", "13800000000"))
	promoter.On("PromoteToVolunteer", int64(20)).Return(nil)

	view, err := s.Review(context.Background(), id, ReviewInput{Action: "approve", Note: "资料齐全"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCertified, view.Status)
	require.NotNil(t, view.ReviewTime)
	assert.Equal(t, "2026-03-01 09:30:00", *view.ReviewTime)
	assert.Equal(t, model.StatusCertified, store.Volunteer(id).Status)
	promoter.AssertExpectations(t)

	// 已认证的申请不能再次通过
	_, err = s.Review(context.Background(), id, ReviewInput{Action: "APPROVE", Note: "again"})
	assert.ErrorIs(t, err, errs.ErrAlreadyProcessed)
}

func TestReview_PromoteFailureRollsBack(t *testing.T) {
	store, s, promoter := newReviewFixture(t)
	id := store.PutVolunteer(*model.NewApplication(21, "李四", ""))
	promoter.On("PromoteToVolunteer", int64(21)).Return(errors.New("db down"))

	_, err := s.Review(context.Background(), id, ReviewInput{Action: "APPROVE", Note: "ok"})
	require.Error(t, err)
	assert.Equal(t, model.StatusReviewing, store.Volunteer(id).Status)
}

func TestReview_RejectAndSuspend(t *testing.T) {
	store, s, promoter := newReviewFixture(t)
	pending := store.PutVolunteer(*model.NewApplication(22, "王五", ""))
	certified := store.PutVolunteer(model.Volunteer{UserID: 23, Name: "赵六", Status: model.StatusCertified})

	view, err := s.Review(context.Background(), pending, ReviewInput{Action: "REJECT", Note: "信息不全"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, view.Status)
	assert.Equal(t, "信息不全", view.ReviewNote)

	_, err = s.Review(context.Background(), pending, ReviewInput{Action: "REJECT", Note: "again"})
	assert.ErrorIs(t, err, errs.ErrAlreadyProcessed)

	_, err = s.Review(context.Background(), pending, ReviewInput{Action: "SUSPEND", Note: "x"})
	assert.True(t, errs.Is(err, errs.KindValidation))

	view, err = s.Review(context.Background(), certified, ReviewInput{Action: "SUSPEND", Note: "多次缺席"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuspended, view.Status)
	promoter.AssertNotCalled(t, "PromoteToVolunteer", mock.Anything)
}

func TestReview_Validation(t *testing.T) {
	store, s, _ := newReviewFixture(t)
	id := store.PutVolunteer(*model.NewApplication(24, "孙七", ""))

	tests := []struct {
		name  string
		id    int64
		input ReviewInput
		kind  errs.Kind
	}{
		{"missing note", id, ReviewInput{Action: "APPROVE"}, errs.KindValidation},
		{"unknown action", id, ReviewInput{Action: "DELETE", Note: "x"}, errs.KindValidation},
		{"unknown volunteer", 999, ReviewInput{Action: "APPROVE", Note: "x"}, errs.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Review(context.Background(), tt.id, tt.input)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestList_Filters(t *testing.T) {
	store, s, _ := newReviewFixture(t)
	store.PutVolunteer(*model.NewApplication(30, "甲", ""))
	store.PutVolunteer(model.Volunteer{UserID: 31, Name: "乙", Status: model.StatusCertified})
	store.PutVolunteer(model.Volunteer{UserID: 32, Name: "丙", Status: model.StatusRejected})

	all, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	reviewing, err := s.List(context.Background(), "reviewing")
	require.NoError(t, err)
	require.Len(t, reviewing, 1)
	assert.Equal(t, "甲", reviewing[0].Name)

	processed, err := s.List(context.Background(), "PROCESSED")
	require.NoError(t, err)
	assert.Len(t, processed, 2)

	_, err = s.List(context.Background(), "BOGUS")
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestCheckAccess(t *testing.T) {
	store, _, _ := newReviewFixture(t)
	repo := store.Volunteers()
	own := store.PutVolunteer(model.Volunteer{UserID: 40, Name: "本人", Status: model.StatusCertified})
	other := store.PutVolunteer(model.Volunteer{UserID: 41, Name: "他人", Status: model.StatusCertified})
	ctx := context.Background()

	assert.NoError(t, CheckAccess(ctx, repo, &auth.Principal{UserID: 40, Role: auth.RoleVolunteer}, own))
	assert.ErrorIs(t, CheckAccess(ctx, repo, &auth.Principal{UserID: 40, Role: auth.RoleVolunteer}, other), errs.ErrForbidden)
	assert.ErrorIs(t, CheckAccess(ctx, repo, &auth.Principal{UserID: 99, Role: auth.RoleUser}, own), errs.ErrForbidden)
	assert.NoError(t, CheckAccess(ctx, repo, &auth.Principal{UserID: 1, Role: auth.RoleAdmin}, other))
	assert.True(t, errs.Is(CheckAccess(ctx, repo, &auth.Principal{UserID: 1, Role: auth.RoleAdmin}, 999), errs.KindNotFound))
	assert.ErrorIs(t, CheckAccess(ctx, repo, nil, own), errs.ErrUnauthorized)
}
