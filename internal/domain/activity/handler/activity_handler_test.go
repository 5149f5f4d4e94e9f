package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"volunteer_hub/internal/domain/activity/model"
	"volunteer_hub/internal/domain/activity/service"
	ledgerModel "volunteer_hub/internal/domain/ledger/model"
	ledgerService "volunteer_hub/internal/domain/ledger/service"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/memstore"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens map[string]*auth.Principal

func (t tokens) Validate(_ context.Context, token string) (*auth.Principal, error) {
	if p, ok := t[token]; ok {
		return p, nil
	}
	return nil, errs.ErrUnauthorized
}

type activityFixture struct {
	store    *memstore.Store
	router   *gin.Engine
	ongoing  int64
	upcoming int64
	alice    int64
	bob      int64
}

func newActivityFixture(t *testing.T) *activityFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	runner := store.Runner()
	ledger := ledgerService.NewLedgerService(store.Ledger(), store.Volunteers(), runner)
	activities := service.NewActivityService(store.Activities(), store.Signups(), store.Volunteers(), runner)
	signups := service.NewSignupService(store.Activities(), store.Signups(), store.Volunteers(), ledger, runner)
	h := NewActivityHandler(activities, signups, store.Volunteers())

	f := &activityFixture{store: store}
	f.alice = store.PutVolunteer(volunteerModel.Volunteer{UserID: 10, Name: "小王", Status: volunteerModel.StatusCertified})
	f.bob = store.PutVolunteer(volunteerModel.Volunteer{UserID: 11, Name: "小李", Status: volunteerModel.StatusCertified})

	now := time.Now()
	f.ongoing = store.PutActivity(model.Activity{
		Title:           "敬老院探访",
		Type:            model.TypeCommunityService,
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		Status:          model.StatusConfirmed,
		PointsPerHour:   decimal.NewFromInt(5),
		MaxParticipants: 3,
		CurParticipants: 2,
	})
	f.upcoming = store.PutActivity(model.Activity{
		Title:           "社区清洁",
		Type:            model.TypeCommunityService,
		StartTime:       now.Add(24 * time.Hour),
		EndTime:         now.Add(26 * time.Hour),
		Status:          model.StatusRecruiting,
		PointsPerHour:   decimal.NewFromInt(5),
		MaxParticipants: 1,
	})

	v := tokens{
		"alice": {UserID: 10, Role: auth.RoleVolunteer},
		"bob":   {UserID: 11, Role: auth.RoleVolunteer},
		"root":  {UserID: 1, Role: auth.RoleAdmin},
	}

	r := gin.New()
	authMw := middleware.AuthMiddleware(v)
	r.POST("/api/activity/signup", authMw, h.Signup)
	admin := r.Group("/api/admin/activities", authMw, middleware.AdminMiddleware())
	admin.GET("/:id/signups", h.ListSignups)
	admin.PUT("/:id/signups/:signupId", h.Settle)
	f.router = r
	return f
}

func (f *activityFixture) signup(volunteerID, activityID int64, status string) int64 {
	now := time.Now()
	return f.store.PutSignup(model.SignupRecord{
		VolunteerID: volunteerID,
		ActivityID:  activityID,
		Status:      status,
		SignupTime:  now.Add(-48 * time.Hour),
		UpdateTime:  now.Add(-48 * time.Hour),
	})
}

func (f *activityFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func settlePath(activityID, signupID int64) string {
	return "/api/admin/activities/" + strconv.FormatInt(activityID, 10) + "/signups/" + strconv.FormatInt(signupID, 10)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestSettle_ParticipatedCreditsOnce(t *testing.T) {
	f := newActivityFixture(t)
	sid := f.signup(f.alice, f.ongoing, model.SignupConfirmed)
	f.signup(f.bob, f.ongoing, model.SignupReviewing)

	body := map[string]interface{}{"status": "PARTICIPATED", "actualHours": 2, "note": "表现良好"}
	w := f.do(http.MethodPut, settlePath(f.ongoing, sid), "root", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	view := decode[service.AdminSignupView](t, w)
	assert.Equal(t, model.SignupParticipated, view.Status)
	assert.Equal(t, 10.0, view.Points)
	assert.Equal(t, "小王", view.VolunteerName)

	entries := f.store.Entries(f.alice)
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerModel.TypeActivityEarn, entries[0].ChangeType)

	// 重复提交不重复发放
	w = f.do(http.MethodPut, settlePath(f.ongoing, sid), "root", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.store.Entries(f.alice), 1)
}

func TestSettle_UnconfirmedSignupRejected(t *testing.T) {
	f := newActivityFixture(t)
	sid := f.signup(f.bob, f.ongoing, model.SignupReviewing)

	w := f.do(http.MethodPut, settlePath(f.ongoing, sid), "root", map[string]interface{}{"status": "PARTICIPATED", "actualHours": 2})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errs.KindValidation), decode[response.ErrorBody](t, w).Code)
	assert.Empty(t, f.store.Entries(f.bob))

	// 驳回释放名额
	w = f.do(http.MethodPut, settlePath(f.ongoing, sid), "root", map[string]interface{}{"status": "REJECTED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, f.store.Activity(f.ongoing).CurParticipants)
}

func TestSettle_Validation(t *testing.T) {
	f := newActivityFixture(t)
	sid := f.signup(f.alice, f.ongoing, model.SignupConfirmed)

	tests := []struct {
		name   string
		path   string
		token  string
		body   interface{}
		status int
		code   errs.Kind
	}{
		{"volunteer forbidden", settlePath(f.ongoing, sid), "alice", map[string]string{"status": "PARTICIPATED"}, http.StatusForbidden, errs.KindForbidden},
		{"missing status", settlePath(f.ongoing, sid), "root", map[string]string{}, http.StatusBadRequest, errs.KindValidation},
		{"bad signup id", "/api/admin/activities/1/signups/abc", "root", map[string]string{"status": "CONFIRMED"}, http.StatusBadRequest, errs.KindValidation},
		{"unknown signup", settlePath(f.ongoing, 999), "root", map[string]string{"status": "CONFIRMED"}, http.StatusBadRequest, errs.KindNotFound},
		{"wrong activity", settlePath(f.upcoming, sid), "root", map[string]string{"status": "CONFIRMED"}, http.StatusBadRequest, errs.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPut, tt.path, tt.token, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, string(tt.code), decode[response.ErrorBody](t, w).Code)
		})
	}
}

func TestSignup_LastSlot(t *testing.T) {
	f := newActivityFixture(t)

	w := f.do(http.MethodPost, "/api/activity/signup", "alice", service.SignupInput{ActivityID: f.upcoming})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[service.SignupResult](t, w)
	assert.Equal(t, model.SignupReviewing, f.store.Signup(res.ID).Status)

	w = f.do(http.MethodPost, "/api/activity/signup", "bob", service.SignupInput{ActivityID: f.upcoming})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errs.KindCapacityFull), decode[response.ErrorBody](t, w).Code)
	assert.Equal(t, 1, f.store.Activity(f.upcoming).CurParticipants)
}
