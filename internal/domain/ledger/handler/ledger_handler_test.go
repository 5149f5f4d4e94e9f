package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"volunteer_hub/internal/domain/ledger/model"
	"volunteer_hub/internal/domain/ledger/service"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/memstore"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"
	"volunteer_hub/pkg/utils"

	"github.com/gin-gonic/gin"
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

type ledgerFixture struct {
	store  *memstore.Store
	router *gin.Engine
	vid    int64
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	svc := service.NewLedgerService(store.Ledger(), store.Volunteers(), store.Runner())
	h := NewLedgerHandler(svc, store.Volunteers())

	vid := store.PutVolunteer(volunteerModel.Volunteer{UserID: 10, Name: "小王", Status: volunteerModel.StatusCertified})
	store.PutVolunteer(volunteerModel.Volunteer{UserID: 11, Name: "小李", Status: volunteerModel.StatusCertified})

	v := tokens{
		"alice": {UserID: 10, Role: auth.RoleVolunteer},
		"bob":   {UserID: 11, Role: auth.RoleVolunteer},
		"root":  {UserID: 1, Role: auth.RoleAdmin},
	}

	r := gin.New()
	authMw := middleware.AuthMiddleware(v)
	r.GET("/api/volunteer/:id/point-change-records", authMw, h.VolunteerHistory)
	admin := r.Group("/api/admin/point-records", authMw, middleware.AdminMiddleware())
	admin.GET("", h.AdminList)
	admin.POST("", h.Adjust)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id/revert", h.Revert)

	return &ledgerFixture{store: store, router: r, vid: vid}
}

func (f *ledgerFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
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

func (f *ledgerFixture) adjust(t *testing.T, points float64) service.AdminEntryView {
	t.Helper()
	w := f.do(http.MethodPost, "/api/admin/point-records", "root", map[string]interface{}{
		"volunteerId":  f.vid,
		"changePoints": points,
		"changeType":   model.TypeAdminAdjust,
		"reason":       "活动补录",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[service.AdminEntryView](t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func revertPath(id int64) string {
	return "/api/admin/point-records/" + strconv.FormatInt(id, 10) + "/revert"
}

func TestRevert_PostsInverseEntry(t *testing.T) {
	f := newLedgerFixture(t)
	entry := f.adjust(t, 30)
	assert.Equal(t, 30.0, entry.BalanceAfter)

	w := f.do(http.MethodDelete, revertPath(entry.ID), "root", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	view := decode[service.AdminEntryView](t, w)
	assert.Equal(t, -30.0, view.ChangePoints)
	assert.Equal(t, 0.0, view.BalanceAfter)
	assert.Equal(t, model.TypeAdminAdjust, view.ChangeType)
	assert.Equal(t, "revert:"+strconv.FormatInt(entry.ID, 10), view.Reason)
	require.NotNil(t, view.RelatedRecordID)
	assert.Equal(t, entry.ID, *view.RelatedRecordID)

	// 原记录保留，追加一条相反记录
	assert.Len(t, f.store.Entries(f.vid), 2)
	assert.True(t, f.store.Volunteer(f.vid).PointsBalance.IsZero())
}

func TestRevert_WouldOverdraw(t *testing.T) {
	f := newLedgerFixture(t)
	credit := f.adjust(t, 30)
	f.adjust(t, -20)

	w := f.do(http.MethodDelete, revertPath(credit.ID), "root", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errs.KindInsufficientPoints), decode[response.ErrorBody](t, w).Code)
	assert.Len(t, f.store.Entries(f.vid), 2)
}

func TestRevert_Errors(t *testing.T) {
	f := newLedgerFixture(t)
	entry := f.adjust(t, 10)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   errs.Kind
	}{
		{"unknown entry", revertPath(999), "root", http.StatusBadRequest, errs.KindNotFound},
		{"bad id", "/api/admin/point-records/x/revert", "root", http.StatusBadRequest, errs.KindValidation},
		{"volunteer forbidden", revertPath(entry.ID), "alice", http.StatusForbidden, errs.KindForbidden},
		{"no token", revertPath(entry.ID), "", http.StatusUnauthorized, errs.KindAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodDelete, tt.path, tt.token, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, string(tt.code), decode[response.ErrorBody](t, w).Code)
		})
	}
	assert.Len(t, f.store.Entries(f.vid), 1)
}

func TestVolunteerHistory_Access(t *testing.T) {
	f := newLedgerFixture(t)
	f.adjust(t, 12.5)
	path := "/api/volunteer/" + strconv.FormatInt(f.vid, 10) + "/point-change-records"

	w := f.do(http.MethodGet, path, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[utils.PageResult[service.EntryView]](t, w)
	require.Len(t, page.Content, 1)
	assert.Equal(t, 12.5, page.Content[0].ChangePoints)

	w = f.do(http.MethodGet, path, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, path, "root", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
