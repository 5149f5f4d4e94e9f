package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"volunteer_hub/internal/domain/user/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/config"
	"volunteer_hub/internal/pkg/txn/txntest"
	"volunteer_hub/pkg/cache"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/utils"

	ledgerService "volunteer_hub/internal/domain/ledger/service"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	config.GlobalConfig.JWT.Secret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	config.GlobalConfig.JWT.Expiration = int64(time.Hour / time.Millisecond)
}

// MockUserRepository is a mock of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(user)
	if args.Error(0) == nil {
		user.ID = 42
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username, role string) (*model.User, error) {
	args := m.Called(username, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) ExistsUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	return m.Called(user).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, hashed string) error {
	return m.Called(id, hashed).Error(0)
}

func (m *MockUserRepository) PromoteToVolunteer(ctx context.Context, userID int64) error {
	return m.Called(userID).Error(0)
}

// MockTokenRepository is a mock of TokenRepository
type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Create(ctx context.Context, t *model.Token) error {
	return m.Called(t).Error(0)
}

func (m *MockTokenRepository) GetByToken(ctx context.Context, token string) (*model.Token, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Token), args.Error(1)
}

func (m *MockTokenRepository) ListByUser(ctx context.Context, userID int64) ([]model.Token, error) {
	args := m.Called(userID)
	return args.Get(0).([]model.Token), args.Error(1)
}

func (m *MockTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	return m.Called(token).Error(0)
}

func (m *MockTokenRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return m.Called(userID).Error(0)
}

func (m *MockTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

// MockVolunteers is a mock of VolunteerApplications
type MockVolunteers struct {
	mock.Mock
}

func (m *MockVolunteers) Create(ctx context.Context, v *volunteerModel.Volunteer) error {
	return m.Called(v).Error(0)
}

func (m *MockVolunteers) Update(ctx context.Context, v *volunteerModel.Volunteer) error {
	return m.Called(v).Error(0)
}

func (m *MockVolunteers) GetByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*volunteerModel.Volunteer), args.Error(1)
}

type MockPoints struct {
	mock.Mock
}

func (m *MockPoints) BalanceOf(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	args := m.Called(volunteerID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPoints) Recent(ctx context.Context, volunteerID int64, n int) ([]ledgerService.EntryView, error) {
	args := m.Called(volunteerID, n)
	return args.Get(0).([]ledgerService.EntryView), args.Error(1)
}

type MockHours struct {
	mock.Mock
}

func (m *MockHours) ServiceHours(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	args := m.Called(volunteerID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) RevokeAll(ctx context.Context, userID int64) error {
	return m.Called(userID).Error(0)
}

// memCache 进程内缓存
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type authFixture struct {
	users      *MockUserRepository
	tokens     *MockTokenRepository
	volunteers *MockVolunteers
	cache      *memCache
	svc        *authService
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:      new(MockUserRepository),
		tokens:     new(MockTokenRepository),
		volunteers: new(MockVolunteers),
		cache:      newMemCache(),
	}
	f.svc = NewAuthService(f.users, f.tokens, f.volunteers, f.cache, &txntest.SerialRunner{}).(*authService)
	return f
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(b)
}

func createTestUser(t *testing.T, id int64, username, role string) *model.User {
	u := &model.User{Username: username, Password: hashPassword(t, "secret123"), Role: role, Phone: "13800138000"}
	u.ID = id
	return u
}

func TestRegister(t *testing.T) {
	t.Run("USER with volunteer request creates application", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("ExistsUsername", "alice").Return(false, nil)
		f.users.On("Create", mock.MatchedBy(func(u *model.User) bool {
			return u.Role == auth.RoleUser && bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("secret123")) == nil
		})).Return(nil)
		f.volunteers.On("Create", mock.MatchedBy(func(v *volunteerModel.Volunteer) bool {
			return v.UserID == 42 && v.Status == volunteerModel.StatusReviewing && v.Phone == "13800138000"
		})).Return(nil)

		res, err := f.svc.Register(context.Background(), RegisterInput{
			Username: " alice ", Password: "secret123", Phone: "13800138000", RequestVolunteer: true,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(42), res.ID)
		assert.Equal(t, "alice", res.Username)
		assert.Equal(t, auth.RoleUser, res.Role)
		f.users.AssertExpectations(t)
		f.volunteers.AssertExpectations(t)
	})

	t.Run("admin role cannot self register", func(t *testing.T) {
		f := newAuthFixture()

		_, err := f.svc.Register(context.Background(), RegisterInput{
			Username: "root", Password: "secret123", Role: "admin", RequestVolunteer: true,
		})

		assert.ErrorIs(t, err, ErrAdminSelfRegister)
		assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
		f.users.AssertNotCalled(t, "Create", mock.Anything)
		f.volunteers.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("duplicate username", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("ExistsUsername", "alice").Return(true, nil)

		_, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "secret123"})

		assert.True(t, errs.Is(err, errs.KindValidation))
		f.users.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("input validation", func(t *testing.T) {
		f := newAuthFixture()
		cases := []RegisterInput{
			{Username: "", Password: "secret123"},
			{Username: "bob", Password: "123"},
			{Username: "bob", Password: "secret123", Role: "ROOT"},
			{Username: "一二三四五六七八九十一二三四五六七八九十一", Password: "secret123"},
		}
		for _, in := range cases {
			_, err := f.svc.Register(context.Background(), in)
			assert.True(t, errs.Is(err, errs.KindValidation), "input %+v", in)
		}
		f.users.AssertNotCalled(t, "ExistsUsername", mock.Anything)
	})
}

func TestEnsureAdmin(t *testing.T) {
	t.Run("creates missing admin", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("ExistsUsername", "admin").Return(false, nil)
		f.users.On("Create", mock.MatchedBy(func(u *model.User) bool {
			return u.Role == auth.RoleAdmin && bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("admin123")) == nil
		})).Return(nil)

		created, err := f.svc.EnsureAdmin(context.Background(), "admin", "admin123")

		require.NoError(t, err)
		assert.True(t, created)
		f.users.AssertExpectations(t)
	})

	t.Run("existing account is left alone", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("ExistsUsername", "admin").Return(true, nil)

		created, err := f.svc.EnsureAdmin(context.Background(), "admin", "admin123")

		require.NoError(t, err)
		assert.False(t, created)
		f.users.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("weak password", func(t *testing.T) {
		f := newAuthFixture()
		_, err := f.svc.EnsureAdmin(context.Background(), "admin", "123")
		assert.True(t, errs.Is(err, errs.KindValidation))
	})
}

func TestLogin(t *testing.T) {
	t.Run("success replaces previous token", func(t *testing.T) {
		f := newAuthFixture()
		user := createTestUser(t, 7, "alice", auth.RoleVolunteer)
		f.users.On("GetByUsername", "alice", auth.RoleVolunteer).Return(user, nil)
		f.tokens.On("ListByUser", int64(7)).Return([]model.Token{{UserID: 7, Token: "old"}}, nil)
		f.tokens.On("DeleteByUser", int64(7)).Return(nil)
		f.tokens.On("Create", mock.MatchedBy(func(tk *model.Token) bool {
			return tk.UserID == 7 && tk.Token != "" && tk.ExpireTime.After(time.Now())
		})).Return(nil)
		f.volunteers.On("GetByUserID", int64(7)).Return(&volunteerModel.Volunteer{ID: 3, Status: volunteerModel.StatusCertified}, nil)
		require.NoError(t, f.cache.Set(context.Background(), tokenCacheKey("old"), cachedPrincipal{UserID: 7}, time.Minute))

		res, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret123", Role: "volunteer"})

		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		require.NotNil(t, res.VolunteerStatus)
		assert.Equal(t, volunteerModel.StatusCertified, *res.VolunteerStatus)
		require.NotNil(t, res.Phone)
		assert.False(t, f.cache.has(tokenCacheKey("old")))

		claims, err := utils.ParseToken(res.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), claims.UserID)
		f.tokens.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByUsername", "alice", "").Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)

		_, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "nope"})

		assert.ErrorIs(t, err, errWrongPassword)
		f.tokens.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("unknown user or role", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByUsername", "alice", auth.RoleAdmin).Return(nil, gorm.ErrRecordNotFound)

		_, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret123", Role: auth.RoleAdmin})

		assert.True(t, errs.Is(err, errs.KindAuth))
	})
}

func TestValidate(t *testing.T) {
	f := newAuthFixture()
	user := createTestUser(t, 7, "alice", auth.RoleUser)
	token, expireAt, err := utils.GenerateToken(7, "alice", auth.RoleUser)
	require.NoError(t, err)

	f.tokens.On("GetByToken", token).Return(&model.Token{UserID: 7, Token: token, ExpireTime: expireAt}, nil).Once()
	f.users.On("GetByID", int64(7)).Return(user, nil).Once()

	p, err := f.svc.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, token, p.Token)
	assert.True(t, f.cache.has(tokenCacheKey(token)))

	// 第二次命中缓存，不再查库
	p, err = f.svc.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	f.tokens.AssertNumberOfCalls(t, "GetByToken", 1)

	// 退出登录后缓存与令牌一并失效
	f.tokens.On("DeleteByToken", token).Return(nil)
	require.NoError(t, f.svc.Logout(context.Background(), token))
	assert.False(t, f.cache.has(tokenCacheKey(token)))

	f.tokens.On("GetByToken", token).Return(nil, gorm.ErrRecordNotFound)
	_, err = f.svc.Validate(context.Background(), token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestValidate_Rejections(t *testing.T) {
	token, expireAt, err := utils.GenerateToken(7, "alice", auth.RoleUser)
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		f := newAuthFixture()
		_, err := f.svc.Validate(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, errInvalidToken)
		_, err = f.svc.Validate(context.Background(), "  ")
		assert.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("expired server-side", func(t *testing.T) {
		f := newAuthFixture()
		f.svc.now = func() time.Time { return expireAt.Add(time.Second) }
		f.tokens.On("GetByToken", token).Return(&model.Token{UserID: 7, Token: token, ExpireTime: expireAt}, nil)
		f.tokens.On("DeleteByToken", token).Return(nil)

		_, err := f.svc.Validate(context.Background(), token)
		assert.ErrorIs(t, err, errTokenExpired)
		f.tokens.AssertCalled(t, "DeleteByToken", token)
	})

	t.Run("renamed user", func(t *testing.T) {
		f := newAuthFixture()
		f.tokens.On("GetByToken", token).Return(&model.Token{UserID: 7, Token: token, ExpireTime: expireAt}, nil)
		f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice2", auth.RoleUser), nil)

		_, err := f.svc.Validate(context.Background(), token)
		assert.True(t, errs.Is(err, errs.KindAuth))
		assert.False(t, f.cache.has(tokenCacheKey(token)))
	})

	t.Run("token of another user", func(t *testing.T) {
		f := newAuthFixture()
		f.tokens.On("GetByToken", token).Return(&model.Token{UserID: 8, Token: token, ExpireTime: expireAt}, nil)

		_, err := f.svc.Validate(context.Background(), token)
		assert.ErrorIs(t, err, errs.ErrUnauthorized)
	})
}

type userFixture struct {
	users      *MockUserRepository
	volunteers *MockVolunteers
	points     *MockPoints
	hours      *MockHours
	revoker    *MockRevoker
	svc        UserService
}

func newUserFixture() *userFixture {
	f := &userFixture{
		users:      new(MockUserRepository),
		volunteers: new(MockVolunteers),
		points:     new(MockPoints),
		hours:      new(MockHours),
		revoker:    new(MockRevoker),
	}
	f.svc = NewUserService(f.users, f.volunteers, f.points, f.hours, f.revoker, &txntest.SerialRunner{})
	return f
}

func self(id int64) *auth.Principal {
	return &auth.Principal{UserID: id, Role: auth.RoleVolunteer}
}

func TestProfile(t *testing.T) {
	f := newUserFixture()
	user := createTestUser(t, 7, "alice", auth.RoleVolunteer)
	recent := []ledgerService.EntryView{{ID: 9, ChangeType: "ACTIVITY_EARN", ChangePoints: 10}}
	f.users.On("GetByID", int64(7)).Return(user, nil)
	f.volunteers.On("GetByUserID", int64(7)).Return(&volunteerModel.Volunteer{ID: 3, Name: "张三", Status: volunteerModel.StatusCertified}, nil)
	f.points.On("BalanceOf", int64(3)).Return(decimal.RequireFromString("12.50"), nil)
	f.points.On("Recent", int64(3), 5).Return(recent, nil)
	f.hours.On("ServiceHours", int64(3)).Return(decimal.RequireFromString("2.5"), nil)

	view, err := f.svc.Profile(context.Background(), self(7), 7)

	require.NoError(t, err)
	assert.Equal(t, 12.5, view.Points)
	assert.Equal(t, 2.5, view.ServiceHours)
	assert.Equal(t, "张三", *view.RealName)
	assert.Len(t, view.PointsRecords, 1)

	_, err = f.svc.Profile(context.Background(), self(8), 7)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.Profile(context.Background(), &auth.Principal{UserID: 1, Role: auth.RoleAdmin}, 7)
	assert.NoError(t, err)
}

func TestProfile_NoVolunteer(t *testing.T) {
	f := newUserFixture()
	f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)
	f.volunteers.On("GetByUserID", int64(7)).Return(nil, gorm.ErrRecordNotFound)

	view, err := f.svc.Profile(context.Background(), self(7), 7)

	require.NoError(t, err)
	assert.Nil(t, view.VolunteerStatus)
	assert.Zero(t, view.Points)
	assert.NotNil(t, view.PointsRecords)
	f.points.AssertNotCalled(t, "BalanceOf", mock.Anything)
}

func TestUpdateProfile(t *testing.T) {
	t.Run("rename revokes tokens and syncs volunteer phone", func(t *testing.T) {
		f := newUserFixture()
		v := &volunteerModel.Volunteer{ID: 3, Phone: "old"}
		f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleVolunteer), nil)
		f.users.On("ExistsUsername", "alice2").Return(false, nil)
		f.users.On("UpdateProfile", mock.MatchedBy(func(u *model.User) bool { return u.Username == "alice2" })).Return(nil)
		f.volunteers.On("GetByUserID", int64(7)).Return(v, nil)
		f.volunteers.On("Update", v).Return(nil)
		f.points.On("BalanceOf", int64(3)).Return(decimal.Zero, nil)
		f.points.On("Recent", int64(3), 5).Return([]ledgerService.EntryView{}, nil)
		f.hours.On("ServiceHours", int64(3)).Return(decimal.Zero, nil)
		f.revoker.On("RevokeAll", int64(7)).Return(nil)

		view, err := f.svc.UpdateProfile(context.Background(), self(7), 7, UpdateProfileInput{Username: "alice2", Phone: "139"})

		require.NoError(t, err)
		assert.Equal(t, "alice2", view.Username)
		assert.Equal(t, "139", v.Phone)
		f.revoker.AssertExpectations(t)
	})

	t.Run("phone only keeps tokens", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)
		f.users.On("UpdateProfile", mock.AnythingOfType("*model.User")).Return(nil)
		f.volunteers.On("GetByUserID", int64(7)).Return(nil, gorm.ErrRecordNotFound)

		_, err := f.svc.UpdateProfile(context.Background(), self(7), 7, UpdateProfileInput{Username: "alice", Phone: "139"})

		require.NoError(t, err)
		f.revoker.AssertNotCalled(t, "RevokeAll", mock.Anything)
		f.users.AssertNotCalled(t, "ExistsUsername", mock.Anything)
	})

	t.Run("taken username", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)
		f.users.On("ExistsUsername", "bob").Return(true, nil)

		_, err := f.svc.UpdateProfile(context.Background(), self(7), 7, UpdateProfileInput{Username: "bob"})

		assert.True(t, errs.Is(err, errs.KindValidation))
		f.users.AssertNotCalled(t, "UpdateProfile", mock.Anything)
	})
}

func TestChangePassword(t *testing.T) {
	f := newUserFixture()
	f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)
	f.users.On("UpdatePassword", int64(7), mock.AnythingOfType("string")).Return(nil)
	f.revoker.On("RevokeAll", int64(7)).Return(nil)

	err := f.svc.ChangePassword(context.Background(), self(7), 7, ChangePasswordInput{OldPassword: "wrong", NewPassword: "newsecret"})
	assert.True(t, errs.Is(err, errs.KindValidation))
	f.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything)

	require.NoError(t, f.svc.ChangePassword(context.Background(), self(7), 7, ChangePasswordInput{OldPassword: "secret123", NewPassword: "newsecret"}))
	f.revoker.AssertNumberOfCalls(t, "RevokeAll", 1)

	// 管理员重置无需旧密码
	admin := &auth.Principal{UserID: 1, Role: auth.RoleAdmin}
	require.NoError(t, f.svc.ChangePassword(context.Background(), admin, 7, ChangePasswordInput{NewPassword: "another1"}))
}

func TestApplyVolunteer(t *testing.T) {
	emptyProfile := func(f *userFixture, vid int64) {
		f.points.On("BalanceOf", vid).Return(decimal.Zero, nil)
		f.points.On("Recent", vid, 5).Return([]ledgerService.EntryView{}, nil)
		f.hours.On("ServiceHours", vid).Return(decimal.Zero, nil)
	}

	t.Run("first application defaults phone", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)
		f.volunteers.On("GetByUserID", int64(7)).Return(nil, gorm.ErrRecordNotFound).Once()
		f.volunteers.On("Create", mock.MatchedBy(func(v *volunteerModel.Volunteer) bool {
			return v.Name == "张三" && v.Phone == "13800138000" && v.Status == volunteerModel.StatusReviewing
		})).Return(nil)
		f.volunteers.On("GetByUserID", int64(7)).Return(&volunteerModel.Volunteer{ID: 3, Status: volunteerModel.StatusReviewing}, nil)
		emptyProfile(f, 3)

		view, err := f.svc.ApplyVolunteer(context.Background(), self(7), 7, VolunteerApplyInput{RealName: " 张三 "})

		require.NoError(t, err)
		assert.Equal(t, volunteerModel.StatusReviewing, *view.VolunteerStatus)
		f.volunteers.AssertExpectations(t)
	})

	t.Run("reapply after rejection", func(t *testing.T) {
		f := newUserFixture()
		rejected := &volunteerModel.Volunteer{ID: 3, Status: volunteerModel.StatusRejected, ReviewNote: "资料不全"}
		f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)
		f.volunteers.On("GetByUserID", int64(7)).Return(rejected, nil)
		f.volunteers.On("Update", rejected).Return(nil)
		emptyProfile(f, 3)

		_, err := f.svc.ApplyVolunteer(context.Background(), self(7), 7, VolunteerApplyInput{RealName: "张三", Phone: "139"})

		require.NoError(t, err)
		assert.Equal(t, volunteerModel.StatusReviewing, rejected.Status)
		assert.Empty(t, rejected.ReviewNote)
		assert.Equal(t, "139", rejected.Phone)
	})

	t.Run("duplicate application", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", int64(7)).Return(createTestUser(t, 7, "alice", auth.RoleUser), nil)
		f.volunteers.On("GetByUserID", int64(7)).Return(&volunteerModel.Volunteer{ID: 3, Status: volunteerModel.StatusReviewing}, nil)

		_, err := f.svc.ApplyVolunteer(context.Background(), self(7), 7, VolunteerApplyInput{RealName: "张三"})

		assert.True(t, errs.Is(err, errs.KindValidation))
		f.volunteers.AssertNotCalled(t, "Update", mock.Anything)
	})

	t.Run("admin cannot apply", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", int64(1)).Return(createTestUser(t, 1, "root", auth.RoleAdmin), nil)

		_, err := f.svc.ApplyVolunteer(context.Background(), &auth.Principal{UserID: 1, Role: auth.RoleAdmin}, 1, VolunteerApplyInput{RealName: "管理员"})

		assert.True(t, errs.Is(err, errs.KindValidation))
	})
}
