package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/cargodesk/internal/audit"
	"github.com/mmeshcher/cargodesk/internal/authz"
	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/repository"
)

func init() {
	passwordCost = bcrypt.MinCost
}

const (
	testSuperAdmin         = "ubaidtra"
	testSuperAdminPassword = "trawally2025"
)

type storedUser struct {
	account model.Account
	hash    []byte
}

// memRepo: хранилище в памяти с семантикой настоящих репозиториев.
type memRepo struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*storedUser
	cargo   map[string]model.Cargo
	cargoID int64
	rule    *model.PricingRule

	profileWrites int

	// collisions: сколько следующих вставок груза завершатся конфликтом трек-номера.
	collisions int
}

func newMemRepo() *memRepo {
	return &memRepo{
		users: make(map[int64]*storedUser),
		cargo: make(map[string]model.Cargo),
	}
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) CreateAccount(ctx context.Context, a model.Account, hash []byte) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.account.Username == a.Username {
			return nil, repository.ErrUserExists
		}
	}
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = time.Now()
	r.users[a.ID] = &storedUser{account: a, hash: hash}
	return &a, nil
}

func (r *memRepo) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	a := u.account
	return &a, nil
}

func (r *memRepo) GetAccountByUsername(ctx context.Context, username string) (*model.Account, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.account.Username == username {
			a := u.account
			return &a, u.hash, nil
		}
	}
	return nil, nil, repository.ErrUserNotFound
}

func (r *memRepo) ListAccounts(ctx context.Context, role *model.Role) ([]model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]model.Account, 0, len(r.users))
	for _, u := range r.users {
		if role != nil && u.account.Role != *role {
			continue
		}
		res = append(res, u.account)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

func (r *memRepo) DeleteAccount(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *memRepo) countActiveAdmins(exclude int64) int {
	n := 0
	for id, u := range r.users {
		if id != exclude && u.account.Role == model.RoleAdmin && u.account.IsActive {
			n++
		}
	}
	return n
}

func (r *memRepo) CountActiveAdmins(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countActiveAdmins(0), nil
}

func (r *memRepo) SetAccountActive(ctx context.Context, id int64, active, keepActiveAdmin bool) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if !active && keepActiveAdmin && r.countActiveAdmins(id) == 0 {
		return nil, repository.ErrLastActiveAdmin
	}
	u.account.IsActive = active
	a := u.account
	return &a, nil
}

func (r *memRepo) UpdatePassword(ctx context.Context, id int64, hash []byte) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.hash = hash
	a := u.account
	return &a, nil
}

func (r *memRepo) UpdateProfile(ctx context.Context, id int64, patch model.ProfilePatch) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	r.profileWrites++
	u.account.Profile = patch.Apply(u.account.Profile)
	a := u.account
	return &a, nil
}

func (r *memRepo) CreateCargo(ctx context.Context, c model.Cargo) (*model.Cargo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cargo[c.TrackingNumber]; ok || r.collisions > 0 {
		if r.collisions > 0 {
			r.collisions--
		}
		return nil, repository.ErrTrackingNumberTaken
	}
	r.cargoID++
	c.ID = r.cargoID
	r.cargo[c.TrackingNumber] = c
	return &c, nil
}

func (r *memRepo) GetCargoByTrackingNumber(ctx context.Context, trk string) (*model.Cargo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cargo[trk]
	if !ok {
		return nil, repository.ErrCargoNotFound
	}
	return &c, nil
}

func (r *memRepo) SetCargoStatus(ctx context.Context, trk string, status model.CargoStatus) (*model.Cargo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cargo[trk]
	if !ok {
		return nil, repository.ErrCargoNotFound
	}
	c.Status = status
	r.cargo[trk] = c
	return &c, nil
}

func (r *memRepo) SetCargoPaymentStatus(ctx context.Context, trk string, status model.PaymentStatus) (*model.Cargo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cargo[trk]
	if !ok {
		return nil, repository.ErrCargoNotFound
	}
	c.PaymentStatus = status
	r.cargo[trk] = c
	return &c, nil
}

func (r *memRepo) CountCargo(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.cargo)), nil
}

func (r *memRepo) SumPaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, c := range r.cargo {
		if c.PaymentStatus == model.PaymentStatusPaid {
			sum = sum.Add(c.Cost)
		}
	}
	return sum, nil
}

func (r *memRepo) RecentCargo(ctx context.Context, limit int) ([]model.Cargo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]model.Cargo, 0, len(r.cargo))
	for _, c := range r.cargo {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memRepo) GetPricingRule(ctx context.Context) (*model.PricingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rule == nil {
		return nil, repository.ErrPricingRuleNotFound
	}
	rule := *r.rule
	return &rule, nil
}

func (r *memRepo) SavePricingRule(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rule = &rule
	saved := rule
	return &saved, nil
}

// memActivity: журнал в памяти; при fail каждая запись завершается ошибкой.
type memActivity struct {
	mu      sync.Mutex
	entries []model.ActivityLogEntry
	fail    bool
}

func (s *memActivity) AppendActivity(ctx context.Context, e model.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("relation \"activity_log\" does not exist")
	}
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return nil
}

func (s *memActivity) QueryActivity(ctx context.Context, f model.ActivityFilter, limit int) ([]model.ActivityLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.ActivityLogEntry
	for i := len(s.entries) - 1; i >= 0 && len(res) < limit; i-- {
		e := s.entries[i]
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if !f.From.IsZero() && e.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Timestamp.After(f.To) {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (s *memActivity) byAction(action model.Action) []model.ActivityLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.ActivityLogEntry
	for _, e := range s.entries {
		if e.Action == action {
			res = append(res, e)
		}
	}
	return res
}

type testEnv struct {
	svc      *Service
	repo     *memRepo
	activity *memActivity
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return newTestEnvAt(t, time.Now, opts...)
}

// newTestEnvAt создаёт окружение, в котором сервис и журнал живут по одним часам.
func newTestEnvAt(t *testing.T, now func() time.Time, opts ...Option) *testEnv {
	t.Helper()

	repo := newMemRepo()
	activity := &memActivity{}
	logger := zap.NewNop()
	policy := authz.NewPolicy(
		authz.Principal{Username: testSuperAdmin, Password: testSuperAdminPassword},
		[]authz.Credential{{Username: "admin", Password: "admin123"}},
	)
	auditLog := audit.New(activity, logger, audit.WithLocation(time.UTC), audit.WithClock(now))

	opts = append([]Option{WithLocation(time.UTC), WithClock(now)}, opts...)
	return &testEnv{
		svc:      NewService(repo, auditLog, policy, logger, opts...),
		repo:     repo,
		activity: activity,
	}
}

func superActor() model.Actor {
	return model.Actor{ID: authz.SuperAdminID, Username: testSuperAdmin, Role: model.RoleAdmin}
}

func actorOf(a *model.Account) model.Actor {
	return model.Actor{ID: a.ID, Username: a.Username, Role: a.Role}
}

func mustCreateAccount(t *testing.T, env *testEnv, username string, role model.Role) *model.Account {
	t.Helper()
	a, err := env.svc.CreateAccount(context.Background(), superActor(), model.NewAccount{
		Username: username,
		Password: "pw123",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create account %q: %v", username, err)
	}
	return a
}
