package repository

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cargodesk/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "cargodesk_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpen_SQLiteScheme(t *testing.T) {
	store, err := Open(context.Background(), SQLiteScheme+filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLiteRepository)
	assert.True(t, ok, "sqlite:// DSN must open SQLite store")
}

func TestNewSQLiteRepository_MigratesQuietly(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	repo, err := NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	_, err = repo.CreateAccount(ctx, model.Account{Username: "alice", Role: model.RoleAdmin, IsActive: true}, []byte("hash"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	defer repo.Close()

	_, _, err = repo.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err, "reopening must keep existing rows")
	assert.Empty(t, buf.String(), "migrations must not write to the standard logger")
}

func TestSQLite_Accounts(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)

	created, err := repo.CreateAccount(ctx, model.Account{
		Username: "alice",
		Role:     model.RoleAdmin,
		IsActive: true,
		Profile:  model.Profile{Country: "GM", Branch: "Banjul"},
	}, []byte("hash"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = repo.CreateAccount(ctx, model.Account{Username: "alice", Role: model.RoleOperator, IsActive: true}, []byte("x"))
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate username error = %v, want ErrUserExists", err)
	}

	got, hash, err := repo.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("hash"), hash)
	assert.Equal(t, "Banjul", got.Profile.Branch)

	_, _, err = repo.GetAccountByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	email := "alice@example.com"
	updated, err := repo.UpdateProfile(ctx, created.ID, model.ProfilePatch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Profile.Email)
	assert.Equal(t, "GM", updated.Profile.Country, "omitted fields must stay unchanged")

	_, err = repo.UpdatePassword(ctx, created.ID, []byte("new-hash"))
	require.NoError(t, err)
	_, hash, err = repo.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("new-hash"), hash)

	_, err = repo.CreateAccount(ctx, model.Account{Username: "bob", Role: model.RoleOperator, IsActive: true}, []byte("x"))
	require.NoError(t, err)

	operator := model.RoleOperator
	operators, err := repo.ListAccounts(ctx, &operator)
	require.NoError(t, err)
	require.Len(t, operators, 1)
	assert.Equal(t, "bob", operators[0].Username)

	all, err := repo.ListAccounts(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.DeleteAccount(ctx, operators[0].ID))
	assert.ErrorIs(t, repo.DeleteAccount(ctx, operators[0].ID), ErrUserNotFound)
}

func TestSQLite_SetAccountActiveKeepsLastAdmin(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)

	first, err := repo.CreateAccount(ctx, model.Account{Username: "first", Role: model.RoleAdmin, IsActive: true}, []byte("x"))
	require.NoError(t, err)
	second, err := repo.CreateAccount(ctx, model.Account{Username: "second", Role: model.RoleAdmin, IsActive: true}, []byte("x"))
	require.NoError(t, err)

	n, err := repo.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deactivated, err := repo.SetAccountActive(ctx, first.ID, false, true)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, err = repo.SetAccountActive(ctx, second.ID, false, true)
	assert.ErrorIs(t, err, ErrLastActiveAdmin)

	n, err = repo.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.SetAccountActive(ctx, second.ID, false, false)
	require.NoError(t, err, "without the guard the last admin can be deactivated")

	_, err = repo.SetAccountActive(ctx, 9999, true, false)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLite_CargoLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)

	sendingDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	base := model.Cargo{
		SenderName:    "Awa",
		ReceiverName:  "Lamin",
		Destination:   "Dakar",
		Weight:        decimal.RequireFromString("2.5"),
		NumberOfItems: 1,
		Cost:          decimal.RequireFromString("22.5"),
		Status:        model.CargoStatusSent,
		PaymentStatus: model.PaymentStatusUnpaid,
		SendingDate:   sendingDate,
	}

	first := base
	first.TrackingNumber = "TRK-1700000000000-001"
	first.CreatedAt = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	created, err := repo.CreateCargo(ctx, first)
	require.NoError(t, err)
	assert.True(t, created.Cost.Equal(decimal.RequireFromString("22.5")))

	_, err = repo.CreateCargo(ctx, first)
	assert.ErrorIs(t, err, ErrTrackingNumberTaken)

	second := base
	second.TrackingNumber = "TRK-1700000000001-002"
	second.Cost = decimal.RequireFromString("0.1")
	second.CreatedAt = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	_, err = repo.CreateCargo(ctx, second)
	require.NoError(t, err)

	paid, err := repo.SetCargoPaymentStatus(ctx, first.TrackingNumber, model.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, model.CargoStatusSent, paid.Status, "payment must not touch delivery status")

	received, err := repo.SetCargoStatus(ctx, second.TrackingNumber, model.CargoStatusReceived)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusUnpaid, received.PaymentStatus)

	_, err = repo.SetCargoStatus(ctx, "TRK-0000000000000-000", model.CargoStatusReceived)
	assert.ErrorIs(t, err, ErrCargoNotFound)

	got, err := repo.GetCargoByTrackingNumber(ctx, second.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", got.SendingDate.Format("2006-01-02"))

	count, err := repo.CountCargo(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = repo.SetCargoPaymentStatus(ctx, second.TrackingNumber, model.PaymentStatusPaid)
	require.NoError(t, err)
	revenue, err := repo.SumPaidRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "22.6", revenue.String())

	recent, err := repo.RecentCargo(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, second.TrackingNumber, recent[0].TrackingNumber)
}

func TestSQLite_PricingRuleUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)

	_, err := repo.GetPricingRule(ctx)
	assert.ErrorIs(t, err, ErrPricingRuleNotFound)

	_, err = repo.SavePricingRule(ctx, model.PricingRule{BaseCost: decimal.NewFromInt(10), CostPerKg: decimal.NewFromInt(5)})
	require.NoError(t, err)
	_, err = repo.SavePricingRule(ctx, model.PricingRule{BaseCost: decimal.NewFromInt(12), CostPerKg: decimal.RequireFromString("7.5")})
	require.NoError(t, err)

	rule, err := repo.GetPricingRule(ctx)
	require.NoError(t, err)
	assert.True(t, rule.BaseCost.Equal(decimal.NewFromInt(12)))
	assert.True(t, rule.CostPerKg.Equal(decimal.RequireFromString("7.5")))
}

func TestSQLite_ActivityLog(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)

	loc := time.FixedZone("UTC+3", 3*60*60)
	uid := int64(7)
	entries := []model.ActivityLogEntry{
		{Action: model.ActionLogin, UserID: &uid, Username: "alice", Details: `{"username":"alice"}`, Timestamp: time.Date(2025, 3, 10, 8, 0, 0, 0, loc)},
		{Action: model.ActionLoginFailed, Username: "mallory", Timestamp: time.Date(2025, 3, 10, 23, 59, 59, 0, loc)},
		{Action: model.ActionLogin, UserID: &uid, Username: "alice", Timestamp: time.Date(2025, 3, 11, 0, 0, 0, 0, loc)},
	}
	for _, e := range entries {
		require.NoError(t, repo.AppendActivity(ctx, e))
	}

	got, err := repo.QueryActivity(ctx, model.ActivityFilter{
		From: time.Date(2025, 3, 10, 0, 0, 0, 0, loc),
		To:   time.Date(2025, 3, 10, 23, 59, 59, 999_000_000, loc),
	}, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ActionLoginFailed, got[0].Action, "newest first")
	assert.Nil(t, got[0].UserID)
	assert.Equal(t, "", got[0].Details)
	assert.Equal(t, `{"username":"alice"}`, got[1].Details)
	require.NotNil(t, got[1].UserID)
	assert.Equal(t, uid, *got[1].UserID)

	logins, err := repo.QueryActivity(ctx, model.ActivityFilter{Action: model.ActionLogin}, 100)
	require.NoError(t, err)
	assert.Len(t, logins, 2)

	limited, err := repo.QueryActivity(ctx, model.ActivityFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.True(t, limited[0].Timestamp.Equal(entries[2].Timestamp))
}
