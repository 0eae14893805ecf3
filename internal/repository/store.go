package repository

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cargodesk/internal/model"
)

// SQLiteScheme: префикс DSN, при котором используется встроенная база SQLite.
const SQLiteScheme = "sqlite://"

// Store объединяет все операции хранилища: учётные записи, грузы, тариф и журнал действий.
type Store interface {
	Close() error

	CreateAccount(ctx context.Context, account model.Account, passwordHash []byte) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, []byte, error)
	ListAccounts(ctx context.Context, role *model.Role) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	CountActiveAdmins(ctx context.Context) (int, error)
	SetAccountActive(ctx context.Context, id int64, active, keepActiveAdmin bool) (*model.Account, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash []byte) (*model.Account, error)
	UpdateProfile(ctx context.Context, id int64, patch model.ProfilePatch) (*model.Account, error)

	CreateCargo(ctx context.Context, cargo model.Cargo) (*model.Cargo, error)
	GetCargoByTrackingNumber(ctx context.Context, trackingNumber string) (*model.Cargo, error)
	SetCargoStatus(ctx context.Context, trackingNumber string, status model.CargoStatus) (*model.Cargo, error)
	SetCargoPaymentStatus(ctx context.Context, trackingNumber string, status model.PaymentStatus) (*model.Cargo, error)
	CountCargo(ctx context.Context) (int64, error)
	SumPaidRevenue(ctx context.Context) (decimal.Decimal, error)
	RecentCargo(ctx context.Context, limit int) ([]model.Cargo, error)

	GetPricingRule(ctx context.Context) (*model.PricingRule, error)
	SavePricingRule(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error)

	AppendActivity(ctx context.Context, entry model.ActivityLogEntry) error
	QueryActivity(ctx context.Context, filter model.ActivityFilter, limit int) ([]model.ActivityLogEntry, error)
}

var (
	_ Store = (*PostgresRepository)(nil)
	_ Store = (*SQLiteRepository)(nil)
)

// Open выбирает реализацию хранилища по DSN: "sqlite://<путь>" открывает SQLite,
// любой другой DSN передаётся драйверу PostgreSQL.
func Open(ctx context.Context, dsn string) (Store, error) {
	if path, ok := strings.CutPrefix(dsn, SQLiteScheme); ok {
		return NewSQLiteRepository(ctx, path)
	}
	return NewPostgresRepository(dsn)
}
