package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/mmeshcher/cargodesk/internal/model"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

const sqliteDSNParams = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"

// SQLiteRepository хранит данные во встроенной базе SQLite. Используется для
// локального запуска и в тестах вместо PostgreSQL.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository открывает файл базы и применяет миграции.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + sqliteDSNParams
	} else {
		dsn += "?" + sqliteDSNParams
	}

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := applyMigrations(ctx, goose.DialectSQLite3, sqlDB, sqliteMigrationsFS, "migrations/sqlite"); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// Close закрывает соединение с базой.
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SQLiteRepository) withRetry(ctx context.Context, fn func(db *gorm.DB) error) error {
	return withRetry(ctx, isRetryableSQLiteError, func(ctx context.Context) error {
		return fn(r.db.WithContext(ctx))
	})
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// dateOnly хранит календарную дату как полночь UTC, как это делает тип DATE в PostgreSQL.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateAccount создаёт учётную запись.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a model.Account, passwordHash []byte) (*model.Account, error) {
	m := userModel{
		Username:     a.Username,
		PasswordHash: passwordHash,
		Role:         string(a.Role),
		IsActive:     a.IsActive,
		Country:      a.Profile.Country,
		Branch:       a.Profile.Branch,
		Email:        a.Profile.Email,
		Address:      a.Profile.Address,
		Contact:      a.Profile.Contact,
		CreatedAt:    a.CreatedAt.UTC(),
	}
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Create(&m).Error
	})
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, a.Username)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return m.toAccount(), nil
}

func (r *SQLiteRepository) findUser(ctx context.Context, query string, arg any) (*userModel, error) {
	var m userModel
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Where(query, arg).Take(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &m, nil
}

// GetAccountByID возвращает учётную запись по идентификатору.
func (r *SQLiteRepository) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	m, err := r.findUser(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return m.toAccount(), nil
}

// GetAccountByUsername возвращает учётную запись и хеш пароля по логину.
func (r *SQLiteRepository) GetAccountByUsername(ctx context.Context, username string) (*model.Account, []byte, error) {
	m, err := r.findUser(ctx, "username = ?", username)
	if err != nil {
		return nil, nil, err
	}
	return m.toAccount(), m.PasswordHash, nil
}

// ListAccounts возвращает учётные записи, при необходимости только с указанной ролью.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, role *model.Role) ([]model.Account, error) {
	rows := make([]userModel, 0)
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		q := db.Model(&userModel{})
		if role != nil {
			q = q.Where("role = ?", string(*role))
		}
		return q.Order("username").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}

	accounts := make([]model.Account, 0, len(rows))
	for _, m := range rows {
		accounts = append(accounts, *m.toAccount())
	}
	return accounts, nil
}

// DeleteAccount удаляет учётную запись.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	var affected int64
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		res := db.Where("id = ?", id).Delete(&userModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func countActiveAdmins(db *gorm.DB, excludeID int64) (int64, error) {
	var n int64
	q := db.Model(&userModel{}).Where("role = ? AND is_active = ?", string(model.RoleAdmin), true)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&n).Error
	return n, err
}

// CountActiveAdmins возвращает количество активных администраторов.
func (r *SQLiteRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int64
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		var err error
		n, err = countActiveAdmins(db, 0)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count active admins: %w", err)
	}
	return int(n), nil
}

// SetAccountActive меняет признак активности. При keepActiveAdmin проверка
// оставшихся администраторов и обновление выполняются в одной транзакции.
func (r *SQLiteRepository) SetAccountActive(ctx context.Context, id int64, active, keepActiveAdmin bool) (*model.Account, error) {
	var m userModel
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if !active && keepActiveAdmin {
				remaining, err := countActiveAdmins(tx, id)
				if err != nil {
					return fmt.Errorf("count active admins: %w", err)
				}
				if remaining == 0 {
					return ErrLastActiveAdmin
				}
			}

			res := tx.Model(&userModel{}).Where("id = ?", id).Update("is_active", active)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrUserNotFound
			}
			return tx.Where("id = ?", id).Take(&m).Error
		})
	})
	if err != nil {
		if errors.Is(err, ErrLastActiveAdmin) || errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set user active: %w", err)
	}
	return m.toAccount(), nil
}

// UpdatePassword сохраняет новый хеш пароля.
func (r *SQLiteRepository) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) (*model.Account, error) {
	return r.updateUser(ctx, id, map[string]any{"password_hash": passwordHash})
}

// UpdateProfile обновляет только переданные поля профиля.
func (r *SQLiteRepository) UpdateProfile(ctx context.Context, id int64, p model.ProfilePatch) (*model.Account, error) {
	values := make(map[string]any)
	if p.Country != nil {
		values["country"] = *p.Country
	}
	if p.Branch != nil {
		values["branch"] = *p.Branch
	}
	if p.Email != nil {
		values["email"] = *p.Email
	}
	if p.Address != nil {
		values["address"] = *p.Address
	}
	if p.Contact != nil {
		values["contact"] = *p.Contact
	}
	if len(values) == 0 {
		return r.GetAccountByID(ctx, id)
	}
	return r.updateUser(ctx, id, values)
}

func (r *SQLiteRepository) updateUser(ctx context.Context, id int64, values map[string]any) (*model.Account, error) {
	var m userModel
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&userModel{}).Where("id = ?", id).Updates(values)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrUserNotFound
			}
			return tx.Where("id = ?", id).Take(&m).Error
		})
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return m.toAccount(), nil
}

// CreateCargo сохраняет отправление.
func (r *SQLiteRepository) CreateCargo(ctx context.Context, c model.Cargo) (*model.Cargo, error) {
	m := cargoModel{
		TrackingNumber:  c.TrackingNumber,
		SenderName:      c.SenderName,
		SenderContact:   c.SenderContact,
		ReceiverName:    c.ReceiverName,
		ReceiverContact: c.ReceiverContact,
		Destination:     c.Destination,
		Weight:          c.Weight,
		NumberOfItems:   c.NumberOfItems,
		Description:     c.Description,
		Cost:            c.Cost,
		Status:          string(c.Status),
		PaymentStatus:   string(c.PaymentStatus),
		SendingDate:     dateOnly(c.SendingDate),
		CreatedAt:       c.CreatedAt.UTC(),
	}
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Create(&m).Error
	})
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrTrackingNumberTaken, c.TrackingNumber)
		}
		return nil, fmt.Errorf("insert cargo: %w", err)
	}
	created := m.toCargo()
	return &created, nil
}

// GetCargoByTrackingNumber возвращает отправление по трек-номеру.
func (r *SQLiteRepository) GetCargoByTrackingNumber(ctx context.Context, trackingNumber string) (*model.Cargo, error) {
	var m cargoModel
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Where("tracking_number = ?", trackingNumber).Take(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCargoNotFound
		}
		return nil, fmt.Errorf("get cargo: %w", err)
	}
	c := m.toCargo()
	return &c, nil
}

// SetCargoStatus обновляет только статус доставки.
func (r *SQLiteRepository) SetCargoStatus(ctx context.Context, trackingNumber string, status model.CargoStatus) (*model.Cargo, error) {
	return r.updateCargo(ctx, trackingNumber, "status", string(status))
}

// SetCargoPaymentStatus обновляет только статус оплаты.
func (r *SQLiteRepository) SetCargoPaymentStatus(ctx context.Context, trackingNumber string, status model.PaymentStatus) (*model.Cargo, error) {
	return r.updateCargo(ctx, trackingNumber, "payment_status", string(status))
}

func (r *SQLiteRepository) updateCargo(ctx context.Context, trackingNumber, column string, value any) (*model.Cargo, error) {
	var m cargoModel
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&cargoModel{}).Where("tracking_number = ?", trackingNumber).Update(column, value)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCargoNotFound
			}
			return tx.Where("tracking_number = ?", trackingNumber).Take(&m).Error
		})
	})
	if err != nil {
		if errors.Is(err, ErrCargoNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update cargo: %w", err)
	}
	c := m.toCargo()
	return &c, nil
}

// CountCargo возвращает общее количество отправлений.
func (r *SQLiteRepository) CountCargo(ctx context.Context) (int64, error) {
	var n int64
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Model(&cargoModel{}).Count(&n).Error
	})
	if err != nil {
		return 0, fmt.Errorf("count cargo: %w", err)
	}
	return n, nil
}

// SumPaidRevenue возвращает сумму стоимости оплаченных отправлений.
// Стоимость хранится текстом, поэтому суммирование выполняется без потери точности в Go.
func (r *SQLiteRepository) SumPaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	costs := make([]decimal.Decimal, 0)
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Model(&cargoModel{}).
			Where("payment_status = ?", string(model.PaymentStatusPaid)).
			Pluck("cost", &costs).Error
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	sum := decimal.Zero
	for _, c := range costs {
		sum = sum.Add(c)
	}
	return sum, nil
}

// RecentCargo возвращает последние созданные отправления.
func (r *SQLiteRepository) RecentCargo(ctx context.Context, limit int) ([]model.Cargo, error) {
	rows := make([]cargoModel, 0)
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("select recent cargo: %w", err)
	}
	res := make([]model.Cargo, 0, len(rows))
	for _, m := range rows {
		res = append(res, m.toCargo())
	}
	return res, nil
}

// GetPricingRule возвращает тариф.
func (r *SQLiteRepository) GetPricingRule(ctx context.Context) (*model.PricingRule, error) {
	var m pricingModel
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", 1).Take(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPricingRuleNotFound
		}
		return nil, fmt.Errorf("get pricing rule: %w", err)
	}
	return &model.PricingRule{BaseCost: m.BaseCost, CostPerKg: m.CostPerKg}, nil
}

// SavePricingRule создаёт или обновляет единственную строку тарифа.
func (r *SQLiteRepository) SavePricingRule(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error) {
	m := pricingModel{ID: 1, BaseCost: rule.BaseCost, CostPerKg: rule.CostPerKg}
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"base_cost", "cost_per_kg"}),
		}).Create(&m).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save pricing rule: %w", err)
	}
	return &model.PricingRule{BaseCost: m.BaseCost, CostPerKg: m.CostPerKg}, nil
}

// AppendActivity добавляет запись в журнал действий.
func (r *SQLiteRepository) AppendActivity(ctx context.Context, e model.ActivityLogEntry) error {
	m := activityModel{
		Action:    string(e.Action),
		UserID:    e.UserID,
		Timestamp: e.Timestamp.UTC(),
	}
	if e.Username != "" {
		m.Username = &e.Username
	}
	if e.Details != "" {
		details := datatypes.JSON(e.Details)
		m.Details = &details
	}

	err := r.withRetry(ctx, func(db *gorm.DB) error {
		return db.Create(&m).Error
	})
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// QueryActivity возвращает записи журнала от новых к старым.
func (r *SQLiteRepository) QueryActivity(ctx context.Context, f model.ActivityFilter, limit int) ([]model.ActivityLogEntry, error) {
	rows := make([]activityModel, 0)
	err := r.withRetry(ctx, func(db *gorm.DB) error {
		q := db.Model(&activityModel{})
		if f.Action != "" {
			q = q.Where("action = ?", string(f.Action))
		}
		if !f.From.IsZero() {
			q = q.Where("timestamp >= ?", f.From.UTC())
		}
		if !f.To.IsZero() {
			q = q.Where("timestamp <= ?", f.To.UTC())
		}
		return q.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("select activity: %w", err)
	}

	res := make([]model.ActivityLogEntry, 0, len(rows))
	for _, m := range rows {
		res = append(res, m.toEntry())
	}
	return res, nil
}
