// Package repository содержит реализации доступа к данным: PostgreSQL и встроенный SQLite.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cargodesk/internal/model"
)

//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS

const (
	accountColumns = `id, username, role, is_active, country, branch, email, address, contact, created_at`
	cargoColumns   = `id, tracking_number, sender_name, sender_contact, receiver_name, receiver_contact,
		destination, weight, number_of_items, description, cost, status, payment_status, sending_date, created_at`
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	return applyMigrations(ctx, goose.DialectPostgres, db, postgresMigrationsFS, "migrations/postgres")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a    model.Account
		role string
	)
	err := row.Scan(&a.ID, &a.Username, &role, &a.IsActive,
		&a.Profile.Country, &a.Profile.Branch, &a.Profile.Email, &a.Profile.Address, &a.Profile.Contact,
		&a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = model.Role(role)
	return &a, nil
}

func scanCargo(row pgx.Row) (*model.Cargo, error) {
	var (
		c             model.Cargo
		status        string
		paymentStatus string
	)
	err := row.Scan(&c.ID, &c.TrackingNumber, &c.SenderName, &c.SenderContact, &c.ReceiverName, &c.ReceiverContact,
		&c.Destination, &c.Weight, &c.NumberOfItems, &c.Description, &c.Cost, &status, &paymentStatus,
		&c.SendingDate, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.CargoStatus(status)
	c.PaymentStatus = model.PaymentStatus(paymentStatus)
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// CreateAccount создаёт учётную запись.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a model.Account, passwordHash []byte) (*model.Account, error) {
	var created *model.Account
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		created, err = scanAccount(r.pool.QueryRow(ctx,
			`INSERT INTO users (username, password_hash, role, is_active, country, branch, email, address, contact)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING `+accountColumns,
			a.Username, passwordHash, string(a.Role), a.IsActive,
			a.Profile.Country, a.Profile.Branch, a.Profile.Email, a.Profile.Address, a.Profile.Contact,
		))
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, a.Username)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// GetAccountByID возвращает учётную запись по идентификатору.
func (r *PostgresRepository) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	var a *model.Account
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		a, err = scanAccount(r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM users WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return a, nil
}

// GetAccountByUsername возвращает учётную запись и хеш пароля по логину.
func (r *PostgresRepository) GetAccountByUsername(ctx context.Context, username string) (*model.Account, []byte, error) {
	var (
		a    model.Account
		role string
		hash []byte
	)
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+`, password_hash FROM users WHERE username = $1`, username,
		).Scan(&a.ID, &a.Username, &role, &a.IsActive,
			&a.Profile.Country, &a.Profile.Branch, &a.Profile.Email, &a.Profile.Address, &a.Profile.Contact,
			&a.CreatedAt, &hash)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	a.Role = model.Role(role)
	return &a, hash, nil
}

// ListAccounts возвращает учётные записи, при необходимости только с указанной ролью.
func (r *PostgresRepository) ListAccounts(ctx context.Context, role *model.Role) ([]model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users`
	var args []any
	if role != nil {
		query += ` WHERE role = $1`
		args = append(args, string(*role))
	}
	query += ` ORDER BY username`

	var accounts []model.Account
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		accounts = accounts[:0]
		for rows.Next() {
			a, err := scanAccount(rows)
			if err != nil {
				return fmt.Errorf("scan user: %w", err)
			}
			accounts = append(accounts, *a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return accounts, nil
}

// DeleteAccount удаляет учётную запись.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, id int64) error {
	var affected int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CountActiveAdmins возвращает количество активных администраторов.
func (r *PostgresRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`SELECT count(*) FROM users WHERE role = $1 AND is_active`,
			string(model.RoleAdmin),
		).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count active admins: %w", err)
	}
	return n, nil
}

// SetAccountActive меняет признак активности. При keepActiveAdmin проверка
// «останется хотя бы один активный администратор» и обновление выполняются
// в одной транзакции с блокировкой строк активных администраторов.
func (r *PostgresRepository) SetAccountActive(ctx context.Context, id int64, active, keepActiveAdmin bool) (*model.Account, error) {
	var updated *model.Account
	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if !active && keepActiveAdmin {
			rows, err := tx.Query(ctx,
				`SELECT id FROM users WHERE role = $1 AND is_active FOR UPDATE`,
				string(model.RoleAdmin),
			)
			if err != nil {
				return fmt.Errorf("lock active admins: %w", err)
			}
			remaining := 0
			for rows.Next() {
				var adminID int64
				if err := rows.Scan(&adminID); err != nil {
					rows.Close()
					return fmt.Errorf("scan admin id: %w", err)
				}
				if adminID != id {
					remaining++
				}
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("lock active admins: %w", err)
			}
			if remaining == 0 {
				return ErrLastActiveAdmin
			}
		}

		updated, err = scanAccount(tx.QueryRow(ctx,
			`UPDATE users SET is_active = $2 WHERE id = $1 RETURNING `+accountColumns,
			id, active,
		))
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrLastActiveAdmin):
			return nil, err
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("set user active: %w", err)
	}
	return updated, nil
}

// UpdatePassword сохраняет новый хеш пароля.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) (*model.Account, error) {
	var updated *model.Account
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		updated, err = scanAccount(r.pool.QueryRow(ctx,
			`UPDATE users SET password_hash = $2 WHERE id = $1 RETURNING `+accountColumns,
			id, passwordHash,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update password: %w", err)
	}
	return updated, nil
}

// UpdateProfile обновляет только переданные поля профиля.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id int64, p model.ProfilePatch) (*model.Account, error) {
	var updated *model.Account
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		updated, err = scanAccount(r.pool.QueryRow(ctx,
			`UPDATE users SET
				country = COALESCE($2, country),
				branch  = COALESCE($3, branch),
				email   = COALESCE($4, email),
				address = COALESCE($5, address),
				contact = COALESCE($6, contact)
			 WHERE id = $1
			 RETURNING `+accountColumns,
			id, p.Country, p.Branch, p.Email, p.Address, p.Contact,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

// CreateCargo сохраняет отправление.
func (r *PostgresRepository) CreateCargo(ctx context.Context, c model.Cargo) (*model.Cargo, error) {
	var created *model.Cargo
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		created, err = scanCargo(r.pool.QueryRow(ctx,
			`INSERT INTO cargo (tracking_number, sender_name, sender_contact, receiver_name, receiver_contact,
				destination, weight, number_of_items, description, cost, status, payment_status, sending_date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 RETURNING `+cargoColumns,
			c.TrackingNumber, c.SenderName, c.SenderContact, c.ReceiverName, c.ReceiverContact,
			c.Destination, c.Weight, c.NumberOfItems, c.Description, c.Cost,
			string(c.Status), string(c.PaymentStatus), c.SendingDate, c.CreatedAt,
		))
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrTrackingNumberTaken, c.TrackingNumber)
		}
		return nil, fmt.Errorf("insert cargo: %w", err)
	}
	return created, nil
}

// GetCargoByTrackingNumber возвращает отправление по трек-номеру.
func (r *PostgresRepository) GetCargoByTrackingNumber(ctx context.Context, trackingNumber string) (*model.Cargo, error) {
	var c *model.Cargo
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		c, err = scanCargo(r.pool.QueryRow(ctx,
			`SELECT `+cargoColumns+` FROM cargo WHERE tracking_number = $1`, trackingNumber))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCargoNotFound
		}
		return nil, fmt.Errorf("get cargo: %w", err)
	}
	return c, nil
}

// SetCargoStatus обновляет только статус доставки.
func (r *PostgresRepository) SetCargoStatus(ctx context.Context, trackingNumber string, status model.CargoStatus) (*model.Cargo, error) {
	return r.updateCargo(ctx, `UPDATE cargo SET status = $2 WHERE tracking_number = $1 RETURNING `+cargoColumns,
		trackingNumber, string(status))
}

// SetCargoPaymentStatus обновляет только статус оплаты.
func (r *PostgresRepository) SetCargoPaymentStatus(ctx context.Context, trackingNumber string, status model.PaymentStatus) (*model.Cargo, error) {
	return r.updateCargo(ctx, `UPDATE cargo SET payment_status = $2 WHERE tracking_number = $1 RETURNING `+cargoColumns,
		trackingNumber, string(status))
}

func (r *PostgresRepository) updateCargo(ctx context.Context, query string, args ...any) (*model.Cargo, error) {
	var c *model.Cargo
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		c, err = scanCargo(r.pool.QueryRow(ctx, query, args...))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCargoNotFound
		}
		return nil, fmt.Errorf("update cargo: %w", err)
	}
	return c, nil
}

// CountCargo возвращает общее количество отправлений.
func (r *PostgresRepository) CountCargo(ctx context.Context) (int64, error) {
	var n int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `SELECT count(*) FROM cargo`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count cargo: %w", err)
	}
	return n, nil
}

// SumPaidRevenue возвращает сумму стоимости оплаченных отправлений.
func (r *PostgresRepository) SumPaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(cost), 0) FROM cargo WHERE payment_status = $1`,
			string(model.PaymentStatusPaid),
		).Scan(&sum)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	return sum, nil
}

// RecentCargo возвращает последние созданные отправления.
func (r *PostgresRepository) RecentCargo(ctx context.Context, limit int) ([]model.Cargo, error) {
	var res []model.Cargo
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+cargoColumns+` FROM cargo ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			c, err := scanCargo(rows)
			if err != nil {
				return fmt.Errorf("scan cargo: %w", err)
			}
			res = append(res, *c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select recent cargo: %w", err)
	}
	return res, nil
}

// GetPricingRule возвращает тариф.
func (r *PostgresRepository) GetPricingRule(ctx context.Context) (*model.PricingRule, error) {
	var rule model.PricingRule
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`SELECT base_cost, cost_per_kg FROM pricing_config WHERE id = 1`,
		).Scan(&rule.BaseCost, &rule.CostPerKg)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPricingRuleNotFound
		}
		return nil, fmt.Errorf("get pricing rule: %w", err)
	}
	return &rule, nil
}

// SavePricingRule создаёт или обновляет единственную строку тарифа.
func (r *PostgresRepository) SavePricingRule(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error) {
	var saved model.PricingRule
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO pricing_config (id, base_cost, cost_per_kg) VALUES (1, $1, $2)
			 ON CONFLICT (id) DO UPDATE SET base_cost = EXCLUDED.base_cost, cost_per_kg = EXCLUDED.cost_per_kg
			 RETURNING base_cost, cost_per_kg`,
			rule.BaseCost, rule.CostPerKg,
		).Scan(&saved.BaseCost, &saved.CostPerKg)
	})
	if err != nil {
		return nil, fmt.Errorf("save pricing rule: %w", err)
	}
	return &saved, nil
}

// AppendActivity добавляет запись в журнал действий.
func (r *PostgresRepository) AppendActivity(ctx context.Context, e model.ActivityLogEntry) error {
	var username, details *string
	if e.Username != "" {
		username = &e.Username
	}
	if e.Details != "" {
		details = &e.Details
	}

	err := r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO activity_log (action, user_id, username, details, timestamp) VALUES ($1, $2, $3, $4, $5)`,
			string(e.Action), e.UserID, username, details, e.Timestamp,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// QueryActivity возвращает записи журнала от новых к старым.
func (r *PostgresRepository) QueryActivity(ctx context.Context, f model.ActivityFilter, limit int) ([]model.ActivityLogEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.Action != "" {
		args = append(args, string(f.Action))
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	query := `SELECT id, action, user_id, username, details, timestamp FROM activity_log`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY timestamp DESC, id DESC LIMIT $%d`, len(args))

	var res []model.ActivityLogEntry
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var (
				e        model.ActivityLogEntry
				action   string
				username *string
				details  *string
			)
			if err := rows.Scan(&e.ID, &action, &e.UserID, &username, &details, &e.Timestamp); err != nil {
				return fmt.Errorf("scan activity: %w", err)
			}
			e.Action = model.Action(action)
			if username != nil {
				e.Username = *username
			}
			if details != nil {
				e.Details = *details
			}
			res = append(res, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select activity: %w", err)
	}
	return res, nil
}
