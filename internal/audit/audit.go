// Package audit реализует журнал действий пользователей.
//
// Запись в журнал выполняется по принципу best effort: ошибка записи логируется
// и никогда не возвращается вызывающему, бизнес-операция при этом считается успешной.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cargodesk/internal/model"
)

const (
	// DefaultLimit применяется, если лимит выборки не задан.
	DefaultLimit = 100

	writeTimeout = 5 * time.Second
)

// Store описывает хранилище записей журнала.
type Store interface {
	AppendActivity(ctx context.Context, entry model.ActivityLogEntry) error
	QueryActivity(ctx context.Context, filter model.ActivityFilter, limit int) ([]model.ActivityLogEntry, error)
}

// Log: журнал действий поверх хранилища.
type Log struct {
	store    Store
	logger   *zap.Logger
	loc      *time.Location
	maxLimit int
	now      func() time.Time
}

// Option настраивает журнал.
type Option func(*Log)

// WithLocation задаёт часовой пояс, в котором фильтр интерпретирует календарные дни.
func WithLocation(loc *time.Location) Option {
	return func(l *Log) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithMaxLimit ограничивает количество строк в одной выборке.
func WithMaxLimit(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxLimit = n
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New создаёт журнал действий.
func New(store Store, logger *zap.Logger, opts ...Option) *Log {
	l := &Log{
		store:    store,
		logger:   logger,
		loc:      time.Local,
		maxLimit: 1000,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append пишет запись в журнал. details сериализуется в JSON, строка пишется как есть.
// Ошибки не возвращаются: запись отвязана от отмены запроса и ограничена по времени.
func (l *Log) Append(ctx context.Context, action model.Action, userID *int64, username string, details any) {
	text, err := encodeDetails(details)
	if err != nil {
		l.logger.Warn("activity details encode failed", zap.String("action", string(action)), zap.Error(err))
	}

	entry := model.ActivityLogEntry{
		Action:    action,
		UserID:    userID,
		Username:  username,
		Details:   text,
		Timestamp: l.now(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("activity log write panicked", zap.String("action", string(action)), zap.Any("panic", r))
		}
	}()

	if err := l.store.AppendActivity(writeCtx, entry); err != nil {
		l.logger.Warn("activity log write failed",
			zap.String("action", string(action)),
			zap.String("username", username),
			zap.Error(err),
		)
	}
}

// Query возвращает записи журнала от новых к старым.
// EndDate включает весь календарный день до 23:59:59.999.
func (l *Log) Query(ctx context.Context, q model.ActivityQuery, limit int) ([]model.ActivityLogEntry, error) {
	entries, err := l.store.QueryActivity(ctx, l.Filter(q), l.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query activity log: %w", err)
	}
	return entries, nil
}

// Filter переводит календарные дни запроса в точные границы времени.
func (l *Log) Filter(q model.ActivityQuery) model.ActivityFilter {
	f := model.ActivityFilter{Action: q.Action}
	if q.StartDate != nil {
		f.From = StartOfDay(*q.StartDate, l.loc)
	}
	if q.EndDate != nil {
		f.To = EndOfDay(*q.EndDate, l.loc)
	}
	return f
}

// MaxLimit возвращает предельное количество строк в выборке.
func (l *Log) MaxLimit() int {
	return l.maxLimit
}

func (l *Log) clampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > l.maxLimit {
		limit = l.maxLimit
	}
	return limit
}

// StartOfDay возвращает 00:00:00 календарного дня t в часовом поясе loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay возвращает 23:59:59.999 календарного дня t в часовом поясе loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

func encodeDetails(details any) (string, error) {
	switch v := details.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
