package service

import (
	"errors"
	"fmt"
)

// Виды ошибок бизнес-логики. Конкретные ошибки оборачивают их через %w.
var (
	// ErrValidation: некорректные или отсутствующие входные данные.
	ErrValidation = errors.New("validation error")
	// ErrConflict: нарушение уникальности, например занятый логин.
	ErrConflict = errors.New("conflict")
	// ErrNotFound: неизвестный идентификатор или трек-номер.
	ErrNotFound = errors.New("not found")
	// ErrPermission: операция запрещена правилами доступа.
	ErrPermission = errors.New("permission denied")
	// ErrInvalidCredentials: неверный логин или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDeactivated: учётная запись отключена.
	ErrAccountDeactivated = errors.New("account deactivated")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func permissionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

func notFoundError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
