// Package errs содержит таксономию ошибок сервиса печати.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation возвращается при некорректных входных данных; состояние не изменяется.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition возвращается при попытке перехода, отсутствующего в таблице переходов.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrPartialFailure возвращается, когда из двух связанных записей сохранилась только первая.
	ErrPartialFailure = errors.New("partial failure")
	// ErrUpload возвращается при ошибке загрузки файла заказа.
	ErrUpload = errors.New("upload failed")
	// ErrStaleData возвращается, если запись изменилась после чтения.
	ErrStaleData = errors.New("stale data")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается, если роль участника не допускает операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrBusy возвращается, если предыдущая операция сессии ещё не завершена.
	ErrBusy = errors.New("operation in progress")
)

// ValidationError описывает нарушенное правило валидации.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation создаёт ошибку валидации для поля.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is сопоставляет ошибку с ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError описывает отклонённый переход статуса заказа.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is сопоставляет ошибку с ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// PartialFailureError описывает закрытый тикет, заказ которого не удалось вернуть в печать.
type PartialFailureError struct {
	TicketID string
	OrderID  string
	Attempts int
	Err      error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("ticket %s resolved but order %s not resumed after %d attempts: %v",
		e.TicketID, e.OrderID, e.Attempts, e.Err)
}

// Is сопоставляет ошибку с ErrPartialFailure.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// UploadError описывает файл, загрузка которого не удалась.
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.File, e.Err)
}

// Is сопоставляет ошибку с ErrUpload.
func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
