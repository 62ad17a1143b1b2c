package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	KindValidation       ErrorKind = "VALIDATION_ERROR"
	KindEodLocked        ErrorKind = "EOD_LOCKED"
	KindInvalidProduct   ErrorKind = "INVALID_PRODUCT"
	KindPriceMismatch    ErrorKind = "PRICE_MISMATCH"
	KindAlreadySubmitted ErrorKind = "ALREADY_SUBMITTED"
	KindPersistence      ErrorKind = "PERSISTENCE_ERROR"
	KindNotFound         ErrorKind = "NOT_FOUND"
)

// Error is a classified failure returned to callers of the service.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrEodLocked        = &Error{Kind: KindEodLocked, Message: "end-of-day already submitted for this date"}
	ErrInvalidProduct   = &Error{Kind: KindInvalidProduct, Message: "product has no price on record"}
	ErrPriceMismatch    = &Error{Kind: KindPriceMismatch, Message: "submitted amount does not match price"}
	ErrAlreadySubmitted = &Error{Kind: KindAlreadySubmitted, Message: "end-of-day already submitted"}
	ErrPersistence      = &Error{Kind: KindPersistence, Message: "storage failure"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func EodLocked(key DayKey) error {
	return &Error{Kind: KindEodLocked, Message: fmt.Sprintf("end-of-day already submitted for %s", key)}
}

func AlreadySubmitted(key DayKey) error {
	return &Error{Kind: KindAlreadySubmitted, Message: fmt.Sprintf("end-of-day already submitted for %s", key)}
}

func InvalidProduct(productID string) error {
	return &Error{Kind: KindInvalidProduct, Message: fmt.Sprintf("product %s has no price on record", productID)}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// Persistence wraps a storage failure. Already-classified errors pass through.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	var mismatch *PriceMismatchError
	if errors.As(err, &mismatch) {
		return err
	}
	return &Error{Kind: KindPersistence, Message: "storage failure", Err: err}
}

// PriceMismatchError carries the offending line so callers can show it.
type PriceMismatchError struct {
	ProductID string
	Quantity  int
	Expected  decimal.Decimal
	Submitted decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("%s: product %s qty %d expected %s got %s",
		KindPriceMismatch, e.ProductID, e.Quantity, e.Expected.StringFixed(2), e.Submitted.StringFixed(2))
}

func (e *PriceMismatchError) Is(target error) bool {
	var other *Error
	return errors.As(target, &other) && other.Kind == KindPriceMismatch
}

// KindOf reports the classification of err, or "" when unclassified.
func KindOf(err error) ErrorKind {
	var mismatch *PriceMismatchError
	if errors.As(err, &mismatch) {
		return KindPriceMismatch
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}
