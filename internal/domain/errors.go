package domain

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrUserNotFound             = errors.New("user not found")
	ErrStatementNotFound        = errors.New("statement not found")
	ErrOwnAccount               = errors.New("cannot transfer to own account")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrIncorrectEmailOrPassword = errors.New("incorrect email or password")
	ErrDuplicateUser            = errors.New("user already exists")
	ErrInvalidAmount            = errors.New("amount must be greater than zero with at most two decimal places")
	ErrInvalidStatementType     = errors.New("invalid statement type")
	ErrInvalidRequest           = errors.New("invalid request")
)
