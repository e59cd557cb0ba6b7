package account

import "errors"

var (
	ErrUnauthorized           = errors.New("caller is not authorized")
	ErrNotOwner               = errors.New("caller is not the account owner")
	ErrAccountNotFound        = errors.New("account not found")
	ErrExecutionDisabled      = errors.New("account execution is disabled")
	ErrInsufficientFreeMargin = errors.New("insufficient free margin")
	ErrCannotPayFee           = errors.New("fee exceeds free margin")
	ErrOrderNotFound          = errors.New("conditional order not found")
	ErrCannotExecute          = errors.New("conditional order is not valid for execution")
	ErrZeroAddress            = errors.New("zero address")
	ErrDelegateExists         = errors.New("delegate already registered")
	ErrDelegateNotFound       = errors.New("delegate not registered")
	ErrInvalidNonce           = errors.New("batch nonce too low")
	ErrBadSignature           = errors.New("batch signature does not match account authority")
)
