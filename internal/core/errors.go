package core

import "errors"

var (
	ErrFunctionNotFound  = errors.New("function not found")
	ErrInvalidIdentifier = errors.New("invalid function identifier")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrOverloaded        = errors.New("too many concurrent executions")
	ErrUnitTerminated    = errors.New("isolation unit terminated")
)
