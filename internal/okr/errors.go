package okr

import "errors"

var (
	ErrNotFound            = errors.New("objective not found")
	ErrSelfAlignment       = errors.New("objective cannot align with itself")
	ErrDuplicateAlignment  = errors.New("alignment already exists")
	ErrCycle               = errors.New("alignment would create a cycle")
	ErrInvalidAlignmentEnd = errors.New("alignment references unknown objective")
)
