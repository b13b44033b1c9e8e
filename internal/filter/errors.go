package filter

import "errors"

var (
	ErrBadOperator = errors.New("unknown comparison operator")
	ErrBadPattern  = errors.New("invalid match pattern")
)
