package celfilter

import "errors"

// ErrInvalidFilter is returned by Compile for expressions that fail to parse
// or type-check.
var ErrInvalidFilter = errors.New("invalid peek filter")
