package detector

import "errors"

// ErrValidation is returned for degenerate scorer input. Callers match it with errors.Is;
// the wrapped message carries the offending value.
var ErrValidation = errors.New("validation error")
