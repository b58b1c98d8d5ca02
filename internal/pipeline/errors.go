package pipeline

import "errors"

// ErrConfiguration marks an empty or missing input source or an invalid hyperparameter.
// It is raised before anything is written to a sink.
var ErrConfiguration = errors.New("configuration error")
