// Package mixture estimates haplogroup mixture proportions from a
// read × haplogroup log-likelihood matrix with an
// expectation-maximization algorithm. All iteration arithmetic is
// performed in log space; multiple random restarts are supported.
package mixture

import (
	"github.com/op/go-logging"
)

// log is a global logging variable.
var log = logging.MustGetLogger("mixture")

// Settings holds the EM configuration.
type Settings struct {
	// InitAlpha is the symmetric Dirichlet concentration used to
	// draw the initial proportions of every restart.
	InitAlpha float64
	// Tolerance is the convergence threshold on the sum of
	// absolute proportion changes (natural space).
	Tolerance float64
	// MaxIter is the maximum number of EM iterations per restart.
	MaxIter int
	// NMulti is the number of independent restarts.
	NMulti int
	// Verbose enables progress reporting.
	Verbose bool
}

// NewSettings returns the default EM settings.
func NewSettings() *Settings {
	return &Settings{
		InitAlpha: 1.0,
		Tolerance: 1e-4,
		MaxIter:   1000,
		NMulti:    1,
	}
}

// RestartSummary stores the outcome of a single EM restart.
type RestartSummary struct {
	// Iterations is the number of EM iterations performed.
	Iterations int `json:"iterations"`
	// Converged reports whether the tolerance was reached before
	// MaxIter. Non-convergence is not an error; the last estimate
	// is kept.
	Converged bool `json:"converged"`
	// Time is the restart run time in seconds.
	Time float64 `json:"time"`
}

// Summary stores summary information for a whole estimation call.
type Summary struct {
	// Restarts are the per-restart summaries.
	Restarts []RestartSummary `json:"restarts"`
}
