package calibrate

import "errors"

var (
	// ErrHeadBudgetExceeded means the head alone meets or exceeds the budget.
	// The budget is too small or the head too large; calibration cannot help.
	ErrHeadBudgetExceeded = errors.New("head tokens exceed the token budget")

	// ErrDidNotConverge means a calibration pass failed to bring the history
	// closer to the budget.
	ErrDidNotConverge = errors.New("calibration did not converge")

	// ErrInvalidBudget is returned for a non-positive budget.
	ErrInvalidBudget = errors.New("token budget must be positive")

	// ErrUnknownPolicy is returned for a policy other than truncate or summarize.
	ErrUnknownPolicy = errors.New("unknown calibration policy")
)
