package process

import "codeberg.org/mutker/procwatch/internal/errors"

// Niceness bounds accepted by setpriority(2) on Unix. Lower values run
// with higher scheduling priority.
const (
	MinPriority = -20
	MaxPriority = 19
)

// ValidatePriority returns an ErrInvalidPriority error for levels outside
// [MinPriority, MaxPriority].
func ValidatePriority(level int) error {
	if level < MinPriority || level > MaxPriority {
		return errors.New().WithData(errors.ErrInvalidPriority, struct {
			Level int
			Min   int
			Max   int
		}{level, MinPriority, MaxPriority})
	}
	return nil
}
