package capability

import "errors"

// ErrKind is a closed enum of the error kinds the core recognises
// (spec.md §7). Callers use errors.Is against the sentinel values below
// rather than string matching.
type ErrKind string

const (
	KindInvalidLimits        ErrKind = "InvalidLimits"
	KindInsufficientCapacity ErrKind = "InsufficientCapacity"
	KindBudgetExceeded       ErrKind = "BudgetExceeded"
	KindTransient            ErrKind = "Transient"
	KindSamplingUnavailable  ErrKind = "SamplingUnavailable"
	KindComponentUnhealthy   ErrKind = "ComponentUnhealthy"
	KindFatal                ErrKind = "Fatal"

	// RuntimeDriver-normalized errors (spec.md §6).
	KindNotFound ErrKind = "NotFound"
	KindBusy     ErrKind = "Busy"
	KindRefused  ErrKind = "Refused"
)

var (
	ErrInvalidLimits        = errors.New("invalid limits")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrBudgetExceeded       = errors.New("budget exceeded")
	ErrTransient            = errors.New("transient failure")
	ErrSamplingUnavailable  = errors.New("sampling unavailable")
	ErrComponentUnhealthy   = errors.New("component unhealthy")
	ErrFatal                = errors.New("fatal error")

	ErrNotFound = errors.New("not found")
	ErrBusy     = errors.New("busy")
	ErrRefused  = errors.New("refused")
)

// kindSentinels maps each ErrKind to its sentinel error for Is/wrapping.
var kindSentinels = map[ErrKind]error{
	KindInvalidLimits:        ErrInvalidLimits,
	KindInsufficientCapacity: ErrInsufficientCapacity,
	KindBudgetExceeded:       ErrBudgetExceeded,
	KindTransient:            ErrTransient,
	KindSamplingUnavailable:  ErrSamplingUnavailable,
	KindComponentUnhealthy:   ErrComponentUnhealthy,
	KindFatal:                ErrFatal,
	KindNotFound:             ErrNotFound,
	KindBusy:                 ErrBusy,
	KindRefused:              ErrRefused,
}

// Sentinel returns the sentinel error for a kind, or nil if the kind is
// unrecognized.
func (k ErrKind) Sentinel() error {
	return kindSentinels[k]
}

// Is reports whether err wraps the sentinel for this kind.
func (k ErrKind) Is(err error) bool {
	s := k.Sentinel()
	return s != nil && errors.Is(err, s)
}
