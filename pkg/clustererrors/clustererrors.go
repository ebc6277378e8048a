// Package clustererrors defines the three error tiers from the design's
// error-handling model (local-recoverable, logical/user-visible, fatal) and
// the stable numeric codes carried by the logical tier.
package clustererrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable, numeric, user-visible error code.
type Code int

const (
	ClusterInsufficientDBServers Code = iota + 6001
	ClusterDataSourceNotFound
	ClusterCouldNotCreateCollection
	ClusterRepairsNotEnoughHealthy
	ClusterRepairsNoDBServers
	ClusterRepairsMismatchingShards
	ClusterRepairsMismatchingLeaders
	ClusterRepairsMismatchingFollowers
	ClusterRepairsInconsistentAttributes
	ClusterRepairsReplicationFactorViolated
	ClusterQueryEngineSetupFailed
)

var names = map[Code]string{
	ClusterInsufficientDBServers:            "CLUSTER_INSUFFICIENT_DBSERVERS",
	ClusterDataSourceNotFound:               "CLUSTER_DATA_SOURCE_NOT_FOUND",
	ClusterCouldNotCreateCollection:         "CLUSTER_COULD_NOT_CREATE_COLLECTION",
	ClusterRepairsNotEnoughHealthy:          "CLUSTER_REPAIRS_NOT_ENOUGH_HEALTHY",
	ClusterRepairsNoDBServers:               "CLUSTER_REPAIRS_NO_DBSERVERS",
	ClusterRepairsMismatchingShards:         "CLUSTER_REPAIRS_MISMATCHING_SHARDS",
	ClusterRepairsMismatchingLeaders:        "CLUSTER_REPAIRS_MISMATCHING_LEADERS",
	ClusterRepairsMismatchingFollowers:      "CLUSTER_REPAIRS_MISMATCHING_FOLLOWERS",
	ClusterRepairsInconsistentAttributes:    "CLUSTER_REPAIRS_INCONSISTENT_ATTRIBUTES",
	ClusterRepairsReplicationFactorViolated: "CLUSTER_REPAIRS_REPLICATION_FACTOR_VIOLATED",
	ClusterQueryEngineSetupFailed:           "CLUSTER_QUERY_ENGINE_SETUP_FAILED",
}

// String renders the stable symbolic name of the code.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("CLUSTER_ERROR_%d", int(c))
}

// Logical is a user-visible error carrying one of the stable codes above.
// Construction never retries; callers surface it directly.
type Logical struct {
	Code    Code
	Message string
	cause   error
}

func (e *Logical) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code.String(), e.Message)
}

func (e *Logical) Unwrap() error { return e.cause }

// New builds a Logical error with the given code and message.
func New(code Code, message string) *Logical {
	return &Logical{Code: code, Message: message}
}

// Newf builds a Logical error with a formatted message.
func Newf(code Code, format string, args ...any) *Logical {
	return &Logical{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying recoverable error, turning it into a
// user-visible Logical error. Uses github.com/pkg/errors so the original
// cause remains reachable via errors.Cause for diagnostics, independent of
// the Unwrap chain used for errors.Is/As.
func Wrap(code Code, cause error, message string) *Logical {
	return &Logical{Code: code, Message: message, cause: errors.WithMessage(cause, message)}
}

// IsCode reports whether err is a Logical error carrying the given code.
func IsCode(err error, code Code) bool {
	var l *Logical
	if !errors.As(err, &l) {
		return false
	}
	return l.Code == code
}

// Fatal marks an error as fatal/shutdown-tier: unreachable agency past the
// deadline, lost agent lock. Policy: fail-fast, undo in-flight creates,
// complete pending waiters with this error.
type Fatal struct {
	Message string
	cause   error
}

func (e *Fatal) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Message, e.cause)
	}
	return "fatal: " + e.Message
}

func (e *Fatal) Unwrap() error { return e.cause }

// NewFatal builds a Fatal error.
func NewFatal(message string, cause error) *Fatal {
	return &Fatal{Message: message, cause: cause}
}

// ErrShutdown is the Fatal error for a component that is shutting down.
// Nothing in this module returns it at present: agencycache.Cache.Stop does
// not complete pending WaitForIndex calls, which end only by their own
// context or timeout.
var ErrShutdown = NewFatal("shutting down", nil)
