// Package gateway defines the contract between the client core and the
// hosted backend: generic record-level query/insert/update/delete over
// named collections, plus the current session identity. Implementations
// live in the subpackages (rest, postgres, memory).
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Collection names in the external schema. Capitalization is significant
// and must match the backend bit-exact.
const (
	CollectionEvents        = "Events"
	CollectionAttendance    = "attendance"
	CollectionProfiles      = "profiles"
	CollectionAnnouncements = "Announcements"
)

// Record is a raw row as returned by a store adapter. Numeric values may
// arrive as int64 or float64 depending on the transport; use the typed
// accessors rather than asserting directly.
type Record map[string]any

// String returns the field as a string, or "" when absent or null.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int64 returns the field as an int64, or 0 when absent or not numeric.
func (r Record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// IntPtr returns the field as *int, or nil when absent or null.
func (r Record) IntPtr(key string) *int {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	n := int(r.Int64(key))
	return &n
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Filter restricts a query to rows whose field compares against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Order sorts query results by a field.
type Order struct {
	Field string
	Desc  bool
}

// Identity is the authenticated session user. A nil Identity with a nil
// error means no user is signed in.
type Identity struct {
	ID    string
	Email string
}

// Gateway is the remote data capability the client core depends on.
// All calls are blocking; callers own in-flight guards.
type Gateway interface {
	Query(ctx context.Context, collection string, filters []Filter, order []Order) ([]Record, error)
	Insert(ctx context.Context, collection string, rec Record) (Record, error)
	Update(ctx context.Context, collection string, id any, partial Record) error
	Delete(ctx context.Context, collection string, id any) error
	CurrentIdentity(ctx context.Context) (*Identity, error)
}

// Code is a machine-readable error classification. Constraint outcomes
// (capacity full, duplicate registration) are expected results, not
// generic failures, and must be detected via these codes only, never by
// inspecting error text.
type Code string

const (
	CodeUnknown               Code = "unknown"
	CodeNotFound              Code = "not_found"
	CodeCapacityFull          Code = "capacity_full"
	CodeDuplicateRegistration Code = "duplicate_registration"
	CodeUnauthenticated       Code = "unauthenticated"
	CodeUnavailable           Code = "unavailable"
)

// Error is a gateway failure carrying its classification code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s (%s)", e.Message, e.Code)
}

// NewError builds a coded gateway error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the classification code from err, or CodeUnknown when
// err is not a gateway error.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeUnknown
}
