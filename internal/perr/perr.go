// Package perr defines the tagged error taxonomy shared by every layer of
// the partitioner: shadow tables, the predicate analyzer, the cursor, and
// the vtab adapter all return *Error rather than bare strings so that the
// host can tell a bad CREATE VIRTUAL TABLE statement from a storage fault.
package perr

import "fmt"

// Kind classifies the cause of an Error. Callers should switch on Kind
// rather than on Error() text.
type Kind int

const (
	// Unknown is the zero value and should never be returned deliberately.
	Unknown Kind = iota
	// ColumnTypeMismatch is returned when a value cannot be coerced into
	// the declared type of its column.
	ColumnTypeMismatch
	// ColumnDeclaration is returned when a column fragment in a CREATE
	// VIRTUAL TABLE statement cannot be parsed.
	ColumnDeclaration
	// ParseValueType is returned when a type keyword is unknown or a
	// value cannot be parsed as the type it claims to be (e.g. a string
	// matching no known datetime format).
	ParseValueType
	// ParseInterval is returned when an interval fragment ("1 hour") is
	// malformed or names an unsupported unit.
	ParseInterval
	// PartitionColumn is returned for any violation of the single,
	// temporal partition column invariant, including an attempted
	// cross-partition UPDATE.
	PartitionColumn
	// WhereClause is returned when a plan cannot be serialized or parsed,
	// or one of its clauses references an argv index with no bound
	// argument at Filter time.
	WhereClause
	// Host is returned when the underlying SQLite connection reports an
	// error the partitioner cannot recover from.
	Host
)

func (k Kind) String() string {
	switch k {
	case ColumnTypeMismatch:
		return "column type mismatch"
	case ColumnDeclaration:
		return "column declaration"
	case ParseValueType:
		return "parse value type"
	case ParseInterval:
		return "parse interval"
	case PartitionColumn:
		return "partition column"
	case WhereClause:
		return "where clause"
	case Host:
		return "host"
	default:
		return "unknown"
	}
}

// Error is the partitioner's single error type. Kind is always set by the
// constructors below; Err, when present, is the proximate cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func wrapf(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

func ColumnTypeMismatchf(format string, args ...any) *Error {
	return newf(ColumnTypeMismatch, format, args...)
}

func ColumnDeclarationf(format string, args ...any) *Error {
	return newf(ColumnDeclaration, format, args...)
}

func ParseValueTypef(err error, format string, args ...any) *Error {
	return wrapf(ParseValueType, err, format, args...)
}

func ParseIntervalf(format string, args ...any) *Error {
	return newf(ParseInterval, format, args...)
}

func PartitionColumnf(format string, args ...any) *Error {
	return newf(PartitionColumn, format, args...)
}

func WhereClausef(format string, args ...any) *Error {
	return newf(WhereClause, format, args...)
}

func Hostf(err error, format string, args ...any) *Error {
	return wrapf(Host, err, format, args...)
}

// Is reports whether err, or any error in its Unwrap chain, is an *Error
// of the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == k
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
