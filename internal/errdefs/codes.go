// Package errdefs defines the error taxonomy shared across the routing,
// membership, album, index and task layers.
package errdefs

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code classifies an error into the core taxonomy.
type Code int

const (
	CodeUnknown Code = 0

	// Routing errors
	CodeInvalidKeyLength  Code = 1000
	CodeUnresolvableToken Code = 1001

	// Membership errors
	CodeNodeUnreachable Code = 1100

	// Album errors
	CodeAlbumNotFound  Code = 1200
	CodeAlbumClosed    Code = 1201
	CodeDuplicateAlbum Code = 1202

	// Index errors
	CodeInvalidGeocodeFilter Code = 1300

	// Raster errors
	CodeUnsupportedFormat     Code = 1400
	CodeDecodeFailed          Code = 1401
	CodeNoImprovementFromFill Code = 1402

	// Storage errors
	CodeIoFailure Code = 1500

	// Task errors
	CodeTaskNotFound    Code = 1600
	CodeUnknownTaskKind Code = 1601
)

// Error is a classified error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCStatus maps the error onto a gRPC status so that classified errors
// survive the RPC boundary with a meaningful code.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.grpcCode(), e.Error())
}

func (e *Error) grpcCode() codes.Code {
	switch e.Code {
	case CodeInvalidKeyLength, CodeInvalidGeocodeFilter, CodeUnsupportedFormat, CodeUnknownTaskKind:
		return codes.InvalidArgument
	case CodeAlbumNotFound, CodeTaskNotFound:
		return codes.NotFound
	case CodeDuplicateAlbum:
		return codes.AlreadyExists
	case CodeAlbumClosed, CodeNoImprovementFromFill:
		return codes.FailedPrecondition
	case CodeNodeUnreachable, CodeUnresolvableToken:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// New creates a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// GetCode extracts the classification from an error chain.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Is reports whether any error in the chain carries the given code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// Convenience constructors for the common cases.

func InvalidKeyLength(keyLength int, geocode string) *Error {
	return Newf(CodeInvalidKeyLength,
		"key length %d invalid for geocode %q", keyLength, geocode)
}

func NodeUnreachable(nodeID uint32, state string) *Error {
	return Newf(CodeNodeUnreachable, "node %d is %s", nodeID, state)
}

func AlbumNotFound(name string) *Error {
	return Newf(CodeAlbumNotFound, "album %q not found", name)
}

func AlbumClosed(name string) *Error {
	return Newf(CodeAlbumClosed, "album %q is closed", name)
}

func DuplicateAlbum(name string) *Error {
	return Newf(CodeDuplicateAlbum, "album %q already exists", name)
}

func InvalidGeocodeFilter(filter string) *Error {
	return Newf(CodeInvalidGeocodeFilter, "malformed geocode filter %q", filter)
}

func UnsupportedFormat(format string) *Error {
	return Newf(CodeUnsupportedFormat, "unsupported image format %q", format)
}

func NoImprovementFromFill(geocode string) *Error {
	return Newf(CodeNoImprovementFromFill,
		"fill produced no coverage improvement for %q", geocode)
}

func IoFailure(message string, cause error) *Error {
	return Wrap(CodeIoFailure, message, cause)
}

func TaskNotFound(id string) *Error {
	return Newf(CodeTaskNotFound, "task %q not found", id)
}

func UnknownTaskKind(kind string) *Error {
	return Newf(CodeUnknownTaskKind, "unknown task kind %q", kind)
}
