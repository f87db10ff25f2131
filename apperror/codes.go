package apperror

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeConflict         Code = "CONFLICT"
	CodeExpired          Code = "EXPIRED"
	CodeInternal         Code = "INTERNAL"
)

// CodeOf extracts the code from err, walking the Unwrap chain. Errors
// that do not originate from this package report CodeUnknown.
func CodeOf(err error) Code {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return CodeUnknown
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}
