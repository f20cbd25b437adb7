package format

import (
	"errors"

	"github.com/bqchat/bqchat/internal/warehouse"
)

// Label names the failure class of a warehouse error for display in an error
// block. Unclassified errors get the generic label: internal faults are
// logged, not explained to the user.
func Label(err error) string {
	switch {
	case errors.Is(err, warehouse.ErrTableNotFound):
		return "NotFoundError"
	case errors.Is(err, warehouse.ErrAuth):
		return "AuthError"
	case errors.Is(err, warehouse.ErrPermission):
		return "PermissionError"
	case errors.Is(err, warehouse.ErrSyntax):
		return "QuerySyntaxError"
	case errors.Is(err, warehouse.ErrRemote):
		return "RemoteError"
	default:
		return "Error"
	}
}
