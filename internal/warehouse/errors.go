package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for warehouse operations. The warehouse is the sole
// authority on query correctness: these classify its responses, nothing is
// validated locally. Check with errors.Is().
var (
	// ErrTableNotFound indicates the referenced table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrAuth indicates the warehouse credential is invalid or expired.
	ErrAuth = errors.New("authentication failed")

	// ErrPermission indicates the credential lacks access to the resource.
	ErrPermission = errors.New("permission denied")

	// ErrSyntax indicates the warehouse rejected the query text. The
	// warehouse message is preserved verbatim so the user or the model can
	// correct the query.
	ErrSyntax = errors.New("query rejected")

	// ErrRemote indicates any other warehouse-side failure, including
	// timeouts. Transient; the agent may fold it back for a model-driven
	// retry within the loop bound.
	ErrRemote = errors.New("warehouse error")
)

// classify maps a driver error onto the warehouse error taxonomy.
//
// The BigQuery API reports failures as HTTP-style errors with reason strings;
// the database/sql driver surfaces them as flat text, so classification is by
// message. Unrecognized failures fall through to ErrRemote.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, "notfound", "not found: table", "404"):
		return fmt.Errorf("%w: %s", ErrTableNotFound, msg)
	case containsAny(lower, "invalid_grant", "unauthenticated", "invalid credential", "could not find default credentials", "401"):
		return fmt.Errorf("%w: %s", ErrAuth, msg)
	case containsAny(lower, "accessdenied", "access denied", "permission", "403"):
		return fmt.Errorf("%w: %s", ErrPermission, msg)
	case containsAny(lower, "invalidquery", "syntax error", "unrecognized name", "badrequest"):
		return fmt.Errorf("%w: %s", ErrSyntax, msg)
	default:
		return fmt.Errorf("%w: %s", ErrRemote, msg)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
