package datasource

import (
	"errors"

	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/flow"
)

// RuleLoader receives the rules read from a source. Both *guard.Guard and
// *flow.Manager satisfy it.
type RuleLoader interface {
	LoadRules(rules []flow.Rule) (bool, error)
}

var (
	_ RuleLoader = (*flow.Manager)(nil)
)

// isSourceFailure reports whether err came from reading or decoding a
// source rather than from rules the loader rejected.
func isSourceFailure(err error) bool {
	var op *gferrors.OperationError
	return errors.As(err, &op) && op.Module == "datasource"
}
