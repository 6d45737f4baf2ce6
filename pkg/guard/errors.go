package guard

import (
	"fmt"

	"github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/flow"
)

// BlockError reports an entry rejected by flow control. It wraps
// errors.ErrBlocked.
type BlockError struct {
	// Resource is the resource that was entered.
	Resource string
	// Rule is the rule that rejected the entry, nil when no rule did.
	Rule *flow.Rule
	// Reason describes why the entry was rejected.
	Reason string
}

func (e *BlockError) Error() string {
	if e.Rule == nil {
		return fmt.Sprintf("flowguard: %s blocked: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("flowguard: %s blocked by rule %s: %s", e.Resource, e.Rule.ID, e.Reason)
}

func (e *BlockError) Unwrap() error {
	return errors.ErrBlocked
}
