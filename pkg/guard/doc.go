/*
Package guard is the entry point of flowguard: it admits or rejects calls
to named resources according to flow rules.

A call enters a resource, does its work and exits:

	g, err := guard.New()
	if err != nil {
		return err
	}
	if _, err := g.LoadRules([]flow.Rule{
		{Resource: "orders", Threshold: 100},
	}); err != nil {
		return err
	}

	e, err := g.Entry(ctx, "orders", guard.WithOrigin("checkout"))
	if err != nil {
		// errors.Is(err, errors.ErrBlocked) holds; *BlockError names the rule.
		return err
	}
	defer e.Exit()

Do wraps the same pattern around a function and records its error.

Every entry is attributed to an entry point (the context name) and an
optional origin. Both are fixed by the outermost entry on a context, so
entries made with Entry.Context nest under it and Chain rules see the
entry point the request came in through.

Statistics are kept in a stat.Registry shared by all resources. Rules may
be replaced at any time; calls in flight keep checking the rule set they
started with.
*/
package guard
