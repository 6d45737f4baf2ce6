package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/vnykmshr/flowguard/pkg/flow"
	"github.com/vnykmshr/flowguard/pkg/guard"
)

type simulateFlags struct {
	resource    string
	origin      string
	contextName string
	calls       int
	interval    time.Duration
	hold        time.Duration
	prioritized bool
}

func newSimulateCmd(log *logger.Logger) *cobra.Command {
	var flags simulateFlags
	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Replay calls against a rule document on a virtual clock",
		Long: `Load a rule document into a guard running on a virtual clock and enter
the resource once per interval. Queueing waits advance the virtual clock
instead of sleeping. Prints how many calls passed and which rules blocked
the rest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.resource == "" {
				return errors.New("--resource is required")
			}
			rules, err := readRules(cmd, args[0])
			if err != nil {
				return err
			}
			res, err := simulate(rules, flags, log)
			if err != nil {
				return err
			}
			res.print(cmd)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.resource, "resource", "r", "", "resource to enter")
	cmd.Flags().StringVar(&flags.origin, "origin", "", "caller origin")
	cmd.Flags().StringVar(&flags.contextName, "context", "", "entry point name")
	cmd.Flags().IntVarP(&flags.calls, "calls", "n", 100, "number of calls")
	cmd.Flags().DurationVar(&flags.interval, "interval", 10*time.Millisecond, "virtual time between calls")
	cmd.Flags().DurationVar(&flags.hold, "hold", 0, "virtual time each admitted call runs before exiting")
	cmd.Flags().BoolVar(&flags.prioritized, "prioritized", false, "enter as prioritized calls")
	return cmd
}

// simulationStart is the virtual instant the first call is made at. It
// falls on a whole second so sample windows line up with the calls.
var simulationStart = time.UnixMilli(1_700_000_000_000)

type simulation struct {
	passed   int
	blocked  int
	byRule   map[string]int
	duration time.Duration
}

func simulate(rules []flow.Rule, flags simulateFlags, log *logger.Logger) (*simulation, error) {
	clk := testingclock.NewFakeClock(simulationStart)
	g, err := guard.New(guard.WithClock(clk), guard.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if _, err := g.LoadRules(rules); err != nil {
		log.WithError(err).Warn("some rules were rejected")
	}

	opts := []guard.EntryOption{guard.WithOrigin(flags.origin), guard.WithContextName(flags.contextName)}
	if flags.prioritized {
		opts = append(opts, guard.WithPrioritized())
	}

	type held struct {
		entry *guard.Entry
		until time.Time
	}
	res := &simulation{byRule: make(map[string]int)}
	var inflight []held
	for i := 0; i < flags.calls; i++ {
		if i > 0 {
			clk.Step(flags.interval)
		}
		kept := inflight[:0]
		for _, h := range inflight {
			if clk.Now().Before(h.until) {
				kept = append(kept, h)
				continue
			}
			h.entry.Exit()
		}
		inflight = kept

		e, err := g.Entry(context.Background(), flags.resource, opts...)
		if err != nil {
			var berr *guard.BlockError
			if !errors.As(err, &berr) {
				return nil, err
			}
			res.blocked++
			res.byRule[describeRule(berr.Rule)]++
			continue
		}
		res.passed++
		inflight = append(inflight, held{entry: e, until: clk.Now().Add(flags.hold)})
	}
	for _, h := range inflight {
		h.entry.Exit()
	}
	res.duration = clk.Since(simulationStart)
	return res, nil
}

func describeRule(r *flow.Rule) string {
	if r == nil {
		return "-"
	}
	desc := fmt.Sprintf("%s %s<=%g %s limitApp=%s", r.Resource, r.ThresholdKind, r.Threshold, r.ControlBehavior, r.LimitApp)
	if r.RefResource != "" {
		desc += " ref=" + r.RefResource
	}
	return desc
}

func (s *simulation) print(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "passed: %d\nblocked: %d\nvirtual time: %s\n", s.passed, s.blocked, s.duration)
	ids := make([]string, 0, len(s.byRule))
	for id := range s.byRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "  blocked by %s: %d\n", id, s.byRule[id])
	}
}
