package guard

import (
	"context"
	"io"
	"testing"

	logger "github.com/sirupsen/logrus"

	"github.com/vnykmshr/flowguard/pkg/flow"
)

func newBenchGuard(b *testing.B, rules ...flow.Rule) *Guard {
	quiet := logger.New()
	quiet.SetOutput(io.Discard)
	g, err := New(WithLogger(quiet))
	if err != nil {
		b.Fatal(err)
	}
	if _, err := g.LoadRules(rules); err != nil {
		b.Fatal(err)
	}
	return g
}

// BenchmarkEntryNoRules measures the bookkeeping cost of an unguarded resource
func BenchmarkEntryNoRules(b *testing.B) {
	g := newBenchGuard(b)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if e, err := g.Entry(ctx, "bench"); err == nil {
				e.Exit()
			}
		}
	})
}

// BenchmarkEntryQPSRule measures entries checked against one QPS rule
func BenchmarkEntryQPSRule(b *testing.B) {
	g := newBenchGuard(b, flow.Rule{Resource: "bench", Threshold: 1e9})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if e, err := g.Entry(ctx, "bench"); err == nil {
				e.Exit()
			}
		}
	})
}

// BenchmarkEntryBlocked measures the rejection path
func BenchmarkEntryBlocked(b *testing.B) {
	g := newBenchGuard(b, flow.Rule{Resource: "bench", Threshold: 0})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = g.Entry(ctx, "bench")
		}
	})
}

// BenchmarkEntryRegexRule measures entries matched by a pattern rule
func BenchmarkEntryRegexRule(b *testing.B) {
	g := newBenchGuard(b, flow.Rule{Resource: "bench-.*", Threshold: 1e9, Regex: true})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if e, err := g.Entry(ctx, "bench-a"); err == nil {
				e.Exit()
			}
		}
	})
}
