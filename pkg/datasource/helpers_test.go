package datasource

import (
	"io"
	"testing"

	logger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/flowguard/pkg/flow"
)

func quietLogger() *logger.Logger {
	l := logger.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestManager(t *testing.T) *flow.Manager {
	t.Helper()
	cfg := flow.DefaultConfig()
	cfg.Logger = quietLogger()
	m, err := flow.NewManager(cfg)
	require.NoError(t, err)
	return m
}

func thresholds(m *flow.Manager, resource string) []float64 {
	var out []float64
	for _, r := range m.RulesOfResource(resource) {
		out = append(out, r.Threshold)
	}
	return out
}

const ordersDoc = `
- resource: orders
  threshold: 10
- resource: orders
  limitApp: appA
  threshold: 2
`
