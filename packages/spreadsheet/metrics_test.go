package spreadsheet

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordEdits(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "sheet")
	e := New(WithMetrics(m))

	for _, edit := range [][2]string{
		{"A1", "1"},
		{"B1", "=A1+1"},
		{"C1", "=B1/0"},
		{"D1", "=D1"},
		{"E1", "=NOPE()"},
	} {
		_, err := e.SetLabel(edit[0], edit[1])
		require.NoError(t, err)
	}
	_, err := e.ClearLabel("A1")
	require.NoError(t, err)

	assert.Equal(t, 6.0, testutil.ToFloat64(m.edits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles))
	// C1 fails once when set and again when A1 is cleared
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evalErrors.WithLabelValues("#DIV/0!")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evalErrors.WithLabelValues("#NAME?")))

	count, err := testutil.GatherAndCount(reg,
		"sheet_engine_recalc_closure_cells",
		"sheet_engine_recalc_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetricsNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "sheet")
	m.recordEvalError(ErrorCodeRef)
	m.recordCycle()
	m.recordEdit(0, 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"sheet_engine_edits_total",
		"sheet_engine_cycles_total",
		"sheet_engine_evaluation_errors_total",
		"sheet_engine_recalc_closure_cells",
		"sheet_engine_recalc_duration_seconds",
	}, names)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.recordEdit(3, 0)
		m.recordCycle()
		m.recordEvalError(ErrorCodeDiv0)
	})
}

func TestNewMetricsRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "sheet")
	assert.Panics(t, func() { NewMetrics(reg, "sheet") })
}
