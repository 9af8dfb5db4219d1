package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnableChain(t *testing.T) {
	var lines []string
	r := NewRunnable(New(), func(s string) { lines = append(lines, s) })

	engine, err := r.
		Set("A1", "2").
		SetBatch([2]string{"A2", "3"}, [2]string{"A3", "=A1*A2"}).
		Log("A3").
		Clear("A2").
		Log("A3").
		CheckError().
		Run()
	require.NoError(t, err)
	require.NotNil(t, engine)

	assert.Equal(t, []string{"A3: 6", "A3: 0", "No errors"}, lines)
	assert.Equal(t, 4, r.Updates())
	assert.Equal(t, NewNumber(0), r.Value("A3"))
}

func TestRunnableStopsAtFirstError(t *testing.T) {
	var lines []string
	r := NewRunnable(New(), func(s string) { lines = append(lines, s) })

	called := false
	r.Set("A1", "1").
		Set("0A", "2").
		Set("A2", "3").
		Then(func(r *Runnable) *Runnable {
			called = true
			return r
		}).
		CheckError()

	assert.False(t, called)
	require.Error(t, r.Err())
	assert.ErrorIs(t, r.Err(), ErrInvalidReference)
	assert.Equal(t, 1, r.Updates())
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ERROR:")
	assert.True(t, r.Value("A1").IsEmpty())

	_, err := r.Run()
	assert.Error(t, err)
	assert.Panics(t, func() { r.Must() })
}

func TestRunnableNilPrinter(t *testing.T) {
	r := NewRunnable(New(), nil)
	assert.NotPanics(t, func() {
		r.Set("A1", "=1+1").Log("A1").CheckError()
	})
	assert.Equal(t, NewNumber(2), r.Value("A1"))
}
