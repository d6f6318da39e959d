package spline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_Endpoints(t *testing.T) {
	src := `[{"t":0,"v":1},{"t":1,"v":5}]`
	v, err := Eval(src, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-9)

	v, err = Eval(src, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5, v, 1e-9)
}

func TestEval_Clamps(t *testing.T) {
	src := `[{"t":0,"v":1},{"t":1,"v":5}]`
	v, err := Eval(src, -5)
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-9)

	v, err = Eval(src, 5)
	require.NoError(t, err)
	assert.InDelta(t, 5, v, 1e-9)
}

func TestEval_LinearMidpointWithNoTangents(t *testing.T) {
	src := `[{"t":0,"v":0,"wo":1},{"t":1,"v":10,"wi":1}]`
	v, err := Eval(src, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 5, v, 1e-3)
}

func TestEval_EmptyArray(t *testing.T) {
	_, err := Eval(`[]`, 0.5)
	assert.Error(t, err)
}

func TestEval_InvalidJSON(t *testing.T) {
	_, err := Eval(`not json`, 0.5)
	assert.Error(t, err)
}
