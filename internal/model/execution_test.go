package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutionMeta_RoundTripThroughColumn(t *testing.T) {
	e := &Execution{Result: JSONMap{"count": 3}}
	e.SetMeta(ExecutionMeta{TriggeredBy: 42, Manual: true, Attempt: 2})

	v, err := e.Result.Value()
	require.NoError(t, err)

	var back JSONMap
	require.NoError(t, back.Scan([]byte(v.(string))))
	loaded := &Execution{Result: back}

	require.Equal(t, ExecutionMeta{TriggeredBy: 42, Manual: true, Attempt: 2}, loaded.Meta())
	require.EqualValues(t, 3, loaded.Result["count"])
}

func TestJSONMap_ScanNilAndEmpty(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan(nil))
	require.NotNil(t, m)
	require.NoError(t, m.Scan(""))
	require.Empty(t, m)
	require.Error(t, m.Scan(12))

	v, err := JSONMap(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "{}", v)
}
