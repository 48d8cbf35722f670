package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("overflow")

func TestToUint32(t *testing.T) {
	t.Parallel()

	v, err := ToUint32(math.MaxUint32, errTest)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)

	_, err = ToUint32(math.MaxUint32+1, errTest)
	require.ErrorIs(t, err, errTest)
}

func TestToUint16(t *testing.T) {
	t.Parallel()

	v, err := ToUint16(26, errTest)
	require.NoError(t, err)
	assert.Equal(t, uint16(26), v)

	_, err = ToUint16(math.MaxUint16+1, errTest)
	require.ErrorIs(t, err, errTest)
}

func TestToInt64(t *testing.T) {
	t.Parallel()

	_, err := ToInt64(math.MaxUint64, errTest)
	require.ErrorIs(t, err, errTest)

	v, err := ToInt64(100, errTest)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestAddUint64(t *testing.T) {
	t.Parallel()

	sum, ok := AddUint64(1, 2)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), sum)

	_, ok = AddUint64(math.MaxUint64, 1)
	assert.False(t, ok)
}
