package safemath

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maxUint256 = new(uint256.Int).SetAllOne()

func TestAdd(t *testing.T) {
	c, err := Add(uint256.NewInt(2), uint256.NewInt(3))
	require.Nil(t, err)
	assert.Equal(t, uint64(5), c.Uint64())

	_, err = Add(maxUint256, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSub(t *testing.T) {
	c, err := Sub(uint256.NewInt(7), uint256.NewInt(7))
	require.Nil(t, err)
	assert.True(t, c.IsZero())

	_, err = Sub(uint256.NewInt(1), uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestMul(t *testing.T) {
	c, err := Mul(uint256.NewInt(0), maxUint256)
	require.Nil(t, err)
	assert.True(t, c.IsZero())

	c, err = Mul(maxUint256, uint256.NewInt(1))
	require.Nil(t, err)
	assert.True(t, c.Eq(maxUint256))

	_, err = Mul(maxUint256, uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDivMod(t *testing.T) {
	c, err := Div(uint256.NewInt(100), uint256.NewInt(7))
	require.Nil(t, err)
	assert.Equal(t, uint64(14), c.Uint64())

	c, err = Mod(uint256.NewInt(100), uint256.NewInt(7))
	require.Nil(t, err)
	assert.Equal(t, uint64(2), c.Uint64())

	_, err = Div(uint256.NewInt(1), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)
	_, err = Mod(uint256.NewInt(1), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestOperandsNotMutated(t *testing.T) {
	a, b := uint256.NewInt(10), uint256.NewInt(4)
	_, _ = Add(a, b)
	_, _ = Sub(a, b)
	_, _ = Mul(a, b)
	_, _ = Div(a, b)
	assert.Equal(t, uint64(10), a.Uint64())
	assert.Equal(t, uint64(4), b.Uint64())
}

func TestUint64Variants(t *testing.T) {
	_, err := Add64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = Sub64(0, 1)
	assert.ErrorIs(t, err, ErrUnderflow)
	_, err = Mul64(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = Div64(1, 0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
	_, err = Mod64(1, 0)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	v, err := Mul64(0, math.MaxUint64)
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), v)
	assert.Equal(t, uint64(9), Max64(3, 9))
}

func TestErrorCause(t *testing.T) {
	_, err := Sub(uint256.NewInt(1), uint256.NewInt(2))
	wrapped := errors.Wrap(err, "moloch::ragequit")
	assert.Equal(t, ErrUnderflow, errors.Cause(wrapped))
	assert.ErrorIs(t, wrapped, ErrUnderflow)
}
