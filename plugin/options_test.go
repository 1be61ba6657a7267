package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverrideWins(t *testing.T) {
	base := Options{`a`: `1`, `b`: `2`}
	merged := base.Merge(Options{`b`: `3`, `c`: `4`})
	assert.Equal(t, Options{`a`: `1`, `b`: `3`, `c`: `4`}, merged)
	// Inputs stay untouched.
	assert.Equal(t, `2`, base[`b`])
}

func TestRequire(t *testing.T) {
	o := Options{`set`: `v`, `empty`: ``}
	v, err := o.Require(`set`)
	require.NoError(t, err)
	assert.Equal(t, `v`, v)

	_, err = o.Require(`empty`)
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = o.Require(`missing`)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestBool(t *testing.T) {
	o := Options{`y`: `yes`, `n`: `no`, `on`: `on`, `bad`: `maybe`}
	assert.True(t, o.Bool(`y`, false))
	assert.True(t, o.Bool(`on`, false))
	assert.False(t, o.Bool(`n`, true))
	assert.True(t, o.Bool(`bad`, true))
	assert.False(t, o.Bool(`missing`, false))
}

func TestDurationPlainSeconds(t *testing.T) {
	o := Options{`plain`: `2`, `unit`: `150ms`, `bad`: `soon`}
	assert.Equal(t, 2*time.Second, o.Duration(`plain`, time.Minute))
	assert.Equal(t, 150*time.Millisecond, o.Duration(`unit`, time.Minute))
	assert.Equal(t, time.Minute, o.Duration(`bad`, time.Minute))
}

func TestStrings(t *testing.T) {
	o := Options{`list`: ` a, b ,,c `}
	assert.Equal(t, []string{`a`, `b`, `c`}, o.Strings(`list`))
	assert.Nil(t, o.Strings(`missing`))
}
