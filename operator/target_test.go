package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget(" 123456 , 654321 ")
	require.NoError(t, err)
	assert.Equal(t, Target{GroupID: 123456, UserID: 654321}, target)
	assert.Equal(t, "123456,654321", target.String())

	again, err := ParseTarget(target.String())
	require.NoError(t, err)
	assert.Equal(t, target, again)
}

func TestParseTargetErrors(t *testing.T) {
	_, err := ParseTarget("   ")
	assert.ErrorIs(t, err, ErrEmptyTarget)

	for _, s := range []string{"123456", "abc,123", "123,", ",123", "12,-3", "1,2,3", "99999999999999999999,1"} {
		_, err := ParseTarget(s)
		assert.ErrorIs(t, err, ErrInvalidTarget, s)
	}
}
