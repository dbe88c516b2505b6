package forgeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrappedErrorKeepsKindAndCode(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("connect: %w", Wrap(KindTransport, Unreachable, "ledger unreachable", cause))

	require.True(t, IsKind(err, KindTransport))
	require.True(t, HasCode(err, Unreachable))
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Equal(t, Unreachable, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPlainErrorsHaveNoKind(t *testing.T) {
	err := errors.New("boom")
	assert.False(t, IsKind(err, KindInput))
	assert.False(t, HasCode(err, InvalidSeedLength))
	assert.Equal(t, Kind(""), KindOf(err))
	assert.Equal(t, Code(""), CodeOf(err))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", New(KindTransport, Timeout, "timed out"), true},
		{"connection lost", New(KindState, ConnectionLost, "connection lost"), true},
		{"input", New(KindInput, InvalidSeedLength, "bad seed"), false},
		{"already signed", New(KindState, AlreadySigned, "signed"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}
