// ABOUTME: Tests for tagged service errors
// ABOUTME: Verifies kind extraction through wrapping and message exposure

package admin

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"authorization", unauthorized("no"), KindAuthorization},
		{"validation", invalid("bad"), KindValidation},
		{"ownership", notOwned("gone"), KindOwnership},
		{"conflict", &Error{Kind: KindConflict, Owner: "a@x.com"}, KindConflict},
		{"wrapped", fmt.Errorf("outer: %w", notOwned("gone")), KindOwnership},
		{"foreign", errors.New("boom"), KindServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := serverError(msgAddKeyFailed, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, msgAddKeyFailed, MessageOf(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, MessageOf(cause))
}

func TestWithMessage(t *testing.T) {
	plain := withMessage(errors.New("x"), msgAddKeyFailed)
	assert.Equal(t, KindServer, KindOf(plain))
	assert.Equal(t, msgAddKeyFailed, MessageOf(plain))

	v := withMessage(invalid("email is not valid"), msgAddKeyFailed)
	assert.Equal(t, KindValidation, KindOf(v))
	assert.Equal(t, "email is not valid", MessageOf(v))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "server", KindServer.String())
	assert.Equal(t, "conflict", KindConflict.String())
}
