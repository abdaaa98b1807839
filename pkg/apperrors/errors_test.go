package apperrors

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
		{"nil", nil, KindNone},
		{"ambiguous", Ambiguous("what is up"), KindAmbiguousIntent},
		{"fallback disabled", fmt.Errorf("interpret: %w", ErrFallbackDisabled), KindAmbiguousIntent},
		{"join", UnsupportedJoin("LocRef", "RepData"), KindUnsupportedJoin},
		{"timeout", fmt.Errorf("%w after 30s", ErrTimeout), KindTimeout},
		{"configuration", Configuration("bad port %d", 0), KindConfiguration},
		{"unknown", errors.New("driver: bad connection"), KindBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHelpersKeepDetail(t *testing.T) {
	assert.EqualError(t, UnsupportedJoin("LocRef", "RepData"), "unsupported join path: LocRef has no direct join to RepData")
	assert.EqualError(t, Configuration("unknown provider %q", "x"), `configuration error: unknown provider "x"`)
	assert.ErrorIs(t, Ambiguous("hello"), ErrAmbiguousIntent)
}
