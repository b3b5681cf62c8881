// ABOUTME: Tests for the keyword screen and its upstream chaining
// ABOUTME: Uses the shared safety fake from testutil
package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/companion-engine/internal/testutil"
)

func TestScreen_LocalRules(t *testing.T) {
	s := NewScreen(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		age  int
		safe bool
	}{
		{"plain", "I love dinosaurs!", 6, true},
		{"word inside word", "I have many skills", 6, true},
		{"violence", "My brother has a GUN.", 9, false},
		{"phrase", "I want to tell you my address", 8, false},
		{"scary for young", "tell me a zombie story", 5, false},
		{"scary allowed older", "tell me a zombie story", 10, true},
		{"punctuation split", "kill...", 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := s.Check(ctx, tt.text, tt.age)
			require.NoError(t, err)
			assert.Equal(t, tt.safe, v.Safe)
			if !tt.safe {
				assert.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestScreen_Upstream(t *testing.T) {
	up := &testutil.Safety{Blocked: []string{"mean"}}
	s := NewScreen(up, nil)

	v, err := s.Check(context.Background(), "you are mean", 8)
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, "blocked: mean", v.Reason)
	assert.Equal(t, 1, up.CheckCount())

	v, err = s.Check(context.Background(), "you are nice", 8)
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Equal(t, 2, up.CheckCount())

	// Local matches never reach upstream.
	_, err = s.Check(context.Background(), "drugs", 8)
	require.NoError(t, err)
	assert.Equal(t, 2, up.CheckCount())
}

func TestScreen_UpstreamError(t *testing.T) {
	up := &testutil.Safety{Err: testutil.ErrFake}
	s := NewScreen(up, nil)

	_, err := s.Check(context.Background(), "hello", 8)
	assert.ErrorIs(t, err, testutil.ErrFake)
}

func TestRedirect(t *testing.T) {
	assert.NotEqual(t, Redirect(5), Redirect(9))
	assert.Contains(t, Redirect(6), "story")
}
