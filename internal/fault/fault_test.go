package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aludratest/aludra/internal/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loc string

func (l loc) String() string { return string(l) }

func TestFaultError(t *testing.T) {
	f := NewAutomation(MsgNotFound).WithLocator(loc("id:save"))
	assert.Equal(t, "Element not found: id:save", f.Error())

	cause := errors.New("connection refused")
	tf := NewTechnical(cause, "Driver operation failed")
	assert.Equal(t, "Driver operation failed: connection refused", tf.Error())
	assert.ErrorIs(t, tf, cause)

	hidden := NewAutomation(MsgNotVisible)
	assert.Equal(t, "The element is not visible.", hidden.Error())
	assert.Equal(t, "The element is not visible: id:ghost", hidden.WithLocator(loc("id:ghost")).Error())
	assert.Equal(t, "Element not editable: readonly", NewFunctional(errors.New("readonly"), MsgNotEditable).Error())
}

func TestTierCheckers(t *testing.T) {
	wrapped := fmt.Errorf("clicking: %w", NewFunctional(nil, "boom"))

	assert.True(t, IsFunctional(wrapped))
	assert.False(t, IsTechnical(wrapped))
	assert.False(t, IsAutomation(errors.New("plain")))

	tier, ok := TierOf(NewTechnical(nil, "x"))
	require.True(t, ok)
	assert.Equal(t, Technical, tier)
	assert.Equal(t, "technical", tier.String())
}

func TestAsFunctional(t *testing.T) {
	t.Run("automation is reclassified", func(t *testing.T) {
		orig := NewAutomation(MsgNotVisible).WithLocator(loc("css:.btn"))
		got := AsFunctional(orig)

		assert.True(t, IsFunctional(got))
		assert.Equal(t, orig.Error(), got.Error())
		assert.True(t, IsAutomation(orig), "original must not be mutated")
	})

	t.Run("technical stays technical", func(t *testing.T) {
		orig := NewTechnical(errors.New("io"), MsgSystemNotAvailable)
		assert.Same(t, orig, AsFunctional(orig))
	})

	t.Run("plain errors pass through", func(t *testing.T) {
		plain := errors.New("plain")
		assert.Same(t, plain, AsFunctional(plain))
		assert.Nil(t, AsFunctional(nil))
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Tier
	}{
		{"not found during action", fmt.Errorf("find: %w", driver.ErrNoSuchElement), Functional},
		{"stale during action", driver.ErrStaleElement, Functional},
		{"cancelled", context.Canceled, Technical},
		{"transport failure", errors.New("broken pipe"), Technical},
		{"existing fault kept", NewAutomation("bad"), Automation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err, loc("xpath://a"))
			tier, ok := TierOf(got)
			require.True(t, ok)
			assert.Equal(t, tc.want, tier)
			assert.ErrorIs(t, got, tc.err)
		})
	}

	assert.Nil(t, Classify(nil, nil))
}
