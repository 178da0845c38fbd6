package image

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiRecorder(t *testing.T) {
	assert.Nil(t, MultiRecorder())
	assert.Nil(t, MultiRecorder(nil, nil))

	a := &fakeRecorder{}
	assert.Same(t, a, MultiRecorder(nil, a))

	b := &fakeRecorder{}
	m := MultiRecorder(a, nil, b)
	require.NotNil(t, m)

	m.ObservePollAttempt("flux", JobProcessing)
	m.ObserveGeneration("flux", "success", time.Second)

	for _, r := range []*fakeRecorder{a, b} {
		assert.Equal(t, 1, r.polls)
		assert.Equal(t, []string{"flux:success"}, r.outcomes)
	}
}
