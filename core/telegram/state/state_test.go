package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepLifecycle(t *testing.T) {
	m := NewManager()

	assert.Equal(t, StepIdle, m.Step(1))
	assert.False(t, m.InProgress(1))

	m.SetStep(1, Step("await_name"))
	assert.Equal(t, Step("await_name"), m.Step(1))
	assert.True(t, m.InProgress(1))

	m.Clear(1)
	assert.Equal(t, StepIdle, m.Step(1))
}

func TestScratchData(t *testing.T) {
	m := NewManager()

	m.Put(1, "pack_name", "funny_cats")
	v, ok := m.GetString(1, "pack_name")
	assert.True(t, ok)
	assert.Equal(t, "funny_cats", v)

	_, ok = m.Get(1, "missing")
	assert.False(t, ok)
	_, ok = m.Get(2, "pack_name")
	assert.False(t, ok)

	m.Clear(1)
	_, ok = m.Get(1, "pack_name")
	assert.False(t, ok)
}
