package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallStackRejectsReentryOfTopFrame(t *testing.T) {
	stack := newCallStack("notes", "create_note")
	assert.False(t, stack.push("notes", "create_note"))
}

func TestCallStackAllowsDistinctFrames(t *testing.T) {
	stack := newCallStack("notes", "create_note")
	assert.True(t, stack.push("profiles", "update_profile"))
	assert.True(t, stack.push("notes", "tag_note"))
}

func TestCallStackRejectsIndirectCycle(t *testing.T) {
	stack := newCallStack("notes", "create_note")
	require := stack.push("profiles", "notify")
	assert.True(t, require)
	assert.False(t, stack.push("notes", "create_note"))
}

func TestCallStackPopAllowsReentryAfterReturn(t *testing.T) {
	stack := newCallStack("notes", "create_note")
	assert.True(t, stack.push("profiles", "notify"))
	stack.pop()
	assert.True(t, stack.push("profiles", "notify"))
}
