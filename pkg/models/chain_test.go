package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSequentialChain(t *testing.T) {
	chain, err := NewSequentialChain([]string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, chain.Mode)
	assert.Equal(t, []string{"alice", "bob"}, chain.Approvers)
}

func TestNewChain_RejectsEmptyList(t *testing.T) {
	_, err := NewSequentialChain(nil)
	assert.ErrorIs(t, err, ErrEmptyApproverList)

	_, err = NewParallelChain([]string{})
	assert.ErrorIs(t, err, ErrEmptyApproverList)
}

func TestNewChain_RejectsEmptyApprover(t *testing.T) {
	_, err := NewSequentialChain([]string{"alice", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position 1")
}

func TestNewChain_CopiesInput(t *testing.T) {
	input := []string{"alice", "bob"}

	chain, err := NewSequentialChain(input)
	require.NoError(t, err)

	input[0] = "mallory"
	assert.Equal(t, "alice", chain.Approvers[0])
}

func TestNormalizeChain_StringSlice(t *testing.T) {
	chain, err := NormalizeChain(ModeSequential, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, chain.Approvers)
}

func TestNormalizeChain_AnySlice(t *testing.T) {
	chain, err := NormalizeChain(ModeParallel, []any{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, chain.Mode)
	assert.Equal(t, []string{"alice", "bob"}, chain.Approvers)
}

func TestNormalizeChain_AnySliceRejectsNonString(t *testing.T) {
	_, err := NormalizeChain(ModeSequential, []any{"alice", 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position 1")
}

// Keyed maps come from clients that index approvers by position; numeric key
// order wins over map iteration order.
func TestNormalizeChain_KeyedMapSortsByPosition(t *testing.T) {
	chain, err := NormalizeChain(ModeSequential, map[string]any{
		"10": "carol",
		"2":  "bob",
		"1":  "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, chain.Approvers)
}

func TestNormalizeChain_KeyedMapRejectsNonNumericKey(t *testing.T) {
	_, err := NormalizeChain(ModeSequential, map[string]any{"first": "alice"})
	require.Error(t, err)
}

func TestNormalizeChain_UnsupportedShape(t *testing.T) {
	_, err := NormalizeChain(ModeSequential, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}
