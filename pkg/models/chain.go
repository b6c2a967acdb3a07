package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrEmptyApproverList indicates a chain was built with no approvers.
var ErrEmptyApproverList = errors.New("approver list cannot be empty")

// ApproverChain is the canonical form of an approver list plus routing mode.
// Heterogeneous caller shapes (ordered array, keyed map) are normalized here
// at the boundary so the engine never sniffs shapes at runtime.
type ApproverChain struct {
	Mode      RoutingMode `json:"mode"`
	Approvers []string    `json:"approvers"`
}

// NewSequentialChain builds a sequential chain from an ordered approver list.
func NewSequentialChain(approvers []string) (ApproverChain, error) {
	return newChain(ModeSequential, approvers)
}

// NewParallelChain builds a parallel chain; order is preserved only for
// step indexing, not for activation.
func NewParallelChain(approvers []string) (ApproverChain, error) {
	return newChain(ModeParallel, approvers)
}

func newChain(mode RoutingMode, approvers []string) (ApproverChain, error) {
	if len(approvers) == 0 {
		return ApproverChain{}, ErrEmptyApproverList
	}

	for i, a := range approvers {
		if a == "" {
			return ApproverChain{}, fmt.Errorf("approver at position %d is empty", i)
		}
	}

	out := make([]string, len(approvers))
	copy(out, approvers)

	return ApproverChain{Mode: mode, Approvers: out}, nil
}

// NormalizeChain accepts the approver shapes seen at the system boundary
// and produces a canonical chain:
//   - []string / []any of strings: ordered list
//   - map[string]any keyed by numeric position ("1", "2", ...): sorted by key
func NormalizeChain(mode RoutingMode, raw any) (ApproverChain, error) {
	switch v := raw.(type) {
	case []string:
		return newChain(mode, v)
	case []any:
		approvers := make([]string, 0, len(v))

		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return ApproverChain{}, fmt.Errorf("approver at position %d is not a string", i)
			}

			approvers = append(approvers, s)
		}

		return newChain(mode, approvers)
	case map[string]any:
		type keyed struct {
			pos int
			id  string
		}

		entries := make([]keyed, 0, len(v))

		for key, item := range v {
			pos, err := strconv.Atoi(key)
			if err != nil {
				return ApproverChain{}, fmt.Errorf("approver key %q is not a position: %w", key, err)
			}

			s, ok := item.(string)
			if !ok {
				return ApproverChain{}, fmt.Errorf("approver at key %q is not a string", key)
			}

			entries = append(entries, keyed{pos: pos, id: s})
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

		approvers := make([]string, 0, len(entries))
		for _, e := range entries {
			approvers = append(approvers, e.id)
		}

		return newChain(mode, approvers)
	default:
		return ApproverChain{}, fmt.Errorf("unsupported approver list shape %T", raw)
	}
}
