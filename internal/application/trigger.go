package application

import (
	"context"
	"fmt"
	"strings"
)

// AllMembersSubmitted is emitted by a submission once every group member
// holds at least one range for an unscheduled event.
type AllMembersSubmitted struct {
	EventID     string
	SubmittedBy string
	MemberIDs   []string
}

// SuggestionTrigger decides what happens when AllMembersSubmitted is emitted.
// It runs inside the submitting transaction and reports whether the
// suggestion set was replaced.
type SuggestionTrigger interface {
	OnAllMembersSubmitted(ctx context.Context, tx EventTx, msg AllMembersSubmitted) (bool, error)
}

// TriggerPolicy names a SuggestionTrigger implementation.
type TriggerPolicy string

const (
	// TriggerImmediate recomputes suggestions within the submitting request.
	TriggerImmediate TriggerPolicy = "immediate"
	// TriggerManual leaves recomputation to an organizer.
	TriggerManual TriggerPolicy = "manual"
)

// ParseTriggerPolicy accepts the configuration spelling of a policy.
func ParseTriggerPolicy(raw string) (TriggerPolicy, error) {
	switch policy := TriggerPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case "":
		return TriggerImmediate, nil
	case TriggerImmediate, TriggerManual:
		return policy, nil
	default:
		return "", fmt.Errorf("unknown trigger policy %q", raw)
	}
}

type immediateTrigger struct {
	engine *suggestionEngine
}

func (t immediateTrigger) OnAllMembersSubmitted(ctx context.Context, tx EventTx, msg AllMembersSubmitted) (bool, error) {
	if _, err := t.engine.recompute(ctx, tx); err != nil {
		return false, err
	}
	return true, nil
}

type manualTrigger struct{}

func (manualTrigger) OnAllMembersSubmitted(context.Context, EventTx, AllMembersSubmitted) (bool, error) {
	return false, nil
}

func newSuggestionTrigger(policy TriggerPolicy, engine *suggestionEngine) SuggestionTrigger {
	if policy == TriggerManual {
		return manualTrigger{}
	}
	return immediateTrigger{engine: engine}
}
