package support

import (
	"time"

	"eduhub/pkg/types"
)

// candidate is one roster entry as seen by a selection policy.
type candidate struct {
	agent        *types.Agent
	load         int
	lastAssigned time.Time
}

// selectAgent applies policy to the roster. Candidates are in roster order,
// which breaks every tie. intn must return a uniform value in [0, n).
// It returns nil when no candidate qualifies.
func selectAgent(policy Policy, candidates []candidate, maxSessions int, intn func(int) int) *types.Agent {
	if len(candidates) == 0 {
		return nil
	}

	switch policy {
	case PolicyRoundRobin:
		best := 0
		for i, c := range candidates[1:] {
			if c.lastAssigned.Before(candidates[best].lastAssigned) {
				best = i + 1
			}
		}
		return candidates[best].agent

	case PolicyRandom:
		return candidates[intn(len(candidates))].agent

	default:
		var best *candidate
		for i := range candidates {
			c := &candidates[i]
			if maxSessions > 0 && c.load >= maxSessions {
				continue
			}
			if best == nil || c.load < best.load {
				best = c
			}
		}
		if best == nil {
			return nil
		}
		return best.agent
	}
}
