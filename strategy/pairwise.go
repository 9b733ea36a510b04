// Package strategy holds the closed catalogue of agent decision rules for every
// dilemma family, plus the Registry that maps configuration names to them.
package strategy

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// Move is a single action in a two-player game
type Move uint8

const (
	Cooperate Move = 0
	Defect    Move = 1
)

// String returns "C" or "D"
func (m Move) String() string {
	if m == Defect {
		return "D"
	}
	return "C"
}

// MarshalJSON encodes the move as "C" or "D".
func (m Move) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "C" or "D".
func (m *Move) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "C":
		*m = Cooperate
	case "D":
		*m = Defect
	default:
		return fmt.Errorf("invalid move %q", s)
	}
	return nil
}

// Exchange is one past interaction seen from one side.
type Exchange struct {
	Own      Move
	Opponent Move
}

// History is the sequence of exchanges an agent has had with one opponent,
// oldest first.
type History []Exchange

// LastOpponent returns the opponent's most recent move.
func (h History) LastOpponent() (Move, bool) {
	if len(h) == 0 {
		return Cooperate, false
	}
	return h[len(h)-1].Opponent, true
}

// OpponentEverDefected reports whether any recorded opponent move is a defection.
func (h History) OpponentEverDefected() bool {
	for _, e := range h {
		if e.Opponent == Defect {
			return true
		}
	}
	return false
}

// Rule picks the next move from the history with one opponent. rng is only
// consulted by randomized rules.
type Rule func(h History, rng *rand.Rand) Move

func alwaysCooperate(History, *rand.Rand) Move { return Cooperate }

func alwaysDefect(History, *rand.Rand) Move { return Defect }

// titForTat cooperates first, then mirrors the opponent's last move.
func titForTat(h History, _ *rand.Rand) Move {
	last, ok := h.LastOpponent()
	if !ok {
		return Cooperate
	}
	return last
}

// titForTwoTats defects only after two consecutive opponent defections.
func titForTwoTats(h History, _ *rand.Rand) Move {
	n := len(h)
	if n < 2 {
		return Cooperate
	}
	if h[n-1].Opponent == Defect && h[n-2].Opponent == Defect {
		return Defect
	}
	return Cooperate
}

// twoTitsForTat retaliates whenever the immediately preceding opponent move
// was a defection.
func twoTitsForTat(h History, _ *rand.Rand) Move {
	last, ok := h.LastOpponent()
	if ok && last == Defect {
		return Defect
	}
	return Cooperate
}

func randomMove(_ History, rng *rand.Rand) Move {
	if rng.Intn(2) == 0 {
		return Cooperate
	}
	return Defect
}

// pavlov repeats its last move after a favorable outcome (the opponent
// cooperated) and switches otherwise.
func pavlov(h History, _ *rand.Rand) Move {
	if len(h) == 0 {
		return Cooperate
	}
	last := h[len(h)-1]
	if last.Opponent == Cooperate {
		return last.Own
	}
	if last.Own == Cooperate {
		return Defect
	}
	return Cooperate
}

// grudger never forgives a defection.
func grudger(h History, _ *rand.Rand) Move {
	if h.OpponentEverDefected() {
		return Defect
	}
	return Cooperate
}
