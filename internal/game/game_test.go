package game

import "testing"

func TestResolveRound(t *testing.T) {
	cases := []struct {
		name     string
		choice1  Move
		choice2  Move
		expected Outcome
	}{
		{name: "rock beats scissors", choice1: MoveRock, choice2: MoveScissors, expected: OutcomePlayer1},
		{name: "paper beats rock", choice1: MovePaper, choice2: MoveRock, expected: OutcomePlayer1},
		{name: "scissors beats paper", choice1: MoveScissors, choice2: MovePaper, expected: OutcomePlayer2},
		{name: "same move draws", choice1: MovePaper, choice2: MovePaper, expected: OutcomeDraw},
		{name: "both missing draws", choice1: MoveNone, choice2: MoveNone, expected: OutcomeDraw},
		{name: "missing loses to real move", choice1: MoveNone, choice2: MoveRock, expected: OutcomePlayer2},
		{name: "real move beats missing", choice1: MoveScissors, choice2: MoveNone, expected: OutcomePlayer1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveRound(tc.choice1, tc.choice2)
			if got != tc.expected {
				t.Fatalf("ResolveRound(%q, %q): got %v, want %v", tc.choice1, tc.choice2, got, tc.expected)
			}
		})
	}
}

// Swapping the inputs must swap player1/player2 results and keep draws.
func TestResolveRound_Antisymmetric(t *testing.T) {
	moves := []Move{MoveRock, MovePaper, MoveScissors, MoveNone}
	for _, c1 := range moves {
		for _, c2 := range moves {
			forward := ResolveRound(c1, c2)
			reverse := ResolveRound(c2, c1)
			switch forward {
			case OutcomeDraw:
				if reverse != OutcomeDraw {
					t.Fatalf("(%q,%q) drew but (%q,%q) gave %v", c1, c2, c2, c1, reverse)
				}
			case OutcomePlayer1:
				if reverse != OutcomePlayer2 {
					t.Fatalf("(%q,%q) -> player1 but (%q,%q) gave %v", c1, c2, c2, c1, reverse)
				}
			case OutcomePlayer2:
				if reverse != OutcomePlayer1 {
					t.Fatalf("(%q,%q) -> player2 but (%q,%q) gave %v", c1, c2, c2, c1, reverse)
				}
			default:
				t.Fatalf("(%q,%q) gave unknown outcome %v", c1, c2, forward)
			}
		}
	}
}

func TestParseMove(t *testing.T) {
	for _, s := range []string{"rock", "paper", "scissors"} {
		if m, ok := ParseMove(s); !ok || string(m) != s {
			t.Fatalf("ParseMove(%q): got (%q, %v)", s, m, ok)
		}
	}
	for _, s := range []string{"", "none", "lizard", "Rock"} {
		if _, ok := ParseMove(s); ok {
			t.Fatalf("ParseMove(%q): expected rejection", s)
		}
	}
}

func TestResolveMatch(t *testing.T) {
	cases := []struct {
		name     string
		s1, s2   int
		expected Outcome
	}{
		{name: "higher score wins", s1: 2, s2: 1, expected: OutcomePlayer1},
		{name: "lower score loses", s1: 0, s2: 1, expected: OutcomePlayer2},
		{name: "tie goes to player1", s1: 1, s2: 1, expected: OutcomePlayer1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveMatch(tc.s1, tc.s2); got != tc.expected {
				t.Fatalf("ResolveMatch(%d, %d): got %v, want %v", tc.s1, tc.s2, got, tc.expected)
			}
		})
	}
}
