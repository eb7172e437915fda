package game

// Move is a player's submission for a round. MoveNone is the sentinel a
// player "chose" when the round deadline fired before they submitted.
type Move string

const (
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"
	MoveNone     Move = ""
)

// beats maps each real move to the move it defeats.
var beats = map[Move]Move{
	MoveRock:     MoveScissors,
	MovePaper:    MoveRock,
	MoveScissors: MovePaper,
}

// ParseMove accepts only the real moves; the sentinel is never a valid
// client submission.
func ParseMove(s string) (Move, bool) {
	m := Move(s)
	if _, ok := beats[m]; !ok {
		return MoveNone, false
	}
	return m, true
}

type Outcome string

const (
	OutcomePlayer1 Outcome = "player1"
	OutcomePlayer2 Outcome = "player2"
	OutcomeDraw    Outcome = "draw"
)

// ResolveRound decides a single round. A missing choice loses to any real
// move; two missing choices or two equal moves draw.
func ResolveRound(choice1, choice2 Move) Outcome {
	switch {
	case choice1 == MoveNone && choice2 == MoveNone:
		return OutcomeDraw
	case choice1 == MoveNone:
		return OutcomePlayer2
	case choice2 == MoveNone:
		return OutcomePlayer1
	case choice1 == choice2:
		return OutcomeDraw
	case beats[choice1] == choice2:
		return OutcomePlayer1
	default:
		return OutcomePlayer2
	}
}

// ResolveMatch decides a finished match from the final scores. Equal scores
// go to player 1; the round counts offered at creation make outright ties
// rare but a match full of draws can still land here.
func ResolveMatch(score1, score2 int) Outcome {
	if score1 > score2 {
		return OutcomePlayer1
	}
	if score2 > score1 {
		return OutcomePlayer2
	}
	return OutcomePlayer1
}
