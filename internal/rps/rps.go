// Package rps resolves a rock/paper/scissors match between side A and side B.
package rps

import "github.com/atmx/arena-escrow/internal/model"

// beats[x] is the move that x defeats.
var beats = map[model.Move]model.Move{
	model.MoveRock:     model.MoveScissors,
	model.MoveScissors: model.MovePaper,
	model.MovePaper:    model.MoveRock,
}

// Winner returns Draw for equal moves, A when a beats b and B otherwise.
// Both moves must already be validated with model.ParseMove.
func Winner(a, b model.Move) model.Winner {
	if a == b {
		return model.WinnerDraw
	}
	if beats[a] == b {
		return model.WinnerA
	}
	return model.WinnerB
}
