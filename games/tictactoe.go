/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import "encoding/json"

// TicTacToeRules plays n-in-a-row on a square grid. Cells are addressed by
// row-major index.
type TicTacToeRules struct {
	Size int
	Run  int
}

func NewTicTacToe() *TicTacToeRules {
	return &TicTacToeRules{Size: 3, Run: 3}
}

func (*TicTacToeRules) Variant() Variant { return TicTacToe }

func (*TicTacToeRules) Roles() [2]Role { return [2]Role{"X", "O"} }

func (t *TicTacToeRules) NewBoard() (Board, error) {
	return &ticTacToeBoard{cells: newGrid(t.Size, t.Size), run: t.Run}, nil
}

type ticTacToeBoard struct {
	cells grid
	run   int
}

func (b *ticTacToeBoard) at(i int) (int, int, bool) {
	size := b.cells.cols()
	if i < 0 || i >= size*size {
		return 0, 0, false
	}
	return i / size, i % size, true
}

func (b *ticTacToeBoard) Legal(m Move, _ Role) bool {
	i, ok := m.Index()
	if !ok {
		return false
	}
	r, c, ok := b.at(i)
	return ok && b.cells[r][c] == ""
}

func (b *ticTacToeBoard) Apply(m Move, role Role) string {
	i, _ := m.Index()
	r, c, _ := b.at(i)
	b.cells[r][c] = role
	return ""
}

func (b *ticTacToeBoard) Evaluate() Result {
	if w := b.cells.winner(b.run); w != "" {
		return win(w)
	}
	for _, row := range b.cells {
		if !rowFull(row) {
			return Result{}
		}
	}
	return draw
}

// MarshalJSON flattens the grid into one row-major list of cells.
func (b *ticTacToeBoard) MarshalJSON() ([]byte, error) {
	flat := make([]Role, 0, b.cells.rows()*b.cells.cols())
	for _, row := range b.cells {
		flat = append(flat, row...)
	}
	return json.Marshal(flat)
}
