/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import "encoding/json"

// ConnectFourRules drops marks into columns; each lands in the lowest empty
// row.
type ConnectFourRules struct {
	Rows int
	Cols int
	Run  int
}

func NewConnectFour() *ConnectFourRules {
	return &ConnectFourRules{Rows: 6, Cols: 7, Run: 4}
}

func (*ConnectFourRules) Variant() Variant { return ConnectFour }

func (*ConnectFourRules) Roles() [2]Role { return [2]Role{"R", "Y"} }

func (c *ConnectFourRules) NewBoard() (Board, error) {
	return &connectFourBoard{cells: newGrid(c.Rows, c.Cols), run: c.Run}, nil
}

type connectFourBoard struct {
	cells grid
	run   int
}

func (b *connectFourBoard) Legal(m Move, _ Role) bool {
	col, ok := m.Index()
	if !ok || col < 0 || col >= b.cells.cols() {
		return false
	}
	return b.cells.drop(col) >= 0
}

func (b *connectFourBoard) Apply(m Move, role Role) string {
	col, _ := m.Index()
	if r := b.cells.drop(col); r >= 0 {
		b.cells[r][col] = role
	}
	return ""
}

// Evaluate declares a draw once the top row is full, since gravity means
// every column is then full too.
func (b *connectFourBoard) Evaluate() Result {
	if w := b.cells.winner(b.run); w != "" {
		return win(w)
	}
	if rowFull(b.cells[0]) {
		return draw
	}
	return Result{}
}

func (b *connectFourBoard) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.cells)
}
