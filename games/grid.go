/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

// grid is a rows x cols board of marks, row 0 at the top.
type grid [][]Role

func newGrid(rows, cols int) grid {
	g := make(grid, rows)
	for r := range g {
		g[r] = make([]Role, cols)
	}
	return g
}

func (g grid) rows() int { return len(g) }

func (g grid) cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

func (g grid) inBounds(r, c int) bool {
	return r >= 0 && r < g.rows() && c >= 0 && c < g.cols()
}

// drop returns the lowest empty row in col, or -1 if the column is full.
func (g grid) drop(col int) int {
	for r := g.rows() - 1; r >= 0; r-- {
		if g[r][col] == "" {
			return r
		}
	}
	return -1
}

// runs are the four line directions: across, down, and both diagonals.
var runs = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// winner returns the role owning a line of at least n equal marks, if any.
func (g grid) winner(n int) Role {
	for r := range g {
		for c, mark := range g[r] {
			if mark == "" {
				continue
			}
			for _, d := range runs {
				count := 1
				for rr, cc := r+d[0], c+d[1]; g.inBounds(rr, cc) && g[rr][cc] == mark; rr, cc = rr+d[0], cc+d[1] {
					count++
				}
				if count >= n {
					return mark
				}
			}
		}
	}
	return ""
}

func rowFull(row []Role) bool {
	for _, mark := range row {
		if mark == "" {
			return false
		}
	}
	return true
}
