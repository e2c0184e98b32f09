/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"encoding/json"
	"fmt"
)

// ShipClass is one entry of the fleet every player receives.
type ShipClass struct {
	Name string
	Size int
}

// DefaultFleet is the classic five-ship fleet.
var DefaultFleet = []ShipClass{
	{Name: "carrier", Size: 5},
	{Name: "battleship", Size: 4},
	{Name: "cruiser", Size: 3},
	{Name: "submarine", Size: 3},
	{Name: "destroyer", Size: 2},
}

// Ship is a placed ship. Positions are [row, col] pairs.
type Ship struct {
	Name      string   `json:"name"`
	Size      int      `json:"size"`
	Positions [][2]int `json:"positions"`
}

func (s Ship) occupies(row, col int) bool {
	for _, p := range s.Positions {
		if p[0] == row && p[1] == col {
			return true
		}
	}
	return false
}

// Shot is the recorded outcome of an attack on one cell.
type Shot string

const (
	Hit  Shot = "hit"
	Miss Shot = "miss"
)

func (s Shot) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// BattleshipRules hides a fleet per player on a square board.
//
// Placement samples a random anchor and orientation up to Attempts times per
// ship, then falls back to choosing among every position that still fits, so
// building a board always terminates.
type BattleshipRules struct {
	Size     int
	Fleet    []ShipClass
	Attempts int

	rng Rand
}

func NewBattleship(rng Rand) *BattleshipRules {
	if rng == nil {
		rng = DefaultRand
	}
	return &BattleshipRules{
		Size:     10,
		Fleet:    DefaultFleet,
		Attempts: 200,
		rng:      rng,
	}
}

func (*BattleshipRules) Variant() Variant { return Battleship }

func (*BattleshipRules) Roles() [2]Role { return [2]Role{"P1", "P2"} }

func (b *BattleshipRules) NewBoard() (Board, error) {
	roles := b.Roles()
	board := &battleshipBoard{
		Boards:  make(map[Role][][]Shot, 2),
		Attacks: make(map[Role][][]bool, 2),
		Ships:   make(map[Role][]Ship, 2),
		roles:   roles,
		size:    b.Size,
	}

	for _, role := range roles {
		ships, err := b.placeFleet()
		if err != nil {
			return nil, fmt.Errorf("placing fleet for %s: %w", role, err)
		}
		board.Ships[role] = ships

		shots := make([][]Shot, b.Size)
		attacks := make([][]bool, b.Size)
		for r := range b.Size {
			shots[r] = make([]Shot, b.Size)
			attacks[r] = make([]bool, b.Size)
		}
		board.Boards[role] = shots
		board.Attacks[role] = attacks
	}

	return board, nil
}

type placement struct {
	row, col   int
	horizontal bool
}

func (b *BattleshipRules) placeFleet() ([]Ship, error) {
	occupied := make([][]bool, b.Size)
	for r := range occupied {
		occupied[r] = make([]bool, b.Size)
	}

	ships := make([]Ship, 0, len(b.Fleet))
	for _, class := range b.Fleet {
		p, ok := b.samplePlacement(occupied, class.Size)
		if !ok {
			candidates := b.fittingPlacements(occupied, class.Size)
			if len(candidates) == 0 {
				return nil, fmt.Errorf("%w: %s (%d)", ErrNoPlacement, class.Name, class.Size)
			}
			p = candidates[b.rng.IntN(len(candidates))]
		}

		ship := Ship{Name: class.Name, Size: class.Size, Positions: make([][2]int, 0, class.Size)}
		for i := range class.Size {
			r, c := p.row, p.col
			if p.horizontal {
				c += i
			} else {
				r += i
			}
			occupied[r][c] = true
			ship.Positions = append(ship.Positions, [2]int{r, c})
		}
		ships = append(ships, ship)
	}

	return ships, nil
}

func (b *BattleshipRules) samplePlacement(occupied [][]bool, size int) (placement, bool) {
	for range b.Attempts {
		p := placement{
			horizontal: b.rng.IntN(2) == 0,
			row:        b.rng.IntN(b.Size),
			col:        b.rng.IntN(b.Size),
		}
		if fits(occupied, p, size) {
			return p, true
		}
	}
	return placement{}, false
}

func (b *BattleshipRules) fittingPlacements(occupied [][]bool, size int) []placement {
	var out []placement
	for r := range b.Size {
		for c := range b.Size {
			for _, horizontal := range []bool{true, false} {
				p := placement{row: r, col: c, horizontal: horizontal}
				if fits(occupied, p, size) {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

func fits(occupied [][]bool, p placement, size int) bool {
	n := len(occupied)
	if p.horizontal && p.col+size > n {
		return false
	}
	if !p.horizontal && p.row+size > n {
		return false
	}
	for i := range size {
		r, c := p.row, p.col
		if p.horizontal {
			c += i
		} else {
			r += i
		}
		if occupied[r][c] {
			return false
		}
	}
	return true
}

// battleshipBoard keys everything by the role that owns the ships. Attacks[r]
// is the record of shots fired at r's fleet, and Boards[r] holds their
// outcomes.
type battleshipBoard struct {
	Boards  map[Role][][]Shot
	Attacks map[Role][][]bool
	Ships   map[Role][]Ship

	roles [2]Role
	size  int
}

func (b *battleshipBoard) opponent(role Role) Role {
	if role == b.roles[0] {
		return b.roles[1]
	}
	return b.roles[0]
}

func (b *battleshipBoard) Legal(m Move, role Role) bool {
	row, col, ok := m.Point()
	if !ok || row < 0 || row >= b.size || col < 0 || col >= b.size {
		return false
	}
	return !b.Attacks[b.opponent(role)][row][col]
}

func (b *battleshipBoard) Apply(m Move, role Role) string {
	row, col, _ := m.Point()
	target := b.opponent(role)

	b.Attacks[target][row][col] = true

	var hit *Ship
	for i := range b.Ships[target] {
		if b.Ships[target][i].occupies(row, col) {
			hit = &b.Ships[target][i]
			break
		}
	}

	if hit == nil {
		b.Boards[target][row][col] = Miss
		return fmt.Sprintf("%s fired at (%d, %d) and missed.", role, row, col)
	}

	b.Boards[target][row][col] = Hit
	if sunk(*hit, b.Attacks[target]) {
		return fmt.Sprintf("%s fired at (%d, %d) and sank %s's %s.", role, row, col, target, hit.Name)
	}
	return fmt.Sprintf("%s fired at (%d, %d) and hit.", role, row, col)
}

func sunk(s Ship, attacks [][]bool) bool {
	for _, p := range s.Positions {
		if !attacks[p[0]][p[1]] {
			return false
		}
	}
	return true
}

func (b *battleshipBoard) fleetSunk(role Role) bool {
	for _, s := range b.Ships[role] {
		if !sunk(s, b.Attacks[role]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes what both players may see: shot outcomes, the attack
// record and ships already sunk. Afloat ships never leave the server.
func (b *battleshipBoard) MarshalJSON() ([]byte, error) {
	sunkShips := make(map[Role][]Ship, len(b.roles))
	for _, role := range b.roles {
		sunkShips[role] = b.sunkShips(role)
	}

	return json.Marshal(struct {
		Boards  map[Role][][]Shot `json:"boards"`
		Attacks map[Role][][]bool `json:"attacks"`
		Sunk    map[Role][]Ship   `json:"sunk"`
	}{b.Boards, b.Attacks, sunkShips})
}

func (b *battleshipBoard) sunkShips(role Role) []Ship {
	out := []Ship{}
	for _, s := range b.Ships[role] {
		if sunk(s, b.Attacks[role]) {
			out = append(out, s)
		}
	}
	return out
}

func (b *battleshipBoard) Evaluate() Result {
	for _, role := range b.roles {
		if b.fleetSunk(role) {
			return win(b.opponent(role))
		}
	}
	return Result{}
}
