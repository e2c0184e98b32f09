/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package games holds the rules for every two-player game versus can referee.
//
// Each game is a Rules value that knows its two roles and how to build a
// fresh Board. A Board owns the whole state of one match and answers three
// questions: is this move legal for this role, what happens when it is
// applied, and is the match over. Boards never check whose turn it is; that
// is the caller's job.
//
// Games:
//   - tictactoe:   3x3 grid, X moves first, three in a row wins
//   - connectfour: 6x7 grid with gravity, R moves first, four in a row wins
//   - battleship:  10x10 hidden fleets placed at random, P1 fires first
//   - tankbattle:  attack/defend/heal duel from 100 HP, P1 acts first
package games

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
)

var (
	ErrUnknownVariant = errors.New("unknown game type")
	ErrNoPlacement    = errors.New("no room on board for fleet")
	ErrBadMove        = errors.New("malformed move")
)

type Variant string

const (
	TicTacToe   Variant = "tictactoe"
	ConnectFour Variant = "connectfour"
	Battleship  Variant = "battleship"
	TankBattle  Variant = "tankbattle"
)

// Variants lists every supported game in display order.
func Variants() []Variant {
	return []Variant{TicTacToe, ConnectFour, Battleship, TankBattle}
}

func (v Variant) Title() string {
	switch v {
	case TicTacToe:
		return "Tic-Tac-Toe"
	case ConnectFour:
		return "Connect Four"
	case Battleship:
		return "Battleship"
	case TankBattle:
		return "Tank Battle"
	}
	return string(v)
}

// Role is the mark or seat label a participant plays as.
// The zero value means "nobody" and encodes as JSON null.
type Role string

func (r Role) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// Action is a tank battle command.
type Action string

const (
	Attack Action = "attack"
	Defend Action = "defend"
	Heal   Action = "heal"
)

func (a Action) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

// Result describes whether a match has ended and how.
type Result struct {
	GameOver bool `json:"gameOver"`
	Winner   Role `json:"winner"`
	Draw     bool `json:"draw"`
}

func win(r Role) Result { return Result{GameOver: true, Winner: r} }

var draw = Result{GameOver: true, Draw: true}

// Rand is the source of randomness for fleet placement and damage rolls.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type randFunc func(int) int

func (f randFunc) IntN(n int) int { return f(n) }

// DefaultRand draws from the process-wide math/rand/v2 source, which is safe
// for concurrent use.
var DefaultRand Rand = randFunc(rand.IntN)

// Board is the mutable state of one match.
type Board interface {
	// Legal reports whether role may make m against the current state.
	Legal(m Move, role Role) bool
	// Apply mutates the board and returns a human-readable effect summary,
	// which may be empty. Apply must only be called after Legal.
	Apply(m Move, role Role) string
	Evaluate() Result
}

// Rules builds boards for one game.
type Rules interface {
	Variant() Variant
	// Roles returns the primary and secondary roles; the primary moves first.
	Roles() [2]Role
	NewBoard() (Board, error)
}

// Opponent returns the role facing role under rules.
func Opponent(rules Rules, role Role) Role {
	roles := rules.Roles()
	if role == roles[0] {
		return roles[1]
	}
	return roles[0]
}

// Lookup returns the rules for v. A nil rng selects DefaultRand.
func Lookup(v Variant, rng Rand) (Rules, error) {
	if rng == nil {
		rng = DefaultRand
	}

	switch v {
	case TicTacToe:
		return NewTicTacToe(), nil
	case ConnectFour:
		return NewConnectFour(), nil
	case Battleship:
		return NewBattleship(rng), nil
	case TankBattle:
		return NewTankBattle(rng), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
}

type moveKind uint8

const (
	moveNone moveKind = iota
	moveIndex
	movePoint
	moveAction
)

// Move is a single game command. On the wire it is a bare number (a cell or
// a column), a [row, col] pair, or an action string, and it encodes back to
// the same form.
type Move struct {
	kind   moveKind
	index  int
	row    int
	col    int
	action Action
}

// At is a cell index (tic-tac-toe) or column (connect four).
func At(i int) Move { return Move{kind: moveIndex, index: i} }

// Point is a battleship target.
func Point(row, col int) Move { return Move{kind: movePoint, row: row, col: col} }

// Do is a tank battle action.
func Do(a Action) Move { return Move{kind: moveAction, action: a} }

func (m Move) Index() (int, bool) { return m.index, m.kind == moveIndex }

func (m Move) Point() (int, int, bool) { return m.row, m.col, m.kind == movePoint }

func (m Move) Action() (Action, bool) { return m.action, m.kind == moveAction }

func (m Move) String() string {
	switch m.kind {
	case moveIndex:
		return strconv.Itoa(m.index)
	case movePoint:
		return fmt.Sprintf("(%d, %d)", m.row, m.col)
	case moveAction:
		return string(m.action)
	}
	return "<none>"
}

func (m Move) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case moveIndex:
		return json.Marshal(m.index)
	case movePoint:
		return json.Marshal([2]int{m.row, m.col})
	case moveAction:
		return json.Marshal(string(m.action))
	}
	return []byte("null"), nil
}

func (m *Move) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrBadMove
	}

	switch data[0] {
	case 'n':
		*m = Move{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrBadMove, err)
		}
		*m = Do(Action(s))
	case '[':
		var p [2]int
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrBadMove, err)
		}
		*m = Point(p[0], p[1])
	default:
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return fmt.Errorf("%w: %v", ErrBadMove, err)
		}
		*m = At(i)
	}

	return nil
}
