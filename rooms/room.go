/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rooms

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Seednode/versus/games"
)

var (
	ErrRoomFull     = errors.New("room is full")
	ErrOutOfTurn    = errors.New("not your turn")
	ErrIllegalMove  = errors.New("illegal move")
	ErrRoomNotReady = errors.New("room is not ready for moves")
	ErrUnknownRoom  = errors.New("room not found")
)

type Status uint8

const (
	WaitingForPlayers Status = iota
	InProgress
	Finished
	Reclaimed
)

func (s Status) String() string {
	switch s {
	case WaitingForPlayers:
		return "waiting"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	case Reclaimed:
		return "reclaimed"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Room is one match. All fields are guarded by mu, which is held for the
// whole of every command touching the room.
type Room struct {
	mu sync.Mutex

	id     string
	rules  games.Rules
	board  games.Board
	seats  [2]string
	turn   games.Role
	status Status
	result games.Result

	lastActive time.Time
	reclaim    *time.Timer
}

func newRoom(id string, rules games.Rules, board games.Board) *Room {
	return &Room{
		id:         id,
		rules:      rules,
		board:      board,
		turn:       rules.Roles()[0],
		status:     WaitingForPlayers,
		lastActive: time.Now(),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Variant() games.Variant { return r.rules.Variant() }

func (r *Room) countLocked() int {
	n := 0
	for _, s := range r.seats {
		if s != "" {
			n++
		}
	}
	return n
}

func (r *Room) seatOfLocked(connID string) int {
	for i, s := range r.seats {
		if s == connID {
			return i
		}
	}
	return -1
}

// membersLocked returns the seated connection ids in seat order.
func (r *Room) membersLocked() []string {
	out := make([]string, 0, len(r.seats))
	for _, s := range r.seats {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *Room) touchLocked() {
	r.lastActive = time.Now()
}

func (r *Room) stopReclaimLocked() {
	if r.reclaim != nil {
		r.reclaim.Stop()
		r.reclaim = nil
	}
}

// Snapshot is a point-in-time copy of a room, safe to hand to other
// goroutines.
type Snapshot struct {
	ID      string          `json:"id"`
	Variant games.Variant   `json:"gameType"`
	Status  Status          `json:"status"`
	Count   int             `json:"playerCount"`
	Turn    games.Role      `json:"currentPlayer"`
	Result  games.Result    `json:"gameResult"`
	State   json.RawMessage `json:"gameState"`
	Members []string        `json:"-"`
}

func (r *Room) snapshotLocked() (Snapshot, error) {
	state, err := json.Marshal(r.board)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:      r.id,
		Variant: r.rules.Variant(),
		Status:  r.status,
		Count:   r.countLocked(),
		Turn:    r.turn,
		Result:  r.result,
		State:   state,
		Members: r.membersLocked(),
	}, nil
}
