/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package rooms seats pairs of players in rooms and referees their matches.
//
// A room moves through four states:
//
//	WaitingForPlayers -> InProgress -> Finished -> Reclaimed
//
// A finished room is reclaimed after FinishGrace. A room whose last player
// leaves is reclaimed after EmptyGrace unless someone has joined by then.
// Reclamation always re-checks the room when the timer fires, so a rejoin
// during the grace window keeps the match alive.
package rooms

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Seednode/versus/games"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFinishGrace = 30 * time.Second
	DefaultEmptyGrace  = 60 * time.Second

	minSweepInterval = time.Millisecond
)

type Config struct {
	// FinishGrace is how long a finished room lingers so clients can show
	// the result.
	FinishGrace time.Duration
	// EmptyGrace is how long an empty room waits for someone to rejoin.
	EmptyGrace time.Duration
	// IdleTimeout reclaims rooms nobody has touched for this long, seated or
	// not. Zero disables the sweep.
	IdleTimeout time.Duration

	Rand   games.Rand
	Logger logrus.FieldLogger

	// OnReclaim is called, outside any lock, with the id of every reclaimed
	// room and the connections still seated in it.
	OnReclaim func(roomID string, members []string)
}

type Coordinator struct {
	cfg      Config
	registry *Registry
	log      logrus.FieldLogger

	done     chan struct{}
	stopOnce sync.Once
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.FinishGrace <= 0 {
		cfg.FinishGrace = DefaultFinishGrace
	}
	if cfg.EmptyGrace <= 0 {
		cfg.EmptyGrace = DefaultEmptyGrace
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}

	c := &Coordinator{
		cfg:      cfg,
		registry: NewRegistry(cfg.Rand),
		log:      cfg.Logger,
		done:     make(chan struct{}),
	}

	if cfg.IdleTimeout > 0 {
		go c.sweepLoop()
	}

	return c
}

// Close stops the idle sweep. Pending reclaim timers still fire.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}

type JoinResult struct {
	RoomID  string
	Variant games.Variant
	Role    games.Role
	Count   int
	Turn    games.Role
	Status  Status
	Created bool
	// Members are the seated connections, the joiner included.
	Members []string
}

// Join seats connID in roomID, creating the room with variant if it does not
// exist. It fails with ErrRoomFull when both seats are taken, or with
// games.ErrUnknownVariant when a new room would need an unknown game.
// Joining a room the connection already sits in returns its existing seat.
func (c *Coordinator) Join(roomID string, variant games.Variant, connID string) (JoinResult, error) {
	for {
		room, created, err := c.registry.GetOrCreate(roomID, variant)
		if err != nil {
			return JoinResult{}, err
		}

		room.mu.Lock()
		if room.status == Reclaimed {
			// Lost a race with reclamation; the id is free again.
			room.mu.Unlock()
			continue
		}

		res, err := c.joinLocked(room, connID)
		res.Created = created
		room.mu.Unlock()

		return res, err
	}
}

func (c *Coordinator) joinLocked(room *Room, connID string) (JoinResult, error) {
	log := c.log.WithFields(logrus.Fields{
		"room_id": room.id,
		"variant": room.Variant(),
		"conn_id": connID,
	})

	seat := room.seatOfLocked(connID)
	if seat < 0 {
		seat = room.seatOfLocked("")
		if seat < 0 {
			log.Debug("join rejected, room full")
			return JoinResult{}, ErrRoomFull
		}
		room.seats[seat] = connID
	}

	room.touchLocked()
	if room.status != Finished {
		room.stopReclaimLocked()
	}
	if room.status == WaitingForPlayers && room.countLocked() == len(room.seats) {
		room.status = InProgress
		log.Info("match started")
	}

	role := room.rules.Roles()[seat]
	log.WithField("role", role).Info("player joined")

	return JoinResult{
		RoomID:  room.id,
		Variant: room.Variant(),
		Role:    role,
		Count:   room.countLocked(),
		Turn:    room.turn,
		Status:  room.status,
		Members: room.membersLocked(),
	}, nil
}

type MoveResult struct {
	RoomID string
	Move   games.Move
	Role   games.Role
	State  json.RawMessage
	Turn   games.Role
	Result games.Result
	Effect string
	// Members are the seated connections to notify.
	Members []string
}

// Move applies m for role in roomID. Rejections leave the room untouched
// and return ErrUnknownRoom, ErrRoomNotReady, ErrOutOfTurn or
// ErrIllegalMove.
func (c *Coordinator) Move(roomID string, m games.Move, role games.Role) (MoveResult, error) {
	room, ok := c.registry.Get(roomID)
	if !ok {
		return MoveResult{}, ErrUnknownRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch {
	case room.status == Reclaimed:
		return MoveResult{}, ErrUnknownRoom
	case room.status != InProgress || room.countLocked() != len(room.seats):
		return MoveResult{}, ErrRoomNotReady
	case role != room.turn:
		return MoveResult{}, ErrOutOfTurn
	case !room.board.Legal(m, role):
		return MoveResult{}, ErrIllegalMove
	}

	effect := room.board.Apply(m, role)
	result := room.board.Evaluate()
	room.touchLocked()

	log := c.log.WithFields(logrus.Fields{
		"room_id": room.id,
		"variant": room.Variant(),
		"role":    role,
		"move":    m.String(),
	})

	if result.GameOver {
		room.status = Finished
		room.result = result
		c.scheduleReclaimLocked(room, c.cfg.FinishGrace)
		log.WithFields(logrus.Fields{
			"winner": result.Winner,
			"draw":   result.Draw,
		}).Info("match finished")
	} else {
		room.turn = games.Opponent(room.rules, role)
		log.Debug("move applied")
	}

	state, err := json.Marshal(room.board)
	if err != nil {
		return MoveResult{}, fmt.Errorf("encoding %s state: %w", room.Variant(), err)
	}

	return MoveResult{
		RoomID:  room.id,
		Move:    m,
		Role:    role,
		State:   state,
		Turn:    room.turn,
		Result:  result,
		Effect:  effect,
		Members: room.membersLocked(),
	}, nil
}

type Departure struct {
	RoomID string
	Role   games.Role
	Count  int
	// Remaining are the connections still seated.
	Remaining []string
}

// Disconnect unseats connID from every room it sits in. Turn, state and the
// other player's seat are left alone. Unknown connections are a no-op.
func (c *Coordinator) Disconnect(connID string) []Departure {
	var out []Departure

	for _, room := range c.registry.list() {
		room.mu.Lock()

		seat := room.seatOfLocked(connID)
		if seat < 0 || room.status == Reclaimed {
			room.mu.Unlock()
			continue
		}

		room.seats[seat] = ""
		room.touchLocked()

		count := room.countLocked()
		if count == 0 && room.status != Finished {
			c.scheduleReclaimLocked(room, c.cfg.EmptyGrace)
		}

		role := room.rules.Roles()[seat]
		c.log.WithFields(logrus.Fields{
			"room_id": room.id,
			"conn_id": connID,
			"role":    role,
		}).Info("player left")

		out = append(out, Departure{
			RoomID:    room.id,
			Role:      role,
			Count:     count,
			Remaining: room.membersLocked(),
		})

		room.mu.Unlock()
	}

	return out
}

// Room returns a snapshot of roomID.
func (c *Coordinator) Room(roomID string) (Snapshot, bool) {
	room, ok := c.registry.Get(roomID)
	if !ok {
		return Snapshot{}, false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.status == Reclaimed {
		return Snapshot{}, false
	}

	snap, err := room.snapshotLocked()
	if err != nil {
		c.log.WithError(err).WithField("room_id", roomID).Error("encoding room state")
		return Snapshot{}, false
	}
	return snap, true
}

func (c *Coordinator) Exists(roomID string) bool {
	_, ok := c.registry.Get(roomID)
	return ok
}

func (c *Coordinator) Len() int {
	return c.registry.Len()
}

func (c *Coordinator) scheduleReclaimLocked(room *Room, d time.Duration) {
	room.stopReclaimLocked()
	room.reclaim = time.AfterFunc(d, func() { c.reclaim(room) })
}

// reclaim runs when a grace timer fires. A room that is not finished and has
// gained a player since the timer was set is kept.
func (c *Coordinator) reclaim(room *Room) {
	room.mu.Lock()

	if room.status == Reclaimed {
		room.mu.Unlock()
		return
	}
	if room.status != Finished && room.countLocked() > 0 {
		room.reclaim = nil
		room.mu.Unlock()
		c.log.WithField("room_id", room.id).Debug("reclaim skipped, room reoccupied")
		return
	}

	members := c.reclaimLocked(room, "grace period elapsed")
	room.mu.Unlock()

	c.notifyReclaimed(room.id, members)
}

func (c *Coordinator) reclaimLocked(room *Room, reason string) []string {
	members := room.membersLocked()

	room.status = Reclaimed
	room.stopReclaimLocked()
	c.registry.removeRoom(room)

	c.log.WithFields(logrus.Fields{
		"room_id": room.id,
		"variant": room.Variant(),
		"reason":  reason,
	}).Info("room reclaimed")

	return members
}

func (c *Coordinator) notifyReclaimed(roomID string, members []string) {
	if c.cfg.OnReclaim != nil {
		c.cfg.OnReclaim(roomID, members)
	}
}

// sweepLoop periodically reclaims rooms idle longer than IdleTimeout.
func (c *Coordinator) sweepLoop() {
	ticker := time.NewTicker(max(c.cfg.IdleTimeout/2, minSweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep(time.Now().Add(-c.cfg.IdleTimeout))
		}
	}
}

func (c *Coordinator) sweep(cutoff time.Time) {
	for _, room := range c.registry.list() {
		room.mu.Lock()
		if room.status == Reclaimed || !room.lastActive.Before(cutoff) {
			room.mu.Unlock()
			continue
		}
		members := c.reclaimLocked(room, "idle")
		room.mu.Unlock()

		c.notifyReclaimed(room.id, members)
	}
}
