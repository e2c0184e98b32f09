/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rooms

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Seednode/versus/games"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRand int

func (f fixedRand) IntN(n int) int { return int(f) % n }

func newTestCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	if cfg.FinishGrace == 0 {
		cfg.FinishGrace = time.Hour
	}
	if cfg.EmptyGrace == 0 {
		cfg.EmptyGrace = time.Hour
	}
	c := NewCoordinator(cfg)
	t.Cleanup(c.Close)
	return c
}

func seat(t *testing.T, c *Coordinator, roomID string, v games.Variant, conns ...string) {
	t.Helper()
	for _, conn := range conns {
		_, err := c.Join(roomID, v, conn)
		require.NoError(t, err)
	}
}

func TestJoinAssignsRolesInOrder(t *testing.T) {
	c := newTestCoordinator(t, Config{})

	first, err := c.Join("abc", games.TicTacToe, "conn-1")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, games.Role("X"), first.Role)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, games.Role("X"), first.Turn)
	assert.Equal(t, WaitingForPlayers, first.Status)

	second, err := c.Join("abc", games.TicTacToe, "conn-2")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, games.Role("O"), second.Role)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, InProgress, second.Status)
	assert.Equal(t, []string{"conn-1", "conn-2"}, second.Members)

	_, err = c.Join("abc", games.TicTacToe, "conn-3")
	assert.ErrorIs(t, err, ErrRoomFull)

	snap, ok := c.Room("abc")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, []string{"conn-1", "conn-2"}, snap.Members)
}

func TestJoinVariantFixedAtCreation(t *testing.T) {
	c := newTestCoordinator(t, Config{})

	seat(t, c, "room", games.ConnectFour, "a")
	res, err := c.Join("room", games.TankBattle, "b")
	require.NoError(t, err)

	assert.Equal(t, games.ConnectFour, res.Variant)
	assert.Equal(t, games.Role("Y"), res.Role)
}

func TestJoinUnknownVariant(t *testing.T) {
	c := newTestCoordinator(t, Config{})

	_, err := c.Join("room", "poker", "a")
	assert.ErrorIs(t, err, games.ErrUnknownVariant)
	assert.False(t, c.Exists("room"))
}

func TestJoinTwiceKeepsSeat(t *testing.T) {
	c := newTestCoordinator(t, Config{})

	seat(t, c, "room", games.TicTacToe, "a")
	res, err := c.Join("room", games.TicTacToe, "a")
	require.NoError(t, err)
	assert.Equal(t, games.Role("X"), res.Role)
	assert.Equal(t, 1, res.Count)
}

func TestMoveRejections(t *testing.T) {
	c := newTestCoordinator(t, Config{})

	_, err := c.Move("nowhere", games.At(0), "X")
	assert.ErrorIs(t, err, ErrUnknownRoom)

	seat(t, c, "room", games.TicTacToe, "a")
	_, err = c.Move("room", games.At(0), "X")
	assert.ErrorIs(t, err, ErrRoomNotReady)

	seat(t, c, "room", games.TicTacToe, "b")
	_, err = c.Move("room", games.At(0), "O")
	assert.ErrorIs(t, err, ErrOutOfTurn)

	_, err = c.Move("room", games.At(9), "X")
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = c.Move("room", games.Do(games.Attack), "X")
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestOutOfTurnNeverMutates(t *testing.T) {
	for _, v := range games.Variants() {
		t.Run(string(v), func(t *testing.T) {
			c := newTestCoordinator(t, Config{Rand: fixedRand(3)})
			seat(t, c, "room", v, "a", "b")

			before, ok := c.Room("room")
			require.True(t, ok)

			rules, err := games.Lookup(v, nil)
			require.NoError(t, err)
			second := rules.Roles()[1]

			for _, m := range []games.Move{games.At(0), games.Point(0, 0), games.Do(games.Attack)} {
				_, err := c.Move("room", m, second)
				assert.ErrorIs(t, err, ErrOutOfTurn)
			}

			after, ok := c.Room("room")
			require.True(t, ok)
			assert.Equal(t, before.Turn, after.Turn)
			assert.JSONEq(t, string(before.State), string(after.State))
		})
	}
}

func TestTurnAlternates(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	seat(t, c, "room", games.TicTacToe, "a", "b")

	res, err := c.Move("room", games.At(4), "X")
	require.NoError(t, err)
	assert.Equal(t, games.Role("O"), res.Turn)
	assert.Equal(t, games.Role("X"), res.Role)
	assert.False(t, res.Result.GameOver)
	assert.Equal(t, []string{"a", "b"}, res.Members)

	_, err = c.Move("room", games.At(4), "O")
	assert.ErrorIs(t, err, ErrIllegalMove)

	snap, _ := c.Room("room")
	assert.Equal(t, games.Role("O"), snap.Turn, "rejected move must not advance the turn")

	res, err = c.Move("room", games.At(0), "O")
	require.NoError(t, err)
	assert.Equal(t, games.Role("X"), res.Turn)
}

func TestTicTacToeWinFinishesRoom(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	seat(t, c, "room", games.TicTacToe, "a", "b")

	moves := []struct {
		cell int
		role games.Role
	}{{0, "X"}, {3, "O"}, {1, "X"}, {4, "O"}, {2, "X"}}

	var res MoveResult
	for _, m := range moves {
		var err error
		res, err = c.Move("room", games.At(m.cell), m.role)
		require.NoError(t, err)
	}

	assert.Equal(t, games.Result{GameOver: true, Winner: "X"}, res.Result)
	assert.Equal(t, games.Role("X"), res.Turn, "turn freezes on the winning move")
	assert.JSONEq(t, `["X","X","X","O","O",null,null,null,null]`, string(res.State))

	snap, ok := c.Room("room")
	require.True(t, ok)
	assert.Equal(t, Finished, snap.Status)

	_, err := c.Move("room", games.At(5), "O")
	assert.ErrorIs(t, err, ErrRoomNotReady)
}

func TestConnectFourColumnOverflow(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	seat(t, c, "room", games.ConnectFour, "a", "b")

	roles := []games.Role{"R", "Y"}
	var res MoveResult
	for i := range 6 {
		var err error
		res, err = c.Move("room", games.At(0), roles[i%2])
		require.NoError(t, err, "move %d", i)
	}

	var grid [][]*string
	require.NoError(t, json.Unmarshal(res.State, &grid))
	for i := range 6 {
		require.NotNil(t, grid[5-i][0])
		assert.Equal(t, string(roles[i%2]), *grid[5-i][0])
	}

	_, err := c.Move("room", games.At(0), "R")
	assert.ErrorIs(t, err, ErrIllegalMove)
	_, err = c.Move("room", games.At(0), "R")
	assert.ErrorIs(t, err, ErrIllegalMove)

	snap, _ := c.Room("room")
	assert.Equal(t, games.Role("R"), snap.Turn)
}

func TestTankBattleDefendThenAttack(t *testing.T) {
	for roll := range 11 {
		c := newTestCoordinator(t, Config{Rand: fixedRand(roll)})
		seat(t, c, "room", games.TankBattle, "a", "b")

		_, err := c.Move("room", games.Do(games.Defend), "P1")
		require.NoError(t, err)
		res, err := c.Move("room", games.Do(games.Attack), "P2")
		require.NoError(t, err)

		var state struct {
			HP     map[string]int  `json:"hp"`
			Shield map[string]bool `json:"shield"`
		}
		require.NoError(t, json.Unmarshal(res.State, &state))

		rolled := 10 + roll
		assert.Equal(t, 100-(rolled+1)/2, state.HP["P1"])
		assert.False(t, state.Shield["P1"])
		assert.Equal(t, fmt.Sprintf("P2 attacked P1 for %d damage (shielded).", (rolled+1)/2), res.Effect)
	}
}

func TestBattleshipMoveIsAuthoritative(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	seat(t, c, "room", games.Battleship, "a", "b")

	res, err := c.Move("room", games.Point(2, 3), "P1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Effect)

	var state struct {
		Attacks map[string][][]bool `json:"attacks"`
	}
	require.NoError(t, json.Unmarshal(res.State, &state))
	assert.True(t, state.Attacks["P2"][2][3])
	assert.False(t, state.Attacks["P1"][2][3])

	_, err = c.Move("room", games.Point(-1, 3), "P2")
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestDisconnectKeepsRoomState(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	seat(t, c, "room", games.TicTacToe, "a", "b")

	_, err := c.Move("room", games.At(0), "X")
	require.NoError(t, err)

	deps := c.Disconnect("a")
	require.Len(t, deps, 1)
	assert.Equal(t, Departure{RoomID: "room", Role: "X", Count: 1, Remaining: []string{"b"}}, deps[0])

	snap, ok := c.Room("room")
	require.True(t, ok)
	assert.Equal(t, games.Role("O"), snap.Turn)
	assert.Equal(t, InProgress, snap.Status)

	_, err = c.Move("room", games.At(1), "O")
	assert.ErrorIs(t, err, ErrRoomNotReady)

	assert.Empty(t, c.Disconnect("nobody"))
}

func TestRejoinTakesVacatedSeat(t *testing.T) {
	c := newTestCoordinator(t, Config{EmptyGrace: 30 * time.Millisecond})
	seat(t, c, "room", games.TicTacToe, "a", "b")

	c.Disconnect("a")
	res, err := c.Join("room", games.TicTacToe, "c")
	require.NoError(t, err)
	assert.Equal(t, games.Role("X"), res.Role, "new player sits in the vacated first seat")
	assert.Equal(t, []string{"c", "b"}, res.Members)

	_, err = c.Move("room", games.At(0), "X")
	require.NoError(t, err)
}

func TestEmptyRoomSurvivesQuickRejoin(t *testing.T) {
	var reclaimed atomic.Int32
	c := newTestCoordinator(t, Config{
		EmptyGrace: 50 * time.Millisecond,
		OnReclaim:  func(string, []string) { reclaimed.Add(1) },
	})
	seat(t, c, "room", games.TicTacToe, "a")

	c.Disconnect("a")
	_, err := c.Join("room", games.TicTacToe, "b")
	require.NoError(t, err)

	assert.Never(t, func() bool { return !c.Exists("room") }, 150*time.Millisecond, 10*time.Millisecond)
	assert.Zero(t, reclaimed.Load())

	snap, ok := c.Room("room")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Count)
}

func TestEmptyRoomReclaimedAfterGrace(t *testing.T) {
	var mu sync.Mutex
	var got []string
	c := newTestCoordinator(t, Config{
		EmptyGrace: 20 * time.Millisecond,
		OnReclaim: func(id string, members []string) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, id)
			assert.Empty(t, members)
		},
	})
	seat(t, c, "room", games.ConnectFour, "a", "b")

	c.Disconnect("a")
	assert.True(t, c.Exists("room"), "one player left, nothing scheduled")
	c.Disconnect("b")
	assert.True(t, c.Exists("room"), "removal is never synchronous")

	assert.Eventually(t, func() bool { return !c.Exists("room") }, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"room"}, got)
	mu.Unlock()

	res, err := c.Join("room", games.TankBattle, "c")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, games.TankBattle, res.Variant)
}

func TestFinishedRoomReclaimed(t *testing.T) {
	members := make(chan []string, 1)
	c := newTestCoordinator(t, Config{
		FinishGrace: 20 * time.Millisecond,
		OnReclaim:   func(_ string, m []string) { members <- m },
	})
	seat(t, c, "room", games.TicTacToe, "a", "b")

	for i, cell := range []int{0, 3, 1, 4, 2} {
		role := games.Role("X")
		if i%2 == 1 {
			role = "O"
		}
		_, err := c.Move("room", games.At(cell), role)
		require.NoError(t, err)
	}

	select {
	case m := <-members:
		assert.Equal(t, []string{"a", "b"}, m)
	case <-time.After(time.Second):
		t.Fatal("finished room was not reclaimed")
	}
	assert.False(t, c.Exists("room"))

	_, err := c.Move("room", games.At(5), "O")
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestIdleSweep(t *testing.T) {
	c := newTestCoordinator(t, Config{IdleTimeout: 20 * time.Millisecond})
	seat(t, c, "room", games.Battleship, "a")

	assert.Eventually(t, func() bool { return !c.Exists("room") }, time.Second, 5*time.Millisecond)
	assert.Empty(t, c.Disconnect("a"))
}

func TestIdleSweepTinyTimeout(t *testing.T) {
	c := newTestCoordinator(t, Config{IdleTimeout: time.Nanosecond})
	seat(t, c, "room", games.TicTacToe, "a")

	assert.Eventually(t, func() bool { return !c.Exists("room") }, time.Second, 5*time.Millisecond)
}

func TestRemoveMarksRoomReclaimed(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	seat(t, c, "room", games.TicTacToe, "a")

	old, ok := c.registry.Get("room")
	require.True(t, ok)

	c.registry.Remove("room")

	old.mu.Lock()
	assert.Equal(t, Reclaimed, old.status)
	old.mu.Unlock()

	res, err := c.Join("room", games.ConnectFour, "b")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, games.ConnectFour, res.Variant)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, games.Role("R"), res.Role)

	fresh, ok := c.registry.Get("room")
	require.True(t, ok)
	assert.NotSame(t, old, fresh)

	_, err = c.Move("room", games.At(0), "X")
	assert.ErrorIs(t, err, ErrRoomNotReady)
}

func TestStaleReclaimSparesNewRoom(t *testing.T) {
	reg := NewRegistry(nil)

	old, created, err := reg.GetOrCreate("room", games.TicTacToe)
	require.NoError(t, err)
	require.True(t, created)

	reg.Remove("room")
	fresh, created, err := reg.GetOrCreate("room", games.TicTacToe)
	require.NoError(t, err)
	require.True(t, created)

	assert.False(t, reg.removeRoom(old))
	got, ok := reg.Get("room")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestConcurrentJoinsAdmitTwo(t *testing.T) {
	c := newTestCoordinator(t, Config{})

	var wg sync.WaitGroup
	var admitted, full atomic.Int32
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Join("room", games.TicTacToe, fmt.Sprintf("conn-%d", i))
			switch {
			case err == nil:
				admitted.Add(1)
			case assert.ErrorIs(t, err, ErrRoomFull):
				full.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, admitted.Load())
	assert.EqualValues(t, 30, full.Load())
}

func TestConcurrentMovesAcceptOne(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	seat(t, c, "room", games.TicTacToe, "a", "b")

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for cell := range 9 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Move("room", games.At(cell), "X"); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, accepted.Load())
	snap, _ := c.Room("room")
	assert.Equal(t, games.Role("O"), snap.Turn)
}
