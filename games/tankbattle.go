/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import "fmt"

// TankBattleRules is a duel of attack, defend and heal actions.
//
// Attacks roll damage uniformly in [MinDamage, MaxDamage]. A defending tank
// takes half the rolled damage, rounded up, and its shield is spent.
type TankBattleRules struct {
	MaxHP     int
	MinDamage int
	MaxDamage int
	HealBy    int

	rng Rand
}

func NewTankBattle(rng Rand) *TankBattleRules {
	if rng == nil {
		rng = DefaultRand
	}
	return &TankBattleRules{
		MaxHP:     100,
		MinDamage: 10,
		MaxDamage: 20,
		HealBy:    10,
		rng:       rng,
	}
}

func (*TankBattleRules) Variant() Variant { return TankBattle }

func (*TankBattleRules) Roles() [2]Role { return [2]Role{"P1", "P2"} }

func (t *TankBattleRules) NewBoard() (Board, error) {
	b := &tankBoard{
		HP:         make(map[Role]int, 2),
		Shield:     make(map[Role]bool, 2),
		LastAction: make(map[Role]Action, 2),
		rules:      t,
	}
	for _, role := range t.Roles() {
		b.HP[role] = t.MaxHP
		b.Shield[role] = false
		b.LastAction[role] = ""
	}
	return b, nil
}

type tankBoard struct {
	HP         map[Role]int    `json:"hp"`
	Shield     map[Role]bool   `json:"shield"`
	LastAction map[Role]Action `json:"lastAction"`

	rules *TankBattleRules
}

func (b *tankBoard) Legal(m Move, _ Role) bool {
	a, ok := m.Action()
	if !ok {
		return false
	}
	switch a {
	case Attack, Defend, Heal:
		return true
	}
	return false
}

func (b *tankBoard) Apply(m Move, role Role) string {
	a, _ := m.Action()
	opp := Opponent(b.rules, role)

	switch a {
	case Attack:
		dmg := b.rules.MinDamage + b.rules.rng.IntN(b.rules.MaxDamage-b.rules.MinDamage+1)
		shielded := b.Shield[opp]
		if shielded {
			dmg = (dmg + 1) / 2
			b.Shield[opp] = false
		}
		b.HP[opp] = max(0, b.HP[opp]-dmg)
		b.LastAction[role] = Attack

		if shielded {
			return fmt.Sprintf("%s attacked %s for %d damage (shielded).", role, opp, dmg)
		}
		return fmt.Sprintf("%s attacked %s for %d damage.", role, opp, dmg)

	case Defend:
		b.Shield[role] = true
		b.LastAction[role] = Defend
		return fmt.Sprintf("%s is defending (next incoming attack halved).", role)

	case Heal:
		before := b.HP[role]
		after := min(b.rules.MaxHP, before+b.rules.HealBy)
		b.HP[role] = after
		b.LastAction[role] = Heal
		return fmt.Sprintf("%s healed %d HP (now %d).", role, after-before, after)
	}

	return ""
}

func (b *tankBoard) Evaluate() Result {
	roles := b.rules.Roles()
	firstDead := b.HP[roles[0]] <= 0
	secondDead := b.HP[roles[1]] <= 0

	switch {
	case firstDead && secondDead:
		return draw
	case firstDead:
		return win(roles[1])
	case secondDead:
		return win(roles[0])
	}
	return Result{}
}
