package handengine

import "sort"

// Pot is one side pot: an amount and the seats eligible to win it.
type Pot struct {
	Amount   int
	Eligible []int
}

// computeSidePots implements the side-pot law from §8's worked scenario:
// sort the distinct positive TotalBet levels across every seat (folded
// seats' contributions still count toward pot size, just not toward
// eligibility), then for each level the pot's amount is the per-seat
// increment over the previous level times the number of seats (folded or
// not) that reached at least that level, and its eligible set is the
// non-folded seats that reached it.
//
// Grounded on internal/game/pot.go's PotManager.CalculateSidePots, but
// expressed as a pure function of seat contributions rather than a
// stateful accumulator fed bet-by-bet.
func computeSidePots(room Room) []Pot {
	levels := distinctBetLevels(room)
	if len(levels) == 0 {
		return nil
	}

	pots := make([]Pot, 0, len(levels))
	prev := 0
	for _, level := range levels {
		contributors := 0
		var eligible []int
		for i, s := range room.Seats {
			if s.TotalBet >= level {
				contributors++
				if !s.Folded {
					eligible = append(eligible, i)
				}
			}
		}
		amount := (level - prev) * contributors
		prev = level

		if len(eligible) == 0 {
			// No non-folded seat reached this level (every seat that did
			// is folded): fold its amount into the previous pot rather
			// than leaving chips unassigned to any eligible winner.
			if len(pots) > 0 {
				pots[len(pots)-1].Amount += amount
			}
			continue
		}
		pots = append(pots, Pot{Amount: amount, Eligible: eligible})
	}
	return pots
}

func distinctBetLevels(room Room) []int {
	seen := map[int]bool{}
	for _, s := range room.Seats {
		if s.TotalBet > 0 {
			seen[s.TotalBet] = true
		}
	}
	levels := make([]int, 0, len(seen))
	for lvl := range seen {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	return levels
}
