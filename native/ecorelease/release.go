package ecorelease

import "math"

// Release schedule constants. Changing any of them alters historical payouts.
const (
	SmallChangeThreshold int64 = 100
	BonusThreshold       int64 = 5000
	BonusMultiplier      int64 = 2
	BonusRoundingOffset  int64 = 50
	BonusDivisor         int64 = 100
)

// ReleaseAmount computes the ecostate change and the tokens it unlocks before
// the supply clamp:
//
//	change < 0            -> 0
//	0 <= change < 100     -> round((new-5000)*2/100) when new > 5000, else 0
//	change >= 100         -> change
func ReleaseAmount(oldEcostate, newEcostate int64) (change int64, release int64, err error) {
	change, ok := checkedSub(newEcostate, oldEcostate)
	if !ok {
		return 0, 0, ErrEcostateOverflow
	}
	switch {
	case change < 0:
		return change, 0, nil
	case change < SmallChangeThreshold:
		if newEcostate <= BonusThreshold {
			return change, 0, nil
		}
		above := newEcostate - BonusThreshold
		if above > (math.MaxInt64-BonusRoundingOffset)/BonusMultiplier {
			return 0, 0, ErrEcostateOverflow
		}
		// Round half up.
		return change, (above*BonusMultiplier + BonusRoundingOffset) / BonusDivisor, nil
	default:
		return change, change, nil
	}
}

// ClampRelease caps release at the unreleased supply.
func ClampRelease(release, remaining int64) int64 {
	if release <= 0 {
		return 0
	}
	if remaining < 0 {
		remaining = 0
	}
	if release > remaining {
		return remaining
	}
	return release
}

// CheckUpdatePreconditions applies the update-ecostate gates in order; the
// first failure wins.
func CheckUpdatePreconditions(state *State, env Env) error {
	switch {
	case !state.IsStarted(env.Height):
		return ErrNotStarted
	case state.IsExpired(env.Height):
		return ErrExpired
	case state.IsLocked:
		return ErrLocked
	case state.IsDone():
		return ErrDone
	case !isOracle(state, env.Signer):
		return ErrUnauthorized
	}
	return nil
}

func checkedSub(a, b int64) (int64, bool) {
	c := a - b
	if (c < a) != (b > 0) {
		return 0, false
	}
	return c, true
}
