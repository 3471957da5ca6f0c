package domain

import (
	"math"
	"time"
)

// Cross-validation tolerances. The ledger may be stamped in local time
// (UTC+7) while samples are stamped in UTC, or the reverse, so each pair is
// compared at the raw difference and shifted by the zone offset both ways.
const (
	MatchTempTolerance = 0.1
	MatchTimeTolerance = 2 * time.Minute
	MatchZoneOffset    = 7 * time.Hour
)

// Matches reports whether a local sample corresponds to a ledger entry.
// Unparseable timestamps never match.
func Matches(local SensorSample, entry LedgerEntry) bool {
	return matchAt(local.Temperature, Normalize(local.Timestamp), entry.Temp, Normalize(entry.Timestamp))
}

// MatchPercent returns floor(matched / len(local) * 100), where a local sample
// counts as matched if any ledger entry matches it. Empty input yields 0.
func MatchPercent(local []SensorSample, ledger []LedgerEntry) int {
	if len(local) == 0 {
		return 0
	}

	ledgerMs := make([]int64, len(ledger))
	for i, e := range ledger {
		ledgerMs[i] = Normalize(e.Timestamp)
	}

	matched := 0
	for _, s := range local {
		localMs := Normalize(s.Timestamp)
		for i, e := range ledger {
			if matchAt(s.Temperature, localMs, e.Temp, ledgerMs[i]) {
				matched++
				break
			}
		}
	}
	return matched * 100 / len(local)
}

func matchAt(localTemp float64, localMs int64, entryTemp float64, entryMs int64) bool {
	if math.Abs(localTemp-entryTemp) >= MatchTempTolerance {
		return false
	}
	if localMs == 0 || entryMs == 0 {
		return false
	}

	diff := localMs - entryMs
	tol := MatchTimeTolerance.Milliseconds()
	offset := MatchZoneOffset.Milliseconds()
	for _, d := range []int64{diff, diff + offset, diff - offset} {
		if abs64(d) <= tol {
			return true
		}
	}
	return false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
