package quality

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"nrlengine/internal/models"
)

func checkDuplicates(season int, matches []models.MatchFact) []string {
	var errs []string
	byID := map[string]int{}
	byRoundHome := map[string]int{}
	byRoundAway := map[string]int{}
	for _, m := range matches {
		byID[m.MatchID]++
		byRoundHome[fmt.Sprintf("%d|%s", m.RoundNum, m.HomeTeam)]++
		byRoundAway[fmt.Sprintf("%d|%s", m.RoundNum, m.AwayTeam)]++
	}
	for _, id := range sortedKeys(byID) {
		if byID[id] > 1 {
			errs = append(errs, fmt.Sprintf("season %d: duplicate match_id %s", season, id))
		}
	}
	for _, key := range sortedKeys(byRoundHome) {
		if byRoundHome[key] > 1 {
			errs = append(errs, fmt.Sprintf("season %d: home team appears twice in round (%s)", season, key))
		}
	}
	for _, key := range sortedKeys(byRoundAway) {
		if byRoundAway[key] > 1 {
			errs = append(errs, fmt.Sprintf("season %d: away team appears twice in round (%s)", season, key))
		}
	}
	return errs
}

func checkHomeAwayDistinct(season int, matches []models.MatchFact) []string {
	var errs []string
	for _, m := range matches {
		if m.HomeTeam == m.AwayTeam {
			errs = append(errs, fmt.Sprintf("season %d: %s has home_team == away_team", season, m.MatchID))
		}
	}
	return errs
}

func checkRoundIntegrity(season int, matches []models.MatchFact, expectedPerRound int) []string {
	var errs []string
	counts := map[int]int{}
	for _, m := range matches {
		counts[m.RoundNum]++
	}
	if len(counts) == 0 {
		return []string{fmt.Sprintf("season %d: no rounds found", season)}
	}
	min, max := -1, -1
	for round := range counts {
		if min == -1 || round < min {
			min = round
		}
		if round > max {
			max = round
		}
	}
	var missing []int
	for round := min; round <= max; round++ {
		if _, ok := counts[round]; !ok {
			missing = append(missing, round)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Sprintf("season %d: missing rounds %v", season, missing))
	}
	rounds := make([]int, 0, len(counts))
	for round := range counts {
		rounds = append(rounds, round)
	}
	sort.Ints(rounds)
	for _, round := range rounds {
		if counts[round] != expectedPerRound {
			errs = append(errs, fmt.Sprintf("season %d round %d: expected %d matches, found %d", season, round, expectedPerRound, counts[round]))
		}
	}
	return errs
}

// Scores must be paired-or-absent, and present scores bounded [0, maxScore].
func checkScores(season int, matches []models.MatchFact, maxScore int) []string {
	var errs []string
	for _, m := range matches {
		oneSided := (m.HomeScore == nil) != (m.AwayScore == nil)
		if oneSided {
			errs = append(errs, fmt.Sprintf("season %d: %s has one score recorded without the other", season, m.MatchID))
			continue
		}
		if m.HomeScore == nil {
			continue
		}
		if *m.HomeScore < 0 || *m.AwayScore < 0 || *m.HomeScore > maxScore || *m.AwayScore > maxScore {
			errs = append(errs, fmt.Sprintf("season %d: %s has implausible scores %d-%d", season, m.MatchID, *m.HomeScore, *m.AwayScore))
		}
	}
	return errs
}

func checkCanonicalTeams(season int, matches []models.MatchFact) []string {
	unknown := map[string]struct{}{}
	for _, m := range matches {
		if !models.KnownTeam(m.HomeTeam) {
			unknown[m.HomeTeam] = struct{}{}
		}
		if !models.KnownTeam(m.AwayTeam) {
			unknown[m.AwayTeam] = struct{}{}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	names := make([]string, 0, len(unknown))
	for name := range unknown {
		names = append(names, name)
	}
	sort.Strings(names)
	return []string{fmt.Sprintf("season %d: unknown teams %v", season, names)}
}

func checkCanonicalVenues(season int, matches []models.MatchFact) []string {
	unknown := map[string]struct{}{}
	for _, m := range matches {
		venue := strings.TrimSpace(m.Venue)
		if venue == "" || !models.KnownVenue(venue) {
			unknown[m.Venue] = struct{}{}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	names := make([]string, 0, len(unknown))
	for name := range unknown {
		names = append(names, name)
	}
	sort.Strings(names)
	return []string{fmt.Sprintf("season %d: non-canonical venues %v", season, names)}
}

// A result recorded while an earlier-dated fixture for the same team is
// still unresolved means the feed skipped a match.
func checkDateMonotonicity(season int, matches []models.MatchFact) []string {
	latestResolved := map[string]time.Time{}
	for _, m := range matches {
		if !m.Resolved() {
			continue
		}
		for _, team := range []string{m.HomeTeam, m.AwayTeam} {
			if cur, ok := latestResolved[team]; !ok || m.MatchDate.After(cur) {
				latestResolved[team] = m.MatchDate
			}
		}
	}
	var errs []string
	for _, m := range matches {
		if m.Resolved() {
			continue
		}
		for _, team := range []string{m.HomeTeam, m.AwayTeam} {
			if last, ok := latestResolved[team]; ok && m.MatchDate.Before(last) {
				errs = append(errs, fmt.Sprintf("season %d: %s unresolved but %s already has a later result", season, m.MatchID, team))
				break
			}
		}
	}
	return errs
}

func checkCloseOnResolved(season int, matches []models.MatchFact, odds []models.OddsFact) []string {
	closeByMatch := map[string]bool{}
	for _, o := range odds {
		if o.ClosePrice != nil {
			closeByMatch[o.MatchID] = true
		}
	}
	var errs []string
	for _, m := range matches {
		if !m.Resolved() {
			continue
		}
		if !closeByMatch[m.MatchID] {
			errs = append(errs, fmt.Sprintf("season %d: resolved match %s has no close price", season, m.MatchID))
		}
	}
	return errs
}

// SeasonChecksum fingerprints a season's fixtures: rows sorted by match_id,
// each rendered id:home:away:hs:as (blank for null scores), joined with |,
// sha256 over the result. Unchanged data always hashes the same.
func SeasonChecksum(matches []models.MatchFact) string {
	sorted := make([]models.MatchFact, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MatchID < sorted[j].MatchID })
	parts := make([]string, 0, len(sorted))
	for _, m := range sorted {
		hs, as := "", ""
		if m.HomeScore != nil {
			hs = strconv.Itoa(*m.HomeScore)
		}
		if m.AwayScore != nil {
			as = strconv.Itoa(*m.AwayScore)
		}
		parts = append(parts, fmt.Sprintf("%s:%s:%s:%s:%s", m.MatchID, m.HomeTeam, m.AwayTeam, hs, as))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
