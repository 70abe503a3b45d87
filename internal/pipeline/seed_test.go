package pipeline

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"nrlengine/internal/ingest"
	"nrlengine/internal/models"
)

type stubSeedSink struct {
	matches  map[int][]ingest.MatchRecord
	odds     map[int][]ingest.OddsRecord
	ratings  map[int][]ingest.RatingRecord
	injuries map[int][]ingest.InjuryRecord
	scrapers []string
}

func newStubSeedSink() *stubSeedSink {
	return &stubSeedSink{
		matches:  map[int][]ingest.MatchRecord{},
		odds:     map[int][]ingest.OddsRecord{},
		ratings:  map[int][]ingest.RatingRecord{},
		injuries: map[int][]ingest.InjuryRecord{},
	}
}

func (s *stubSeedSink) IngestMatches(_ context.Context, _ string, season int, scraper, _ string, records []ingest.MatchRecord, _ bool) (*ingest.SourceResult, error) {
	s.matches[season] = append(s.matches[season], records...)
	s.scrapers = append(s.scrapers, scraper)
	return &ingest.SourceResult{Written: int64(len(records))}, nil
}

func (s *stubSeedSink) IngestOdds(_ context.Context, _ string, season int, scraper, _ string, records []ingest.OddsRecord, _ bool) (*ingest.SourceResult, error) {
	s.odds[season] = append(s.odds[season], records...)
	s.scrapers = append(s.scrapers, scraper)
	return &ingest.SourceResult{Written: int64(len(records))}, nil
}

func (s *stubSeedSink) IngestRatings(_ context.Context, _ string, season int, scraper, _ string, records []ingest.RatingRecord, _ bool) (*ingest.SourceResult, error) {
	s.ratings[season] = append(s.ratings[season], records...)
	s.scrapers = append(s.scrapers, scraper)
	return &ingest.SourceResult{Written: int64(len(records))}, nil
}

func (s *stubSeedSink) IngestInjuries(_ context.Context, _ string, season int, scraper, _ string, records []ingest.InjuryRecord, _ bool) (*ingest.SourceResult, error) {
	s.injuries[season] = append(s.injuries[season], records...)
	s.scrapers = append(s.scrapers, scraper)
	return &ingest.SourceResult{Written: int64(len(records))}, nil
}

func seedOne(t *testing.T, params SeedParams) (*stubSeedSink, *SeedTotals) {
	t.Helper()
	sink := newStubSeedSink()
	seeder := &Seeder{Ingest: sink, Logger: zap.NewNop()}
	totals, err := seeder.Seed(context.Background(), params)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return sink, totals
}

func TestSeedSeasonShape(t *testing.T) {
	sink, totals := seedOne(t, SeedParams{HistoricalSeasons: []int{2024}, CurrentSeason: 2026})

	fixtures := sink.matches[2024]
	if len(fixtures) != 27*8 {
		t.Fatalf("fixtures=%d want %d", len(fixtures), 27*8)
	}
	for _, f := range fixtures {
		if f.HomeScore == nil || f.AwayScore == nil {
			t.Fatalf("historical fixture %s missing scores", f.MatchID)
		}
		if *f.HomeScore < 0 || *f.HomeScore > maxSeededScore || *f.AwayScore < 0 || *f.AwayScore > maxSeededScore {
			t.Fatalf("fixture %s scores out of range: %d-%d", f.MatchID, *f.HomeScore, *f.AwayScore)
		}
		if f.HomeTeam == f.AwayTeam {
			t.Fatalf("fixture %s has a team playing itself", f.MatchID)
		}
	}

	odds := sink.odds[2024]
	if len(odds) != 27*8*2 {
		t.Fatalf("odds=%d want %d", len(odds), 27*8*2)
	}
	for _, o := range odds {
		if o.OpeningPrice < 1.05 || o.OpeningPrice > 15.0 {
			t.Fatalf("odds %s/%s opening %v out of band", o.MatchID, o.Team, o.OpeningPrice)
		}
		if o.ClosePrice == nil || *o.ClosePrice <= 1 {
			t.Fatalf("odds %s/%s close price invalid", o.MatchID, o.Team)
		}
		if o.LastPrice == nil || *o.LastPrice <= 1 {
			t.Fatalf("odds %s/%s last price invalid", o.MatchID, o.Team)
		}
	}

	if len(sink.ratings[2024]) != len(models.Teams) {
		t.Fatalf("ratings=%d want %d", len(sink.ratings[2024]), len(models.Teams))
	}
	for _, r := range sink.ratings[2024] {
		if r.Rating <= 0 {
			t.Fatalf("rating %s=%v", r.Team, r.Rating)
		}
	}
	for _, inj := range sink.injuries[2024] {
		if inj.InjuryCount < 0 || inj.InjuryCount > 5 {
			t.Fatalf("injury count %s=%d", inj.Team, inj.InjuryCount)
		}
	}

	wantMatches := int64(2 * 27 * 8)
	if totals.Matches != wantMatches {
		t.Fatalf("total matches=%d want %d", totals.Matches, wantMatches)
	}
	if totals.TeamRatings != int64(2*len(models.Teams)) {
		t.Fatalf("total ratings=%d", totals.TeamRatings)
	}
}

func TestSeedCurrentSeasonHasNoScores(t *testing.T) {
	sink, _ := seedOne(t, SeedParams{HistoricalSeasons: []int{2024}, CurrentSeason: 2026})

	fixtures := sink.matches[2026]
	if len(fixtures) != 27*8 {
		t.Fatalf("current fixtures=%d", len(fixtures))
	}
	for _, f := range fixtures {
		if f.HomeScore != nil || f.AwayScore != nil {
			t.Fatalf("current fixture %s has scores", f.MatchID)
		}
	}
	if len(sink.odds[2026]) != 27*8*2 {
		t.Fatalf("current odds=%d", len(sink.odds[2026]))
	}
}

func TestSeedDeterministic(t *testing.T) {
	params := SeedParams{HistoricalSeasons: []int{2023}, CurrentSeason: 2026}
	first, _ := seedOne(t, params)
	second, _ := seedOne(t, params)

	if !reflect.DeepEqual(first.matches, second.matches) {
		t.Fatalf("fixtures differ between identical seed runs")
	}
	if !reflect.DeepEqual(first.odds, second.odds) {
		t.Fatalf("odds differ between identical seed runs")
	}
	if !reflect.DeepEqual(first.ratings, second.ratings) {
		t.Fatalf("ratings differ between identical seed runs")
	}
	if !reflect.DeepEqual(first.injuries, second.injuries) {
		t.Fatalf("injuries differ between identical seed runs")
	}
}

func TestSeedMatchIDsAndDates(t *testing.T) {
	sink, _ := seedOne(t, SeedParams{HistoricalSeasons: []int{2024}, CurrentSeason: 2026})

	round1 := sink.matches[2024][:8]
	for i, f := range round1 {
		wantID := fmt.Sprintf("NRL_2024_R01_M%02d", i+1)
		if f.MatchID != wantID {
			t.Fatalf("match id=%q want %q", f.MatchID, wantID)
		}
		wantDay := 7 + i%4
		wantDate := fmt.Sprintf("2024-03-%02d", wantDay)
		if f.MatchDate != wantDate {
			t.Fatalf("match %s date=%q want %q", f.MatchID, f.MatchDate, wantDate)
		}
	}

	round2 := sink.matches[2024][8:16]
	if round2[0].MatchDate != "2024-03-14" {
		t.Fatalf("round 2 opener date=%q want 2024-03-14", round2[0].MatchDate)
	}
}

func TestSeedUsesSeedSource(t *testing.T) {
	sink, _ := seedOne(t, SeedParams{HistoricalSeasons: []int{2024}, CurrentSeason: 2026})
	for _, scraper := range sink.scrapers {
		if scraper != ingest.SourceSeed {
			t.Fatalf("scraper=%q want %q", scraper, ingest.SourceSeed)
		}
	}
}

func TestWinProb(t *testing.T) {
	even := winProb(1500, 1500)
	if math.Abs(even-0.5714629) > 1e-6 {
		t.Fatalf("even matchup p=%v", even)
	}
	if !(winProb(1650, 1400) > winProb(1400, 1650)) {
		t.Fatalf("stronger home side should be favored")
	}
	strong := winProb(2400, 1000)
	if strong <= 0.99 || strong >= 1 {
		t.Fatalf("lopsided matchup p=%v", strong)
	}
}
