package httpfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
)

var testLeague = league.League{ID: "L1", SiteID: "ea", ExternalID: "nhl"}

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Token: "secret", MaxRetries: retries, Backoff: time.Millisecond})
}

func TestFetchDecodesItems(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites/ea/leagues/nhl/feeds/trade" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization=%q", got)
		}
		_, _ = w.Write([]byte(`{"items":[
			{"at":"2026-03-01T12:00:00Z","sides":[{"team":"10","sends":["Ann"]},{"team":"20","sends":["Bob"]}]},
			{"id":"fixed","at":"2026-03-01T13:00:00+01:00","sides":[]}
		]}`))
	}, 0)

	items, err := c.Fetch(context.Background(), testLeague, feed.TypeTrade)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	tr, ok := items[0].(*feed.Trade)
	if !ok {
		t.Fatalf("expected *feed.Trade, got %T", items[0])
	}
	if len(tr.Sides) != 2 || tr.Sides[1].Sends[0] != "Bob" {
		t.Fatalf("unexpected sides %+v", tr.Sides)
	}
	if tr.Fingerprint() == "" {
		t.Fatalf("expected computed fingerprint")
	}
	if items[1].Fingerprint() != "fixed" {
		t.Fatalf("expected source id kept, got %q", items[1].Fingerprint())
	}
	if !items[1].OccurredAt().Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", items[1].OccurredAt())
	}
}

func TestFetchNotFoundIsUnsupported(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, 3)

	_, err := c.Fetch(context.Background(), testLeague, feed.TypeBid)
	if !errors.Is(err, feed.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}, 2)

	items, err := c.Fetch(context.Background(), testLeague, feed.TypeBid)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 0 || calls.Load() != 3 {
		t.Fatalf("items=%d calls=%d", len(items), calls.Load())
	}
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, 1)

	_, err := c.Fetch(context.Background(), testLeague, feed.TypeBid)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, 3)

	_, err := c.Fetch(context.Background(), testLeague, feed.TypeBid)
	if err == nil || IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestFetchDropsMalformedItems(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[
			{"game_id":"g1","at":"2026-03-01T12:00:00Z","home":"10","away":"20","home_score":3,"away_score":1},
			{"at":"2026-03-01T12:30:00Z","home":"10","away":"30"},
			{"game_id":"g3","at":"2026-03-01T13:00:00Z","home":"20","away":"30"}
		]}`))
	}, 0)

	items, err := c.Fetch(context.Background(), testLeague, feed.TypeGame)
	if err != nil {
		t.Fatalf("a bad item must not fail the page: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if g := items[1].(*feed.Game); g.GameID != "g3" {
		t.Fatalf("unexpected second game %q", g.GameID)
	}
}

func TestFetchSharedRequestSurvivesCanceledCaller(t *testing.T) {
	t.Parallel()
	arrived := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(arrived)
		}
		<-release
		_, _ = w.Write([]byte(`{"items":[{"id":"b1","at":"2026-03-01T12:00:00Z","team":"10","player":"Ann"}]}`))
	}, 0)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Fetch(first, testLeague, feed.TypeBid)
		firstErr <- err
	}()
	<-arrived

	secondDone := make(chan error, 1)
	var got []feed.Item
	go func() {
		items, err := c.Fetch(context.Background(), testLeague, feed.TypeBid)
		got = items
		secondDone <- err
	}()
	// let the second caller join the in-flight request
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller: expected context.Canceled, got %v", err)
	}
	close(release)

	if err := <-secondDone; err != nil {
		t.Fatalf("second caller failed with the first caller's cancellation: %v", err)
	}
	if len(got) != 1 || got[0].Fingerprint() != "b1" {
		t.Fatalf("unexpected items %+v", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one shared request, got %d", calls.Load())
	}
}

func TestFetchMetadata(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites/ea/leagues/nhl" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"name":"Pro League","season_id":2026,"teams":[{"id":"10","name":"Tigers"}]}`))
	}, 0)

	md, err := c.FetchMetadata(context.Background(), testLeague)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md.Name != "Pro League" || md.SeasonID == nil || *md.SeasonID != "2026" {
		t.Fatalf("unexpected metadata %+v", md)
	}
	if len(md.Teams) != 1 || md.Teams[0].ExternalID != "10" {
		t.Fatalf("unexpected teams %+v", md.Teams)
	}
}

func TestSeasonString(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in    any
		want  string
		isNil bool
	}{
		{in: "s26", want: "s26"},
		{in: float64(2026), want: "2026"},
		{in: nil, isNil: true},
		{in: "", isNil: true},
	}
	for _, tc := range cases {
		got := seasonString(tc.in)
		if tc.isNil {
			if got != nil {
				t.Fatalf("seasonString(%v) = %q, want nil", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Fatalf("seasonString(%v) = %v, want %q", tc.in, got, tc.want)
		}
	}
}
