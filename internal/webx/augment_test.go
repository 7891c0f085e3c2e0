package webx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// staticSearch is a SearchProvider returning a fixed result list.
type staticSearch struct {
	results []SearchResult
	err     error
}

func (s *staticSearch) Search(context.Context, string, int) ([]SearchResult, error) {
	return s.results, s.err
}

func Test_Augment_ShapesCardsInSearchOrder(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>Product %s</title></head></html>", r.URL.Path)
	}))
	defer srv.Close()

	search := &staticSearch{results: []SearchResult{
		{Title: "A", URL: srv.URL + "/a"},
		{Title: "B", URL: srv.URL + "/b"},
		{Title: "C", URL: srv.URL + "/c"},
	}}
	a := NewAugmenter(search, NewFetcher(gateFor(t, srv.URL), ""))

	cards := a.Augment(context.Background(), "headphones", 2)
	if len(cards) != 2 {
		t.Fatalf("want 2 cards, got %d", len(cards))
	}
	if cards[0].Title != "Product /a" || cards[1].Title != "Product /b" {
		t.Errorf("cards out of search order: %q, %q", cards[0].Title, cards[1].Title)
	}
	for _, c := range cards {
		if c.ID != CardID(c.URL) {
			t.Errorf("card id %q does not match url %q", c.ID, c.URL)
		}
	}
}

func Test_Augment_SkipsGatedAndFailedPages(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		fmt.Fprint(w, "<html><head><title>Survivor</title></head></html>")
	}))
	defer srv.Close()

	search := &staticSearch{results: []SearchResult{
		{Title: "Gated", URL: "https://unlisted.example/x"},
		{Title: "Broken", URL: srv.URL + "/bad"},
		{Title: "Good", URL: srv.URL + "/good"},
	}}
	a := NewAugmenter(search, NewFetcher(gateFor(t, srv.URL), ""))

	cards := a.Augment(context.Background(), "headphones", 3)
	if len(cards) != 1 || cards[0].Title != "Survivor" {
		t.Errorf("cards = %+v, want only the survivor", cards)
	}
}

func Test_Augment_SearchFailureDegrades(t *testing.T) {
	t.Parallel()
	a := NewAugmenter(&staticSearch{err: fmt.Errorf("offline")}, NewFetcher(NewDomainGate(nil, false), ""))
	if cards := a.Augment(context.Background(), "headphones", 3); cards != nil {
		t.Errorf("cards = %+v, want nil on search failure", cards)
	}
	if cards := a.Augment(context.Background(), "", 3); cards != nil {
		t.Errorf("blank query should yield nil, got %+v", cards)
	}
}

func Test_Prefetch_CountsCachedPages(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><head><title>Warm</title></head></html>")
	}))
	defer srv.Close()

	a := NewAugmenter(&staticSearch{}, NewFetcher(gateFor(t, srv.URL), t.TempDir()))
	got := a.Prefetch(context.Background(), []string{
		srv.URL + "/1",
		srv.URL + "/2",
		"https://unlisted.example/x",
	})
	if got != 2 {
		t.Errorf("Prefetch = %d, want 2", got)
	}
}

func Test_Prefetch_RefreshesCachedPages(t *testing.T) {
	t.Parallel()
	var title atomic.Value
	title.Store("Stale")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>%s</title></head></html>", title.Load())
	}))
	defer srv.Close()

	fetcher := NewFetcher(gateFor(t, srv.URL), t.TempDir())
	a := NewAugmenter(&staticSearch{}, fetcher)
	target := srv.URL + "/p"

	if got := a.Prefetch(context.Background(), []string{target}); got != 1 {
		t.Fatalf("Prefetch = %d, want 1", got)
	}
	title.Store("Fresh")
	if got := a.Prefetch(context.Background(), []string{target}); got != 1 {
		t.Fatalf("second Prefetch = %d, want 1", got)
	}
	if rec := fetcher.FetchCached(target); rec == nil || rec.Title != "Fresh" {
		t.Errorf("cached record = %+v, want the refreshed page", rec)
	}
}
