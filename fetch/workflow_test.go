package fetch

import (
	"testing"

	"github.com/pop-os/upgrade-daemon/fetcher"
)

func TestDedupe_RemovesDuplicateDestinations(t *testing.T) {
	uris := []fetcher.URI{
		{Name: "a", Dest: "/cache/a.deb"},
		{Name: "a-dup", Dest: "/cache/a.deb"},
		{Name: "b", Dest: "/cache/b.deb"},
	}
	got := dedupe(uris)
	if len(got) != 2 {
		t.Fatalf("dedupe() len = %d, want 2", len(got))
	}
	if got[0].Dest != "/cache/a.deb" || got[1].Dest != "/cache/b.deb" {
		t.Errorf("dedupe() = %+v", got)
	}
}

func TestCauseMessage(t *testing.T) {
	if got := causeMessage(nil); got != "" {
		t.Errorf("causeMessage(nil) = %q, want empty", got)
	}
}
