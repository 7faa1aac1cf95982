package sources_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pop-os/upgrade-daemon/sources"
)

func TestIsOldRelease_TrueOnSuccessfulHead(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	origBase := sources.OldReleasesBase
	sources.OldReleasesBase = server.URL
	t.Cleanup(func() { sources.OldReleasesBase = origBase })

	if !sources.IsOldRelease(context.Background(), server.Client(), "warty") {
		t.Error("IsOldRelease() = false, want true on a 200 response")
	}
	if gotMethod != http.MethodHead {
		t.Errorf("method = %s, want HEAD", gotMethod)
	}
	if gotPath != "/warty/Release" {
		t.Errorf("path = %s, want /warty/Release", gotPath)
	}
}

func TestIsOldRelease_FalseOnNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	origBase := sources.OldReleasesBase
	sources.OldReleasesBase = server.URL
	t.Cleanup(func() { sources.OldReleasesBase = origBase })

	if sources.IsOldRelease(context.Background(), server.Client(), "noble") {
		t.Error("IsOldRelease() = true, want false on a 404 response")
	}
}

func TestIsOldRelease_FalseOnUnreachableHost(t *testing.T) {
	client := &http.Client{Transport: failingTransport{}}
	if sources.IsOldRelease(context.Background(), client, "noble") {
		t.Error("IsOldRelease() = true, want false when the request fails outright")
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}
