package releaseapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pop-os/upgrade-daemon/releaseapi"
)

func TestGetRelease_DecodesWireShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/builds/22.04/intel") {
			t.Errorf("path = %q, want suffix /builds/22.04/intel", r.URL.Path)
		}
		w.Write([]byte(`{
			"version": "22.04",
			"url": "https://example.invalid/pop-os_22.04.iso",
			"size": 2048,
			"sha_sum": "abc123",
			"channel": "intel",
			"build": "7",
			"urgent": "true"
		}`))
	}))
	defer srv.Close()

	client := releaseapi.New(srv.URL+"/", srv.Client())
	release, err := client.GetRelease(context.Background(), "22.04", "intel")
	if err != nil {
		t.Fatalf("GetRelease() error = %v", err)
	}
	want := releaseapi.Release{
		Version:  "22.04",
		URL:      "https://example.invalid/pop-os_22.04.iso",
		Size:     2048,
		Checksum: "abc123",
		Channel:  "intel",
		Build:    7,
		Urgent:   true,
	}
	if release != want {
		t.Errorf("GetRelease() = %+v, want %+v", release, want)
	}
}

func TestGetRelease_NonNumericBuildFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"22.04","url":"u","size":1,"sha_sum":"x","channel":"intel","build":"not-a-number","urgent":"false"}`))
	}))
	defer srv.Close()

	client := releaseapi.New(srv.URL+"/", srv.Client())
	if _, err := client.GetRelease(context.Background(), "22.04", "intel"); err == nil {
		t.Fatal("GetRelease() error = nil, want error for non-numeric build")
	}
}

func TestGetRelease_NonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := releaseapi.New(srv.URL+"/", srv.Client())
	if _, err := client.GetRelease(context.Background(), "22.04", "intel"); err == nil {
		t.Fatal("GetRelease() error = nil, want error for a 404 response")
	}
}

func TestBuildExists_ReturnsResolvedBuild(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"22.04","url":"u","size":1,"sha_sum":"x","channel":"intel","build":"9","urgent":"false"}`))
	}))
	defer srv.Close()

	client := releaseapi.New(srv.URL+"/", srv.Client())
	build, err := client.BuildExists(context.Background(), "22.04", "intel")
	if err != nil {
		t.Fatalf("BuildExists() error = %v", err)
	}
	if build != 9 {
		t.Errorf("BuildExists() = %d, want 9", build)
	}
}

func TestNew_DefaultsBaseAndHTTPClient(t *testing.T) {
	client := releaseapi.New("", nil)
	if client == nil {
		t.Fatal("New() returned nil")
	}
}
