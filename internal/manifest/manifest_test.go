package manifest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/httpclient"
)

const sample = "v0\r\n" +
	"RobloxApp.zip\r\n" +
	"0123456789abcdef0123456789abcdef\r\n" +
	"1000\r\n" +
	"400\r\n" +
	"content-avatar.zip\r\n" +
	"FEDCBA9876543210FEDCBA9876543210\r\n" +
	"2000\r\n" +
	"800\r\n" +
	"\r\n"

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(m.Packages) != 2 {
		t.Fatalf("packages = %d, want 2", len(m.Packages))
	}
	want := Package{Name: "content-avatar.zip", Checksum: "fedcba9876543210fedcba9876543210", Size: 2000, PackedSize: 800}
	if m.Packages[1] != want {
		t.Errorf("package[1] = %+v, want %+v", m.Packages[1], want)
	}
	if m.Packages[0].Name != "RobloxApp.zip" {
		t.Errorf("order not preserved: %+v", m.Packages)
	}
	if m.TotalPackedSize() != 1200 {
		t.Errorf("TotalPackedSize = %d", m.TotalPackedSize())
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no header", "RobloxApp.zip\nabc\n1\n1\n"},
		{"wrong header", "v1\nRobloxApp.zip\n0123456789abcdef0123456789abcdef\n1\n1\n"},
		{"truncated group", "v0\nRobloxApp.zip\n0123456789abcdef0123456789abcdef\n1\n"},
		{"bad checksum", "v0\nRobloxApp.zip\nnothex\n1\n1\n"},
		{"bad size", "v0\nRobloxApp.zip\n0123456789abcdef0123456789abcdef\nlots\n1\n"},
		{"header only", "v0\n"},
		{"html", "<html><body>Not Found</body></html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !apperr.Is(err, apperr.KindParse) {
				t.Errorf("Parse error = %v, want parse error", err)
			}
		})
	}
}

func TestPackageURL(t *testing.T) {
	got := PackageURL("https://setup.rbxcdn.com/", "version-abc", "content-fonts.zip")
	if got != "https://setup.rbxcdn.com/version-abc-content-fonts.zip" {
		t.Errorf("PackageURL = %q", got)
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version-abc-rbxPkgManifest.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, sample)
	}))
	defer server.Close()

	c := httpclient.New(httpclient.WithHTTPClient(server.Client()))
	m, err := Fetch(context.Background(), c, server.URL, "version-abc")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if m.Version != "version-abc" || len(m.Packages) != 2 {
		t.Errorf("manifest = %+v", m)
	}

	_, err = Fetch(context.Background(), c, server.URL, "version-missing")
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Errorf("missing manifest error = %v, want network error", err)
	}
}
