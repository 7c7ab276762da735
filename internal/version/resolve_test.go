package version

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/httpclient"
)

func TestResolve_OverrideSkipsNetwork(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer server.Close()

	r := NewResolver(httpclient.New(httpclient.WithHTTPClient(server.Client())), server.URL)
	got, err := r.Resolve(context.Background(), "production", "version-pinned")
	if err != nil {
		t.Fatal(err)
	}
	if got != "version-pinned" {
		t.Errorf("Resolve = %q, want the override verbatim", got)
	}
	if hit {
		t.Error("override should not touch the network")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantKind apperr.Kind
	}{
		{"ok", 200, `{"version":"0.650.0.6500","clientVersionUpload":"version-1a2b3c"}`, "version-1a2b3c", ""},
		{"missing field", 200, `{"version":"0.650.0"}`, "", apperr.KindParse},
		{"garbage id", 200, `{"clientVersionUpload":"hello"}`, "", apperr.KindParse},
		{"not json", 200, `nope`, "", apperr.KindParse},
		{"server error", 503, ``, "", apperr.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			r := NewResolver(httpclient.New(httpclient.WithHTTPClient(server.Client())), server.URL)
			got, err := r.Resolve(context.Background(), "zintegration", "")
			if tt.wantKind != "" {
				if !apperr.Is(err, tt.wantKind) {
					t.Errorf("error = %v, want %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
			if path != "/v2/client-version/WindowsStudio64/channel/zintegration" {
				t.Errorf("path = %q", path)
			}
		})
	}
}

func TestResolve_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	r := NewResolver(httpclient.New(), url)
	if _, err := r.Resolve(context.Background(), "production", ""); !apperr.Is(err, apperr.KindNetwork) {
		t.Errorf("error = %v, want network error", err)
	}
}
