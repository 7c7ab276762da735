// Package version decides which application version identifier to run.
package version

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rsjfw/rsjfw/internal/apperr"
)

const binaryType = "WindowsStudio64"

var idPattern = regexp.MustCompile(`^version-[0-9a-f]+$`)

// JSONGetter fetches and decodes a JSON document.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out interface{}) error
}

// Resolver looks up the current version of a release channel.
type Resolver struct {
	client  JSONGetter
	baseURL string
}

// NewResolver returns a Resolver querying the client-settings service at baseURL.
func NewResolver(client JSONGetter, baseURL string) *Resolver {
	return &Resolver{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type clientVersion struct {
	Version             string `json:"version"`
	ClientVersionUpload string `json:"clientVersionUpload"`
}

// Resolve returns override verbatim when set. Otherwise it asks the
// client-settings service for channel's current upload identifier.
func (r *Resolver) Resolve(ctx context.Context, channel, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if channel == "" {
		channel = "production"
	}

	var cv clientVersion
	if err := r.client.GetJSON(ctx, r.URL(channel), &cv); err != nil {
		return "", fmt.Errorf("resolving %s version: %w", channel, err)
	}
	id := strings.TrimSpace(cv.ClientVersionUpload)
	if id == "" {
		return "", apperr.New(apperr.KindParse, "resolving "+channel+" version", "response has no clientVersionUpload")
	}
	if !IsID(id) {
		return "", apperr.Newf(apperr.KindParse, "resolving "+channel+" version", "unrecognised version identifier %q", id)
	}
	return id, nil
}

// URL returns the client-settings endpoint for channel.
func (r *Resolver) URL(channel string) string {
	return fmt.Sprintf("%s/v2/client-version/%s/channel/%s", r.baseURL, binaryType, channel)
}

// IsID reports whether s looks like a version identifier.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}
