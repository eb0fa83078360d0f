package sandbox

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoPreview is returned when no preview origin is recorded, i.e. the
// sandbox is not running a reachable server.
var ErrNoPreview = errors.New("no preview available")

// Navigate composes the served origin with a requested path. The path
// is normalized to begin with "/"; whether it resolves on the sandbox
// server is that server's business.
func Navigate(origin, requestedPath string) (string, error) {
	if origin == "" {
		return "", ErrNoPreview
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid preview origin %q", origin)
	}

	path := requestedPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return u.Scheme + "://" + u.Host + path, nil
}

// Home is the shortcut to the origin's root
func Home(origin string) (string, error) {
	return Navigate(origin, "/")
}

// Refresh recomputes the URL for the current path; a pure function of
// origin and path, no state involved.
func Refresh(origin, currentPath string) (string, error) {
	return Navigate(origin, currentPath)
}
