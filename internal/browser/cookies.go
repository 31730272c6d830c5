package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"
)

// CookieStore persists the authenticated session cookie bundle to a single
// fixed slot on disk, so the bot can skip interactive login across restarts.
// No expiry tracking happens here; staleness is only discovered when an
// evidence query hits the login wall.
type CookieStore struct {
	path string
}

// NewCookieStore creates a cookie store backed by the given file path.
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// Load returns the stored cookie bundle, or (nil, nil) when no session has
// been saved yet.
func (cs *CookieStore) Load() ([]*proto.NetworkCookie, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load cookies: %w", err)
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	return cookies, nil
}

// Save writes the cookie bundle, replacing any previous session. The write
// goes through a temp file and rename so a crash mid-write cannot leave a
// truncated bundle behind.
func (cs *CookieStore) Save(cookies []*proto.NetworkCookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}

	dir := filepath.Dir(cs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*")
	if err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save cookies: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save cookies: %w", err)
	}
	return os.Rename(tmp.Name(), cs.path)
}

// Clear removes the stored session, forcing the next use to re-authenticate.
func (cs *CookieStore) Clear() error {
	err := os.Remove(cs.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

// cookieParams converts stored cookies into the form SetCookies accepts.
func cookieParams(cookies []*proto.NetworkCookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}
	return params
}
