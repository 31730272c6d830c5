package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieStore_LoadMissing(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

	cookies, err := cs.Load()
	require.NoError(t, err)
	assert.Nil(t, cookies, "missing slot must read as no session, not an error")
}

func TestCookieStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	cs := NewCookieStore(path)

	in := []*proto.NetworkCookie{
		{Name: "auth_token", Value: "secret", Domain: ".x.com", Path: "/", Secure: true},
		{Name: "ct0", Value: "csrf", Domain: ".x.com", Path: "/"},
	}
	require.NoError(t, cs.Save(in))

	out, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "auth_token", out[0].Name)
	assert.Equal(t, "secret", out[0].Value)
	assert.Equal(t, ".x.com", out[0].Domain)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestCookieStore_SaveOverwrites(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

	require.NoError(t, cs.Save([]*proto.NetworkCookie{{Name: "old", Value: "1"}}))
	require.NoError(t, cs.Save([]*proto.NetworkCookie{{Name: "new", Value: "2"}}))

	out, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Name)
}

func TestCookieStore_Clear(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

	require.NoError(t, cs.Save([]*proto.NetworkCookie{{Name: "auth_token", Value: "x"}}))
	require.NoError(t, cs.Clear())

	out, err := cs.Load()
	require.NoError(t, err)
	assert.Nil(t, out)

	// Clearing an already-empty slot is fine.
	require.NoError(t, cs.Clear())
}

func TestCookieParams(t *testing.T) {
	params := cookieParams([]*proto.NetworkCookie{
		{Name: "auth_token", Value: "v", Domain: ".x.com", Path: "/", HTTPOnly: true, Secure: true},
	})
	require.Len(t, params, 1)
	assert.Equal(t, "auth_token", params[0].Name)
	assert.Equal(t, ".x.com", params[0].Domain)
	assert.True(t, params[0].HTTPOnly)
}

func TestIsLoginWall(t *testing.T) {
	assert.True(t, IsLoginWall("https://x.com/login"))
	assert.True(t, IsLoginWall("https://x.com/i/flow/login?redirect_after_login=%2Fhome"))
	assert.False(t, IsLoginWall("https://x.com/alice_x/with_replies"))
	assert.False(t, IsLoginWall("https://x.com/home"))
}
