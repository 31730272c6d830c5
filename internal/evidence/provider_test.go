package evidence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/browser"
)

// With no stored session and no credentials, both checks must fail with
// ErrUnavailable before touching the browser; silently answering "not
// satisfied" would reject users for the bot's own auth problem.
func TestChecks_UnauthenticatedIsUnavailable(t *testing.T) {
	cookies := browser.NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	mgr := browser.NewManager(browser.Config{}, cookies, nil)
	p := NewProvider(mgr, nil)

	_, err := p.CheckReplyKeyword(context.Background(), "alice_x", "https://x.com/acct/status/999", "$Broke")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = p.CheckRetweet(context.Background(), "alice_x", "https://x.com/acct/status/999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
