// Package browser owns the scraping browser for the X evidence source:
// a single rod-controlled Chrome, the persisted login session, and the
// interactive re-authentication flow.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const loginURL = "https://x.com/login"

// ErrNotAuthenticated is returned when no stored session exists and no
// login credentials are configured, so evidence gathering cannot proceed.
var ErrNotAuthenticated = errors.New("no stored session and no login credentials configured")

// Config holds browser configuration.
type Config struct {
	Headless   bool
	Bin        string // chrome binary, empty = launcher auto-detect
	NavTimeout time.Duration
	PageSettle time.Duration // wait after load for the timeline to render
	LoginUser  string
	LoginPass  string
}

// Manager owns the Chrome instance and the authenticated session. Pages are
// checked out per evidence query and must be closed by the caller; the
// session cookie bundle is shared across pages read-only, while
// re-authentication is single-flighted so concurrent queries cannot corrupt
// the stored session.
type Manager struct {
	cfg     Config
	cookies *CookieStore
	log     *zap.Logger

	mu       sync.RWMutex
	browser  *rod.Browser
	launcher *launcher.Launcher

	loginGroup singleflight.Group
}

// NewManager creates a browser manager. The cookie store is required; the
// logger may be nil.
func NewManager(cfg Config, cookies *CookieStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.NavTimeout == 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.PageSettle == 0 {
		cfg.PageSettle = 5 * time.Second
	}
	return &Manager{cfg: cfg, cookies: cookies, log: log}
}

// Start launches Chrome and connects. Safe to call more than once; a stale
// connection is detected and replaced.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
	}

	l := launcher.New().
		Headless(m.cfg.Headless).
		Set(flags.NoSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.launcher = l
	m.log.Info("browser started", zap.Bool("headless", m.cfg.Headless))
	return nil
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// Shutdown closes the browser and cleans up the launched Chrome.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
		m.launcher = nil
	}
	return err
}

// EnsureSession makes sure an authenticated session exists before evidence
// gathering: a stored cookie bundle is enough; otherwise an interactive
// login is attempted with the configured credentials. With neither, it
// fails with ErrNotAuthenticated rather than letting checks silently
// report "not satisfied".
func (m *Manager) EnsureSession(ctx context.Context) error {
	cookies, err := m.cookies.Load()
	if err != nil {
		return err
	}
	if len(cookies) > 0 {
		return nil
	}
	if m.cfg.LoginUser == "" || m.cfg.LoginPass == "" {
		return ErrNotAuthenticated
	}
	return m.Reauthenticate(ctx)
}

// Reauthenticate performs one interactive login and saves the refreshed
// cookie bundle. Concurrent callers share a single login attempt.
func (m *Manager) Reauthenticate(ctx context.Context) error {
	if m.cfg.LoginUser == "" || m.cfg.LoginPass == "" {
		return ErrNotAuthenticated
	}
	_, err, _ := m.loginGroup.Do("login", func() (interface{}, error) {
		return nil, m.login(ctx)
	})
	return err
}

// login drives the X login form and persists the resulting cookies before
// they are used by any evidence query.
func (m *Manager) login(ctx context.Context) error {
	if err := m.ensureStarted(ctx); err != nil {
		return err
	}

	m.log.Info("performing interactive login", zap.String("user", m.cfg.LoginUser))

	page, err := m.newPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Timeout(m.cfg.NavTimeout).Navigate(loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := page.Timeout(m.cfg.NavTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("load login page: %w", err)
	}
	m.Settle(ctx)

	userInput, err := page.Timeout(m.cfg.NavTimeout).Element(`input[name="text"]`)
	if err != nil {
		return fmt.Errorf("username field not found: %w", err)
	}
	if err := userInput.Input(m.cfg.LoginUser); err != nil {
		return fmt.Errorf("enter username: %w", err)
	}
	if err := userInput.Type(input.Enter); err != nil {
		return fmt.Errorf("submit username: %w", err)
	}
	m.Settle(ctx)

	passInput, err := page.Timeout(m.cfg.NavTimeout).Element(`input[name="password"]`)
	if err != nil {
		return fmt.Errorf("password field not found: %w", err)
	}
	if err := passInput.Input(m.cfg.LoginPass); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	if err := passInput.Type(input.Enter); err != nil {
		return fmt.Errorf("submit password: %w", err)
	}
	m.Settle(ctx)

	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("inspect post-login page: %w", err)
	}
	if IsLoginWall(info.URL) {
		return fmt.Errorf("login did not complete, still at %s", info.URL)
	}

	cookies, err := page.Cookies([]string{})
	if err != nil {
		return fmt.Errorf("read session cookies: %w", err)
	}
	if err := m.cookies.Save(cookies); err != nil {
		return err
	}

	m.log.Info("login succeeded, session saved", zap.Int("cookies", len(cookies)))
	return nil
}

// OpenPage checks out a fresh page carrying the stored session cookies and
// navigates it to the given URL. The caller must Close the page, including
// on error paths.
func (m *Manager) OpenPage(ctx context.Context, url string) (*rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	page, err := m.newPage(ctx)
	if err != nil {
		return nil, err
	}

	cookies, err := m.cookies.Load()
	if err != nil {
		page.Close()
		return nil, err
	}
	if len(cookies) > 0 {
		if err := page.SetCookies(cookieParams(cookies)); err != nil {
			page.Close()
			return nil, fmt.Errorf("apply session cookies: %w", err)
		}
	}

	if err := page.Timeout(m.cfg.NavTimeout).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Timeout(m.cfg.NavTimeout).WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	m.Settle(ctx)

	return page, nil
}

func (m *Manager) newPage(ctx context.Context) (*rod.Page, error) {
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return page.Context(ctx), nil
}

// NavTimeout returns the per-navigation bound. Callers that navigate a
// checked-out page themselves must apply it, so a stalled load surfaces
// as a deadline error instead of parking the goroutine.
func (m *Manager) NavTimeout() time.Duration {
	return m.cfg.NavTimeout
}

// Settle waits the configured post-load delay so client-rendered timelines
// have a chance to paint, without outliving the request context.
func (m *Manager) Settle(ctx context.Context) {
	t := time.NewTimer(m.cfg.PageSettle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// IsLoginWall reports whether the given URL is X's login or login-flow
// page, meaning the session is missing or expired.
func IsLoginWall(url string) bool {
	return strings.Contains(url, "/login") || strings.Contains(url, "/i/flow/login")
}
