// Package evidence answers social-action questions by inspecting X's
// rendered state through an authenticated browser session: did the user
// reply with the keyword, and did the user retweet the target post.
//
// Absence of evidence (no posts, no keyword match, no resolvable permalink)
// is a negative answer, not an error. Hard failures are classified into
// ErrUnavailable (session missing or expired) and ErrTimeout (external
// surface too slow); anything else surfaces as an unclassified error the
// orchestrator treats as transient.
package evidence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/browser"
)

// ErrUnavailable means the session is unauthenticated or expired and the
// current query could not be answered.
var ErrUnavailable = errors.New("evidence source unavailable: not authenticated")

// ErrTimeout means the external surface did not respond within the bounded
// wait.
var ErrTimeout = errors.New("evidence source timed out")

// Result is the answer to a single evidence query.
type Result struct {
	Satisfied   bool
	CitationURL string
}

// Provider runs evidence queries against X through the browser manager.
type Provider struct {
	mgr *browser.Manager
	log *zap.Logger
}

// NewProvider creates an evidence provider. The logger may be nil.
func NewProvider(mgr *browser.Manager, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{mgr: mgr, log: log}
}

// CheckReplyKeyword reports whether the user publicly replied with the
// keyword to the given post. The replies timeline is scanned in rendering
// order and only the first keyword-matching reply is considered; its thread
// is opened and the first post in the thread is taken as the putative
// parent. Satisfied iff that parent resolves to the same post identity as
// postURL.
func (p *Provider) CheckReplyKeyword(ctx context.Context, handle, postURL, keyword string) (Result, error) {
	if err := p.ensureSession(ctx); err != nil {
		return Result{}, err
	}

	url := fmt.Sprintf("https://x.com/%s/with_replies", handle)
	p.log.Debug("opening replies timeline", zap.String("url", url))

	page, err := p.mgr.OpenPage(ctx, url)
	if err != nil {
		return Result{}, classify(err)
	}
	defer page.Close()

	if err := p.checkLoginWall(page); err != nil {
		return Result{}, err
	}

	posts, err := page.Elements("article")
	if err != nil {
		return Result{}, classify(err)
	}
	p.log.Debug("scanned replies timeline", zap.String("handle", handle), zap.Int("posts", len(posts)))

	for _, post := range posts {
		text, err := post.Text()
		if err != nil {
			continue
		}
		if !MatchesKeyword(text, keyword) {
			continue
		}

		replyLink, ok := firstStatusLink(post)
		if !ok {
			p.log.Debug("keyword reply found but permalink not resolvable")
			return Result{}, nil
		}

		parent, err := p.threadRoot(ctx, page, replyLink)
		if err != nil {
			return Result{}, err
		}
		if parent == "" {
			return Result{CitationURL: replyLink}, nil
		}

		p.log.Debug("thread root resolved",
			zap.String("reply", replyLink),
			zap.String("parent", parent))
		return Result{
			Satisfied:   SamePost(parent, postURL),
			CitationURL: replyLink,
		}, nil
	}

	return Result{}, nil
}

// threadRoot opens the reply's thread view and returns the permalink of the
// first post in it, or "" when the thread does not expose one.
func (p *Provider) threadRoot(ctx context.Context, page *rod.Page, replyLink string) (string, error) {
	nav := page.Timeout(p.mgr.NavTimeout())
	if err := nav.Navigate(replyLink); err != nil {
		return "", classify(err)
	}
	if err := nav.WaitLoad(); err != nil {
		return "", classify(err)
	}
	p.mgr.Settle(ctx)

	thread, err := page.Elements("article")
	if err != nil {
		return "", classify(err)
	}
	// A thread view with fewer than two posts has no distinct parent.
	if len(thread) < 2 {
		return "", nil
	}

	root, ok := firstStatusLink(thread[0])
	if !ok {
		return "", nil
	}
	return root, nil
}

// CheckRetweet reports whether the target post appears on the user's own
// profile timeline, i.e. the user retweeted it. Only the visible,
// unpaginated set is inspected.
func (p *Provider) CheckRetweet(ctx context.Context, handle, postURL string) (bool, error) {
	if err := p.ensureSession(ctx); err != nil {
		return false, err
	}

	url := fmt.Sprintf("https://x.com/%s", handle)
	p.log.Debug("opening profile timeline", zap.String("url", url))

	page, err := p.mgr.OpenPage(ctx, url)
	if err != nil {
		return false, classify(err)
	}
	defer page.Close()

	if err := p.checkLoginWall(page); err != nil {
		return false, err
	}

	links, err := page.Elements(`article a[href*="/status/"]`)
	if err != nil {
		return false, classify(err)
	}
	p.log.Debug("scanned profile timeline", zap.String("handle", handle), zap.Int("links", len(links)))

	for _, link := range links {
		href, err := link.Attribute("href")
		if err != nil || href == nil {
			continue
		}
		if SamePost(absoluteURL(*href), postURL) {
			return true, nil
		}
	}
	return false, nil
}

// ensureSession maps a missing session onto the provider's error taxonomy.
func (p *Provider) ensureSession(ctx context.Context) error {
	if err := p.mgr.EnsureSession(ctx); err != nil {
		if errors.Is(err, browser.ErrNotAuthenticated) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return classify(err)
	}
	return nil
}

// checkLoginWall detects a stale session: X redirects unauthenticated
// timeline requests to the login flow.
func (p *Provider) checkLoginWall(page *rod.Page) error {
	info, err := page.Info()
	if err != nil {
		return classify(err)
	}
	if browser.IsLoginWall(info.URL) {
		return fmt.Errorf("%w: redirected to %s", ErrUnavailable, info.URL)
	}
	return nil
}

// firstStatusLink returns the first absolute status permalink inside the
// given post element.
func firstStatusLink(post *rod.Element) (string, bool) {
	links, err := post.Elements(`a[href*="/status/"]`)
	if err != nil || len(links) == 0 {
		return "", false
	}
	href, err := links[0].Attribute("href")
	if err != nil || href == nil || *href == "" {
		return "", false
	}
	return absoluteURL(*href), true
}

// classify folds raw browser errors into the provider taxonomy: deadline
// overruns become ErrTimeout, everything else passes through for the
// orchestrator to treat as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
