// Package verify coordinates a verification attempt: resolve the user,
// short-circuit already-claimed tasks, gather both pieces of evidence,
// apply the AND decision policy, and commit the claim exactly once.
//
// Each attempt walks Requested → UserResolved → EvidenceGathering →
// Decided → {Committed | Rejected | Failed}. The orchestrator holds no
// state of its own; it is a stateless coordinator over the store and the
// evidence provider.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/evidence"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/store"
)

// Provider answers the two evidence questions.
type Provider interface {
	CheckReplyKeyword(ctx context.Context, handle, postURL, keyword string) (evidence.Result, error)
	CheckRetweet(ctx context.Context, handle, postURL string) (bool, error)
}

// Reauthenticator refreshes a stale session. Implemented by the browser
// manager; a failing or absent re-auth escalates the attempt to a
// transient failure.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Store is the persistence surface the orchestrator coordinates over.
type Store interface {
	LookupUser(telegramID int64) (store.User, bool, error)
	GetTask(id int64) (store.Task, bool, error)
	HasClaimed(taskID, telegramID int64) (bool, error)
	RecordClaim(taskID, telegramID int64) error
}

// Orchestrator runs verification attempts.
type Orchestrator struct {
	store    Store
	provider Provider
	reauth   Reauthenticator
	keyword  string
	log      *zap.Logger
}

// New creates an orchestrator. The logger may be nil.
func New(st Store, provider Provider, reauth Reauthenticator, keyword string, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{store: st, provider: provider, reauth: reauth, keyword: keyword, log: log}
}

// Verify runs one verification attempt for (telegramID, taskID).
//
// A returned error means the attempt failed for transient reasons (evidence
// source unreachable or too slow); no claim state changed and the caller
// may retry later. All other results are terminal Outcomes.
func (o *Orchestrator) Verify(ctx context.Context, telegramID, taskID int64) (Outcome, error) {
	attempt := uuid.NewString()
	log := o.log.With(
		zap.String("attempt", attempt),
		zap.Int64("telegram_id", telegramID),
		zap.Int64("task_id", taskID),
	)
	log.Info("verification requested")

	// Requested → UserResolved
	user, ok, err := o.store.LookupUser(telegramID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve user: %w", err)
	}
	if !ok {
		log.Warn("verification by unregistered user")
		return Outcome{Status: StatusNotRegistered, TaskID: taskID}, nil
	}

	task, ok, err := o.store.GetTask(taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve task: %w", err)
	}
	if !ok {
		log.Warn("verification for unknown task")
		return Outcome{Status: StatusUnknownTask, TaskID: taskID}, nil
	}

	// UserResolved → EvidenceGathering, unless already claimed. The
	// short-circuit keeps repeat clicks from re-invoking the provider.
	claimed, err := o.store.HasClaimed(taskID, telegramID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check claim: %w", err)
	}
	if claimed {
		log.Info("already claimed, short-circuiting")
		return Outcome{Status: StatusAlreadyClaimed, TaskID: taskID}, nil
	}

	log.Info("gathering evidence", zap.String("handle", user.XHandle))

	reply, err := o.checkReplyWithReauth(ctx, user.XHandle, task.PostURL)
	if err != nil {
		log.Warn("reply check failed", zap.Error(err))
		return Outcome{}, err
	}

	retweeted, err := o.checkRetweetWithReauth(ctx, user.XHandle, task.PostURL)
	if err != nil {
		log.Warn("retweet check failed", zap.Error(err))
		return Outcome{}, err
	}

	out := Outcome{
		TaskID:           taskID,
		ReplySatisfied:   reply.Satisfied,
		RetweetSatisfied: retweeted,
		Citation:         reply.CitationURL,
	}

	// Decided: both conditions must hold; partial success is a rejection.
	if !reply.Satisfied || !retweeted {
		out.Status = StatusRejected
		log.Info("verification rejected",
			zap.Bool("reply", reply.Satisfied),
			zap.Bool("retweet", retweeted))
		return out, nil
	}

	// Decided → Committed. The ledger re-checks atomically; losing the
	// race to a concurrent attempt is a rejection, not an error.
	switch err := o.store.RecordClaim(taskID, telegramID); {
	case err == nil:
		out.Status = StatusCommitted
		out.Reward = task.Reward
		log.Info("claim committed", zap.Float64("reward", task.Reward))
		return out, nil
	case errors.Is(err, store.ErrAlreadyClaimed):
		out.Status = StatusRejected
		log.Warn("lost claim race to concurrent attempt")
		return out, nil
	case errors.Is(err, store.ErrUnknownTask):
		out.Status = StatusUnknownTask
		return out, nil
	default:
		return Outcome{}, fmt.Errorf("record claim: %w", err)
	}
}

// checkReplyWithReauth runs the reply check, allowing one re-authentication
// retry when the session turns out to be stale.
func (o *Orchestrator) checkReplyWithReauth(ctx context.Context, handle, postURL string) (evidence.Result, error) {
	res, err := o.provider.CheckReplyKeyword(ctx, handle, postURL, o.keyword)
	if !errors.Is(err, evidence.ErrUnavailable) {
		return res, err
	}
	if err := o.reauthenticate(ctx, err); err != nil {
		return evidence.Result{}, err
	}
	return o.provider.CheckReplyKeyword(ctx, handle, postURL, o.keyword)
}

// checkRetweetWithReauth mirrors checkReplyWithReauth for the retweet check.
func (o *Orchestrator) checkRetweetWithReauth(ctx context.Context, handle, postURL string) (bool, error) {
	ok, err := o.provider.CheckRetweet(ctx, handle, postURL)
	if !errors.Is(err, evidence.ErrUnavailable) {
		return ok, err
	}
	if err := o.reauthenticate(ctx, err); err != nil {
		return false, err
	}
	return o.provider.CheckRetweet(ctx, handle, postURL)
}

// reauthenticate performs the single allowed re-authentication. cause is
// the ErrUnavailable that triggered it; a failed re-auth keeps it in the
// error chain so the caller still sees the taxonomy.
func (o *Orchestrator) reauthenticate(ctx context.Context, cause error) error {
	o.log.Info("session unavailable, re-authenticating once")
	if o.reauth == nil {
		return cause
	}
	if err := o.reauth.Reauthenticate(ctx); err != nil {
		return fmt.Errorf("re-authentication failed after %w: %v", cause, err)
	}
	return nil
}
