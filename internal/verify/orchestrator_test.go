package verify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/evidence"
	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore is an in-memory Store for orchestrator tests.
type fakeStore struct {
	mu     sync.Mutex
	users  map[int64]store.User
	tasks  map[int64]store.Task
	claims map[[2]int64]bool

	recordErr error // forced RecordClaim result, when non-nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int64]store.User),
		tasks:  make(map[int64]store.Task),
		claims: make(map[[2]int64]bool),
	}
}

func (f *fakeStore) LookupUser(id int64) (store.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return u, ok, nil
}

func (f *fakeStore) GetTask(id int64) (store.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok, nil
}

func (f *fakeStore) HasClaimed(taskID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims[[2]int64{taskID, userID}], nil
}

func (f *fakeStore) RecordClaim(taskID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	key := [2]int64{taskID, userID}
	if f.claims[key] {
		return store.ErrAlreadyClaimed
	}
	f.claims[key] = true
	return nil
}

// fakeProvider scripts evidence answers and counts invocations.
type fakeProvider struct {
	mu sync.Mutex

	replyResult evidence.Result
	replyErrs   []error // consumed one per call, then nil
	replyCalls  int

	retweetResult bool
	retweetErrs   []error
	retweetCalls  int
}

func (f *fakeProvider) CheckReplyKeyword(ctx context.Context, handle, postURL, keyword string) (evidence.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyCalls++
	if len(f.replyErrs) > 0 {
		err := f.replyErrs[0]
		f.replyErrs = f.replyErrs[1:]
		if err != nil {
			return evidence.Result{}, err
		}
	}
	return f.replyResult, nil
}

func (f *fakeProvider) CheckRetweet(ctx context.Context, handle, postURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retweetCalls++
	if len(f.retweetErrs) > 0 {
		err := f.retweetErrs[0]
		f.retweetErrs = f.retweetErrs[1:]
		if err != nil {
			return false, err
		}
	}
	return f.retweetResult, nil
}

type fakeReauth struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReauth) Reauthenticate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func seeded() (*fakeStore, *fakeProvider, *fakeReauth) {
	st := newFakeStore()
	st.users[100] = store.User{TelegramID: 100, XHandle: "alice_x"}
	st.tasks[7] = store.Task{ID: 7, PostURL: "https://x.com/acct/status/999", Reward: 10}
	return st, &fakeProvider{}, &fakeReauth{}
}

func TestVerify_ANDPolicy(t *testing.T) {
	cases := []struct {
		name    string
		reply   bool
		retweet bool
		want    Status
	}{
		{"both satisfied", true, true, StatusCommitted},
		{"reply only", true, false, StatusRejected},
		{"retweet only", false, true, StatusRejected},
		{"neither", false, false, StatusRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, provider, reauth := seeded()
			provider.replyResult = evidence.Result{Satisfied: tc.reply, CitationURL: "https://x.com/alice_x/status/1000"}
			provider.retweetResult = tc.retweet

			o := New(st, provider, reauth, "$Broke", nil)
			out, err := o.Verify(context.Background(), 100, 7)
			require.NoError(t, err)

			want := Outcome{
				Status:           tc.want,
				TaskID:           7,
				ReplySatisfied:   tc.reply,
				RetweetSatisfied: tc.retweet,
				Citation:         "https://x.com/alice_x/status/1000",
			}
			if tc.want == StatusCommitted {
				want.Reward = 10
			}
			if diff := cmp.Diff(want, out); diff != "" {
				t.Errorf("outcome mismatch (-want +got):\n%s", diff)
			}

			claimed, _ := st.HasClaimed(7, 100)
			assert.Equal(t, tc.want == StatusCommitted, claimed)
		})
	}
}

func TestVerify_NotRegistered(t *testing.T) {
	st, provider, reauth := seeded()
	delete(st.users, 100)

	o := New(st, provider, reauth, "$Broke", nil)
	out, err := o.Verify(context.Background(), 100, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusNotRegistered, out.Status)
	assert.Zero(t, provider.replyCalls, "no evidence gathered for unregistered users")
}

func TestVerify_UnknownTask(t *testing.T) {
	st, provider, reauth := seeded()

	o := New(st, provider, reauth, "$Broke", nil)
	out, err := o.Verify(context.Background(), 100, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknownTask, out.Status)
	assert.Zero(t, provider.replyCalls)
}

func TestVerify_IdempotentRetry(t *testing.T) {
	st, provider, reauth := seeded()
	provider.replyResult = evidence.Result{Satisfied: true}
	provider.retweetResult = true

	o := New(st, provider, reauth, "$Broke", nil)

	out, err := o.Verify(context.Background(), 100, 7)
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, out.Status)
	callsAfterFirst := provider.replyCalls

	// Second click short-circuits before any evidence gathering.
	for i := 0; i < 2; i++ {
		out, err = o.Verify(context.Background(), 100, 7)
		require.NoError(t, err)
		assert.Equal(t, StatusAlreadyClaimed, out.Status)
	}
	assert.Equal(t, callsAfterFirst, provider.replyCalls, "provider must not be re-invoked")
	assert.Equal(t, callsAfterFirst, provider.retweetCalls)
}

func TestVerify_ReauthRetryOnUnavailable(t *testing.T) {
	st, provider, reauth := seeded()
	provider.replyErrs = []error{evidence.ErrUnavailable, nil}
	provider.replyResult = evidence.Result{Satisfied: true}
	provider.retweetResult = true

	o := New(st, provider, reauth, "$Broke", nil)
	out, err := o.Verify(context.Background(), 100, 7)
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, out.Status)
	assert.Equal(t, 1, reauth.calls, "exactly one re-authentication")
	assert.Equal(t, 2, provider.replyCalls, "check retried once after re-auth")
}

func TestVerify_ReauthFailureEscalates(t *testing.T) {
	st, provider, reauth := seeded()
	provider.replyErrs = []error{evidence.ErrUnavailable}
	reauth.err = errors.New("login form changed")

	o := New(st, provider, reauth, "$Broke", nil)
	_, err := o.Verify(context.Background(), 100, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, evidence.ErrUnavailable)

	claimed, _ := st.HasClaimed(7, 100)
	assert.False(t, claimed, "failed attempts must not record claims")
	assert.Equal(t, 1, provider.replyCalls, "no retry without a successful re-auth")
}

func TestVerify_TimeoutFails(t *testing.T) {
	st, provider, reauth := seeded()
	provider.replyErrs = []error{evidence.ErrTimeout}

	o := New(st, provider, reauth, "$Broke", nil)
	_, err := o.Verify(context.Background(), 100, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, evidence.ErrTimeout)
	assert.Zero(t, reauth.calls, "timeouts do not trigger re-authentication")
}

func TestVerify_ClaimRaceIsRejectedNotError(t *testing.T) {
	st, provider, reauth := seeded()
	provider.replyResult = evidence.Result{Satisfied: true}
	provider.retweetResult = true
	st.recordErr = store.ErrAlreadyClaimed

	o := New(st, provider, reauth, "$Broke", nil)
	out, err := o.Verify(context.Background(), 100, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
}

// TestVerify_TaskSevenScenario runs the end-to-end scenario against the
// real SQLite store: alice replies "gm $Broke" under a thread rooted at
// status 999, retweets it, and claims task #7 for a reward of 10.
func TestVerify_TaskSevenScenario(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "scenario.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.RegisterUser(100, "alice_x")
	require.NoError(t, err)
	for i := 1; i < 7; i++ {
		_, err = st.CreateTask("https://x.com/acct/status/1", 1)
		require.NoError(t, err)
	}
	task, err := st.CreateTask("https://x.com/acct/status/999", 10)
	require.NoError(t, err)
	require.Equal(t, int64(7), task.ID)

	provider := &fakeProvider{
		replyResult:   evidence.Result{Satisfied: true, CitationURL: "https://x.com/alice_x/status/1234"},
		retweetResult: true,
	}

	o := New(st, provider, &fakeReauth{}, "$Broke", nil)
	out, err := o.Verify(context.Background(), 100, 7)
	require.NoError(t, err)

	assert.Equal(t, StatusCommitted, out.Status)
	assert.Equal(t, 10.0, out.Reward)

	claimed, err := st.HasClaimed(7, 100)
	require.NoError(t, err)
	assert.True(t, claimed)
}
