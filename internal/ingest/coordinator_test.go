package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// readyReporter 所有账号就绪后取消上下文
type readyReporter struct {
	mu      sync.Mutex
	want    int
	ready   []string
	reports []BackfillReport
	cancel  context.CancelFunc
}

func (r *readyReporter) BackfillFinished(_ context.Context, _ string, _ *models.ResolvedChat, report BackfillReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *readyReporter) AccountReady(_ context.Context, account string, _ []*models.ResolvedChat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, account)
	if len(r.ready) >= r.want {
		r.cancel()
	}
}

func testAccount(name string) models.Account {
	return models.Account{
		Name:    name,
		AppID:   12345,
		AppHash: "hash",
		Phone:   "+998900000000",
		Groups:  []models.GroupRef{{Kind: models.GroupRefByID, ID: testChatID, Value: "-1001234567890"}},
	}
}

type dialRecorder struct {
	mu       sync.Mutex
	dialed   []string
	sessions map[string]*fakeSession
	failFor  map[string]error
}

func (d *dialRecorder) dial(_ context.Context, acc models.Account) (platform.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, acc.Name)
	if err := d.failFor[acc.Name]; err != nil {
		return nil, err
	}
	return d.sessions[acc.Name], nil
}

func testConfig() Config {
	return Config{
		Backfill: BackfillConfig{Batch: BatcherConfig{Size: 10}, PageSize: 100},
		Live:     LiveConfig{QueueSize: 4},
	}
}

func runUntilDone(t *testing.T, run func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- run() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
		return nil
	}
}

func TestCoordinatorSkipsIncompleteAccount(t *testing.T) {
	session := seededSession()
	session.byID[testChatID] = &testChat().Info

	dialer := &dialRecorder{sessions: map[string]*fakeSession{"acc_1": session}}
	store := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter := &readyReporter{want: 1, cancel: cancel}

	incomplete := testAccount("acc_2")
	incomplete.Phone = ""

	c := NewCoordinator(dialer.dial, store, testConfig(), nil, reporter)
	err := runUntilDone(t, func() error {
		return c.Run(ctx, []models.Account{testAccount("acc_1"), incomplete})
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"acc_1"}, dialer.dialed)
	assert.Equal(t, []string{"acc_1"}, reporter.ready)
	assert.Equal(t, []int64{1, 3, 4}, store.ids(testChatID))
	require.Len(t, reporter.reports, 1)
	assert.Equal(t, 3, reporter.reports[0].Saved)
	assert.Equal(t, []int64{testChatID}, session.subscribed)
	assert.True(t, session.stopped)
}

func TestCoordinatorNoUsableAccounts(t *testing.T) {
	dialer := &dialRecorder{}
	c := NewCoordinator(dialer.dial, newMemStore(), testConfig(), nil, nil)

	acc := testAccount("acc_1")
	acc.AppHash = ""

	err := c.Run(context.Background(), []models.Account{acc})
	assert.ErrorIs(t, err, ErrNoAccounts)
	assert.Empty(t, dialer.dialed)

	err = c.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestCoordinatorAccountsAreIndependent(t *testing.T) {
	good := seededSession()
	good.byID[testChatID] = &testChat().Info

	broken := newFakeSession("acc_3")
	broken.startErr = errors.New("auth failed")

	dialer := &dialRecorder{
		sessions: map[string]*fakeSession{"acc_1": good, "acc_3": broken},
		failFor:  map[string]error{"acc_2": errors.New("no session file")},
	}
	store := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter := &readyReporter{want: 1, cancel: cancel}

	c := NewCoordinator(dialer.dial, store, testConfig(), nil, reporter)
	err := runUntilDone(t, func() error {
		return c.Run(ctx, []models.Account{testAccount("acc_1"), testAccount("acc_2"), testAccount("acc_3")})
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"acc_1", "acc_2", "acc_3"}, dialer.dialed)
	assert.Equal(t, []string{"acc_1"}, reporter.ready)
	assert.Equal(t, 3, store.count())
	assert.False(t, broken.stopped)
}

func TestCoordinatorLiveAfterBackfill(t *testing.T) {
	session := seededSession()
	session.byID[testChatID] = &testChat().Info
	dialer := &dialRecorder{sessions: map[string]*fakeSession{"acc_1": session}}
	store := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 就绪后推送一条实时消息，再停止
	reporter := &readyReporter{want: 1, cancel: func() {
		go func() {
			session.deliver(context.Background(), rawMessage(9, "live message arrives"))
			cancel()
		}()
	}}

	c := NewCoordinator(dialer.dial, store, testConfig(), nil, reporter)
	err := runUntilDone(t, func() error {
		return c.Run(ctx, []models.Account{testAccount("acc_1")})
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 4, 9}, store.ids(testChatID))
}

func TestCoordinatorResolvesHandle(t *testing.T) {
	const newsID int64 = -1009876543210
	news := &models.ChatInfo{ID: newsID, Type: models.ChatTypeSupergroup, Title: "News", Username: "news"}

	session := newFakeSession("acc_1")
	session.byHandle["@news"] = news
	session.history[newsID] = []*models.RawMessage{
		{ID: 2, ChatID: newsID, Text: "second headline today", Date: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
		{ID: 1, ChatID: newsID, Text: "first headline", Date: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	dialer := &dialRecorder{sessions: map[string]*fakeSession{"acc_1": session}}
	store := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter := &readyReporter{want: 1, cancel: cancel}

	ref, err := models.ParseGroupRef("@news")
	require.NoError(t, err)
	acc := testAccount("acc_1")
	acc.Groups = []models.GroupRef{ref}

	c := NewCoordinator(dialer.dial, store, testConfig(), nil, reporter)
	err = runUntilDone(t, func() error {
		return c.Run(ctx, []models.Account{acc})
	})
	require.NoError(t, err)

	assert.Equal(t, 1, session.count("ChatByHandle"))
	assert.Equal(t, 0, session.count("ChatByID"))
	assert.Equal(t, []int64{1, 2}, store.ids(newsID))
	assert.Equal(t, []int64{newsID}, session.subscribed)

	rec := store.get(newsID, 2)
	require.NotNil(t, rec)
	assert.Equal(t, "News", rec.ChatName)
	assert.Equal(t, "https://t.me/c/9876543210/2", rec.URL)
}
