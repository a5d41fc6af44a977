//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/domain/outbox"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	outboxsvc "github.com/NordCoder/Feedwatch/internal/outbox"
	pg "github.com/NordCoder/Feedwatch/internal/repository/postgres"
	"github.com/NordCoder/Feedwatch/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openPG(t *testing.T, cfg Cfg) *pg.DB {
	t.Helper()
	db, err := pg.NewDB(context.Background(), pg.Config{URL: cfg.DBDSN, QueryTimeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestPostgres_RegistryReadsSeededOverride(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	db := openPG(t, cfg)
	ctx := context.Background()

	tag := RandTag("reg")
	SeedOverride(t, sqlDB, tag, `{"apiEndpoint":"https://api.local/items","checkInterval":120000,"enableSms":true}`)

	repo := pg.NewEndpointRepo(db, pg.NewTransactor(db, zap.NewNop()))
	reg, err := registry.New(repo, endpoint.GlobalSettings{SMSEndpoint: "http://gw/sms"}, nil)
	require.NoError(t, err)

	got, err := reg.Get(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, "https://api.local/items", got.APIEndpoint)
	assert.Equal(t, int64(120000), got.CheckIntervalMs)
	assert.Equal(t, "http://gw/sms", got.SMSEndpoint)

	require.NoError(t, reg.SetActive(ctx, tag, true))
	active, err := reg.ActiveTags(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, tag)

	res, err := reg.Remove(ctx, tag)
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	_, err = reg.Get(ctx, tag)
	assert.ErrorIs(t, err, endpoint.ErrNotFound)
}

func TestPostgres_StateRoundTrip(t *testing.T) {
	cfg := LoadCfg()
	db := openPG(t, cfg)
	ctx := context.Background()
	repo := pg.NewStateRepo(db)
	tag := RandTag("state")

	st, err := repo.Load(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, state.New().LastAPIStatus, st.LastAPIStatus)

	st.Mute(time.Now().Add(30 * time.Minute))
	st.AddMuted("a", "b")
	require.NoError(t, repo.Save(ctx, tag, st))

	again, err := repo.Load(ctx, tag)
	require.NoError(t, err)
	assert.True(t, again.MuteItems)
	assert.ElementsMatch(t, []string{"a", "b"}, again.MutedIDs)

	require.NoError(t, repo.Delete(ctx, tag))
}

func TestPostgres_NotificationHistory(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	db := openPG(t, cfg)
	ctx := context.Background()
	repo := pg.NewNotificationRepo(db)
	tag := RandTag("hist")

	for _, to := range []string{"+1", "+2"} {
		require.NoError(t, repo.Create(ctx, &notification.Notification{
			EndpointTag: tag,
			Channel:     notification.ChannelSMS,
			Kind:        notification.KindItems,
			Recipient:   to,
			Payload:     "2 items",
		}))
	}
	assert.Equal(t, 2, CountNotifications(t, sqlDB, tag))

	list, err := repo.ListByEndpoint(ctx, tag, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tag, list[0].EndpointTag)
}

func TestPostgres_UpdateOverrideIsAtomic(t *testing.T) {
	cfg := LoadCfg()
	db := openPG(t, cfg)
	ctx := context.Background()
	repo := pg.NewEndpointRepo(db, pg.NewTransactor(db, zap.NewNop()))
	tag := RandTag("upd")

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.UpdateOverride(ctx, tag, func(cur []byte) ([]byte, error) {
				doc := map[string]int{}
				if cur != nil {
					if err := json.Unmarshal(cur, &doc); err != nil {
						return nil, err
					}
				}
				doc["n"]++
				time.Sleep(10 * time.Millisecond)
				return json.Marshal(doc)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	raw, err := repo.GetOverride(ctx, tag)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":8}`, string(raw))
	require.NoError(t, repo.Purge(ctx, tag))
}

func TestPostgres_OutboxRelaysEvent(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := DBOpen(t, cfg.DBDSN)
	db := openPG(t, cfg)
	repo := pg.NewOutboxRepo(db)

	ev := events.Event{ID: RandTag("ev"), Kind: events.KindMuted, Tag: "pro", At: time.Now().UTC()}
	require.NoError(t, outboxsvc.NewPublisher(repo).Publish(context.Background(), ev))
	assert.Equal(t, string(outbox.StatusCreated), OutboxStatus(t, sqlDB, ev.ID))

	got := make(chan events.Event, 1)
	sink := publisherFunc(func(_ context.Context, e events.Event) error {
		if e.ID == ev.ID {
			got <- e
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := outboxsvc.NewOutboxRunner(zap.NewNop(), repo,
		outboxsvc.MakeGlobalOutboxHandler(sink, testPolicy()),
		outboxsvc.Config{Workers: 1, BatchSize: 50, WaitTime: 100 * time.Millisecond, InProgressTTL: time.Minute})
	runner.Start(ctx)

	select {
	case e := <-got:
		assert.Equal(t, events.KindMuted, e.Kind)
	case <-time.After(15 * time.Second):
		t.Fatal("event not relayed")
	}
	require.Eventually(t, func() bool {
		return OutboxStatus(t, sqlDB, ev.ID) == string(outbox.StatusSuccess)
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	runner.Wait()

	n, err := repo.Purge(context.Background(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	assert.Equal(t, "", OutboxStatus(t, sqlDB, ev.ID))
}
