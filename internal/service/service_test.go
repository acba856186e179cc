package service

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/cache"
	"SafeCircle/pkg/notification"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, models.ServerZone)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentPush struct {
	token string
	msg   notification.Message
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentPush
	failFor map[string]bool
}

func (f *fakeSender) Send(_ context.Context, token string, msg notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[token] {
		return stderrors.New("unregistered token")
	}
	f.sent = append(f.sent, sentPush{token: token, msg: msg})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) reset() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "svc.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, c cache.Cache, sender notification.Sender, clock *testClock, opts Options) *Service {
	t.Helper()
	opts.Clock = clock.Now
	svc, err := New(db, c, sender, nil, nil, nil, opts)
	require.NoError(t, err)
	return svc
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestRegistryUsesCache(t *testing.T) {
	db := openTestDB(t)
	c, err := cache.NewCache(cache.DefaultConfig())
	require.NoError(t, err)
	svc := newTestService(t, db, c, &fakeSender{}, newTestClock(), Options{})
	ctx := context.Background()

	id, err := svc.Registry.Register(ctx, "alice", "d1")
	require.NoError(t, err)
	v, ok := c.Get(ctx, "device:d1")
	require.True(t, ok)
	assert.Equal(t, id, v)

	again, err := svc.Registry.Register(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = svc.Registry.Register(ctx, "", "d1")
	assert.ErrorIs(t, err, models.ErrMissingFields)
}

func TestRegistryWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Type = "redis"
	cfg.Redis.Addr = mr.Addr()
	c, err := cache.NewCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	svc := newTestService(t, openTestDB(t), c, &fakeSender{}, newTestClock(), Options{})
	ctx := context.Background()

	id, err := svc.Registry.Register(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("device:d1"))

	again, err := svc.Registry.Register(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestLedgerReport(t *testing.T) {
	svc := newTestService(t, openTestDB(t), nil, &fakeSender{}, newTestClock(), Options{})
	ctx := context.Background()

	lat, lon := 12.9, 77.6
	require.NoError(t, svc.Ledger.Report(ctx, models.LocationReport{UserID: 1, Username: "alice", Latitude: &lat, Longitude: &lon, Timestamp: 1000}))
	require.NoError(t, svc.Ledger.Report(ctx, models.LocationReport{UserID: 1, Username: "alice", Timestamp: 1100, Token: strp("tok")}))

	recs, err := svc.Ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 12.9, *recs[0].Latitude)
	assert.Equal(t, "tok", *recs[0].NotificationToken)
}

func TestDispatchCircleUntilAcknowledged(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{failFor: map[string]bool{"bad": true}}
	svc := newTestService(t, db, nil, sender, newTestClock(), Options{})
	ctx := context.Background()

	alice := &models.AlertSubject{Username: "alice", FCMToken: strp("tok-a")}
	require.NoError(t, svc.Dispatcher.AddSubject(ctx, alice))
	require.NoError(t, svc.Dispatcher.AddSubject(ctx, &models.AlertSubject{Username: "broken", FCMToken: strp("bad")}))
	bob := &models.AlertSubject{Username: "bob", FCMToken: strp("tok-b")}
	require.NoError(t, svc.Dispatcher.AddSubject(ctx, bob))

	for i := 0; i < 2; i++ {
		sent, failed := svc.Dispatcher.Tick(ctx)
		assert.Equal(t, 2, sent)
		assert.Equal(t, 1, failed)
	}
	pushes := sender.reset()
	require.Len(t, pushes, 4)
	assert.Equal(t, "tok-a", pushes[0].token)
	assert.Equal(t, notification.SafetyAlertTitle, pushes[0].msg.Title)
	assert.Equal(t, notification.SafetyAlertBody, pushes[0].msg.Body)
	assert.Equal(t, "1", pushes[0].msg.Data["referenceId"])

	require.NoError(t, svc.Dispatcher.RecordResponse(ctx, alice.ID, boolp(true), strp("home")))
	sent, _ := svc.Dispatcher.Tick(ctx)
	assert.Equal(t, 1, sent)
	pushes = sender.reset()
	require.Len(t, pushes, 1)
	assert.Equal(t, "tok-b", pushes[0].token)

	// 未匹配的引用同样成功
	require.NoError(t, svc.Dispatcher.RecordResponse(ctx, 12345, boolp(true), nil))
	assert.ErrorIs(t, svc.Dispatcher.RecordResponse(ctx, 0, boolp(true), nil), models.ErrMissingFields)
}

func TestDispatchLocationsSource(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, db, nil, sender, newTestClock(), Options{DispatchSource: SourceLocations})
	ctx := context.Background()

	require.NoError(t, svc.Ledger.Report(ctx, models.LocationReport{UserID: 5, Username: "eve", Timestamp: 1, Token: strp("tok-e")}))
	require.NoError(t, svc.Ledger.Report(ctx, models.LocationReport{UserID: 6, Username: "no-token", Timestamp: 1}))

	sent, failed := svc.Dispatcher.Tick(ctx)
	assert.Equal(t, 1, sent)
	assert.Zero(t, failed)
	assert.Equal(t, "5", sender.reset()[0].msg.Data["referenceId"])

	require.NoError(t, svc.Dispatcher.RecordResponse(ctx, 5, boolp(true), nil))
	sent, _ = svc.Dispatcher.Tick(ctx)
	assert.Zero(t, sent)
}

func TestUnknownDispatchSource(t *testing.T) {
	_, err := New(openTestDB(t), nil, &fakeSender{}, nil, nil, nil, Options{DispatchSource: "sms"})
	assert.Error(t, err)
}

func TestDispatchMigratesMissingTable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&models.AlertSubject{}))
	svc := newTestService(t, db, nil, &fakeSender{}, newTestClock(), Options{})

	sent, failed := svc.Dispatcher.Tick(context.Background())
	assert.Zero(t, sent)
	assert.Zero(t, failed)
	assert.True(t, db.Migrator().HasTable(&models.AlertSubject{}))
}

func TestSweepResolvesStaleSessions(t *testing.T) {
	db := openTestDB(t)
	clock := newTestClock()
	svc := newTestService(t, db, nil, &fakeSender{}, clock, Options{StaleAfter: 120 * time.Second})
	ctx := context.Background()

	stale, err := svc.Sessions.Create(ctx, models.NewSession{SubjectUserID: 1, SubjectUsername: "alice", RescuerID: 2, Lat: 1, Lon: 1, Timestamp: 1000})
	require.NoError(t, err)
	clock.Advance(60 * time.Second)
	fresh, err := svc.Sessions.Create(ctx, models.NewSession{SubjectUserID: 3, SubjectUsername: "bob", RescuerID: 2, Lat: 1, Lon: 1, Timestamp: 2000})
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	n, err := svc.Sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(time.Second)
	n, err = svc.Sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Sessions.Get(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
	got, err = svc.Sessions.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)

	assert.ErrorIs(t, svc.Sessions.UpdatePosition(ctx, stale, 2, 2, 3000), models.ErrSessionNotFound)
	require.NoError(t, svc.Sessions.UpdatePosition(ctx, fresh, 2, 2, 3000))
}

func TestSweepMigratesMissingTable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&models.SOSSession{}))
	svc := newTestService(t, db, nil, &fakeSender{}, newTestClock(), Options{})

	n, err := svc.Sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, db.Migrator().HasTable(&models.SOSSession{}))
}

func TestStartStop(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, db, nil, sender, newTestClock(), Options{
		DispatchInterval: 20 * time.Millisecond,
		SweepSchedule:    "@every 1s",
	})
	require.NoError(t, svc.Dispatcher.AddSubject(context.Background(), &models.AlertSubject{Username: "alice", FCMToken: strp("tok")}))

	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool { return sender.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
	svc.Stop()
	after := sender.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, sender.count())
	svc.Stop()
}

func TestStartStopsWithContext(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, openTestDB(t), nil, sender, newTestClock(), Options{DispatchInterval: 10 * time.Millisecond})
	require.NoError(t, svc.Dispatcher.AddSubject(context.Background(), &models.AlertSubject{Username: "alice", FCMToken: strp("tok")}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	require.Eventually(t, func() bool { return sender.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.sched == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweepTimeoutStaysBelowSchedulePeriod(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc, err := New(openTestDB(t), nil, &fakeSender{}, nil, nil, zap.New(core), Options{
		SweepSchedule: "@every 60s",
		SweepTimeout:  5 * time.Minute,
		StaleAfter:    120 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	started := logs.FilterMessage("background tasks started").All()
	require.Len(t, started, 1)
	fields := started[0].ContextMap()
	assert.Equal(t, 48*time.Second, fields["sweep_timeout"])
	assert.Equal(t, 120*time.Second, fields["stale_after"])
}

func TestStartRejectsBadSchedule(t *testing.T) {
	svc := newTestService(t, openTestDB(t), nil, &fakeSender{}, newTestClock(), Options{SweepSchedule: "not a schedule"})
	assert.Error(t, svc.Start(context.Background()))
}

func TestIsMissingTable(t *testing.T) {
	assert.True(t, isMissingTable(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, isMissingTable(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isMissingTable(&mysql.MySQLError{Number: 1146}))
	assert.False(t, isMissingTable(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isMissingTable(stderrors.New("SQL logic error: no such table: sos (1)")))
	assert.False(t, isMissingTable(stderrors.New("connection refused")))
	assert.False(t, isMissingTable(nil))
}
