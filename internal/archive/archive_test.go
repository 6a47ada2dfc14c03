package archive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	migrations "github.com/dropDatabas3/datastreams/migrations/postgres"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu         sync.Mutex
	execs      []execCall
	maxVersion int
	failOn     string
	commits    int
	rollbacks  int
}

// fakeTx delega Exec en el fakeDB y cuenta commits/rollbacks.
type fakeTx struct {
	pgx.Tx
	db     *fakeDB
	closed bool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.db.Exec(ctx, sql, args...)
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.closed = true
	tx.db.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.closed = true
	tx.db.rollbacks++
	return nil
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return intRow(f.maxVersion)
}

func (f *fakeDB) calls() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execCall(nil), f.execs...)
}

type intRow int

func (r intRow) Scan(dest ...any) error {
	*(dest[0].(*int)) = int(r)
	return nil
}

func stateWithStream(t *testing.T, prev *metadata.ClusterState, name string) *metadata.ClusterState {
	t.Helper()
	im := &metadata.IndexMetadata{Index: metadata.Index{Name: ".ds-" + name + "-000001"}}
	ds := metadata.NewDataStream(name, metadata.TimestampField{Name: "@timestamp"}, []metadata.Index{im.Index})
	md, err := prev.Metadata.Builder().PutIndex(im).PutDataStream(ds).Build()
	require.NoError(t, err)
	next := prev.Builder().Metadata(md).Build()
	return next.WithNextVersion(prev)
}

func TestRecordsFrom(t *testing.T) {
	prev := metadata.NewClusterState("test", metadata.DiscoveryNodes{})
	mid := stateWithStream(t, prev, "logs-b")
	next := stateWithStream(t, mid, "logs-a")
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("ART", -3*3600))

	recs := RecordsFrom(cluster.ChangedEvent{Source: "create-data-stream [logs-a]", Previous: mid, State: next}, now)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "logs-a", r.DataStream)
	assert.Equal(t, ".ds-logs-a-000001", r.BackingIndex)
	assert.Equal(t, "@timestamp", r.TimestampField)
	assert.Equal(t, int64(1), r.Generation)
	assert.Equal(t, next.Version, r.StateVersion)
	assert.Equal(t, next.Metadata.ClusterUUID, r.ClusterUUID)
	assert.Equal(t, time.UTC, r.CreatedAt.Location())

	// sin estado previo todos los data streams son nuevos, ordenados por nombre
	all := RecordsFrom(cluster.ChangedEvent{State: next}, now)
	require.Len(t, all, 2)
	assert.Equal(t, "logs-a", all[0].DataStream)
	assert.Equal(t, "logs-b", all[1].DataStream)

	assert.Empty(t, RecordsFrom(cluster.ChangedEvent{Previous: next, State: next}, now))
}

func TestArchive_ListenerInsertsOffThread(t *testing.T) {
	db := &fakeDB{}
	a := newArchive(db, 4)

	prev := metadata.NewClusterState("test", metadata.DiscoveryNodes{})
	next := stateWithStream(t, prev, "metrics-x")
	a.Listener()(cluster.ChangedEvent{Source: "create-data-stream [metrics-x]", Previous: prev, State: next})
	a.Close()

	calls := db.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].sql, "INSERT INTO data_stream_creations")
	assert.Contains(t, calls[0].sql, "ON CONFLICT")
	assert.Equal(t, "metrics-x", calls[0].args[1])
	assert.Equal(t, ".ds-metrics-x-000001", calls[0].args[2])

	// después de Close el listener no encola ni entra en pánico
	a.Listener()(cluster.ChangedEvent{State: stateWithStream(t, next, "late")})
	assert.Len(t, db.calls(), 1)
}

func TestArchive_InsertFailureDoesNotStopWorker(t *testing.T) {
	db := &fakeDB{failOn: "INSERT INTO data_stream_creations"}
	a := newArchive(db, 4)
	prev := metadata.NewClusterState("test", metadata.DiscoveryNodes{})
	a.Listener()(cluster.ChangedEvent{Previous: prev, State: stateWithStream(t, prev, "a")})
	a.Close()
	assert.Empty(t, db.calls())
}

func TestMigrator_ParseMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"archive/0002_second.sql": {Data: []byte("SELECT 2;")},
		"archive/0001_first.sql":  {Data: []byte("SELECT 1;")},
		"archive/README.md":       {Data: []byte("ignored")},
	}
	migs, err := NewMigrator(fsys, "archive").ParseMigrations()
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, 1, migs[0].Version)
	assert.Equal(t, "first", migs[0].Name)
	assert.Equal(t, "second", migs[1].Name)

	fsys["archive/0002_dup.sql"] = &fstest.MapFile{Data: []byte("SELECT 3;")}
	_, err = NewMigrator(fsys, "archive").ParseMigrations()
	require.Error(t, err)
}

func TestMigrator_EmbeddedArchiveMigrations(t *testing.T) {
	migs, err := NewMigrator(migrations.ArchiveFS, migrations.ArchiveDir).ParseMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Contains(t, migs[0].SQL, "data_stream_creations")
}

func TestMigrator_RunSkipsApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"archive/0001_first.sql":  {Data: []byte("CREATE TABLE one ();")},
		"archive/0002_second.sql": {Data: []byte("CREATE TABLE two ();")},
	}
	db := &fakeDB{maxVersion: 1}
	res, err := NewMigrator(fsys, "archive").Run(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Applied)
	assert.Equal(t, []int{1}, res.Skipped)

	calls := db.calls()
	require.Len(t, calls, 3) // tabla de tracking, migración, registro
	assert.Contains(t, calls[0].sql, migrationsTable)
	assert.Equal(t, "CREATE TABLE two ();", calls[1].sql)
	assert.Equal(t, []any{2, "second"}, calls[2].args)
}

func TestMigrator_RunReportsFailure(t *testing.T) {
	fsys := fstest.MapFS{"archive/0001_bad.sql": {Data: []byte("BROKEN")}}
	db := &fakeDB{failOn: "BROKEN"}
	res, err := NewMigrator(fsys, "archive").Run(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applying migration 0001_bad")
	assert.Empty(t, res.Applied)
	assert.Equal(t, 1, db.rollbacks)
	assert.Zero(t, db.commits)
}

func TestMigrator_RunRollsBackWhenRecordFails(t *testing.T) {
	fsys := fstest.MapFS{
		"archive/0001_first.sql":  {Data: []byte("CREATE TABLE one ();")},
		"archive/0002_second.sql": {Data: []byte("CREATE TABLE two ();")},
	}
	db := &fakeDB{maxVersion: 1, failOn: "INSERT INTO " + migrationsTable}
	res, err := NewMigrator(fsys, "archive").Run(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applying migration 0002_second: recording")
	assert.Empty(t, res.Applied)
	assert.Equal(t, 1, db.rollbacks, "migration and its record share one transaction")
	assert.Zero(t, db.commits)
}

func TestMigrator_RunCommitsEachMigration(t *testing.T) {
	fsys := fstest.MapFS{
		"archive/0001_first.sql":  {Data: []byte("CREATE TABLE one ();")},
		"archive/0002_second.sql": {Data: []byte("CREATE TABLE two ();")},
	}
	db := &fakeDB{}
	res, err := NewMigrator(fsys, "archive").Run(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Applied)
	assert.Equal(t, 2, db.commits)
	assert.Zero(t, db.rollbacks)
}

func TestMigration_ID(t *testing.T) {
	assert.Equal(t, "0001_data_stream_creations", Migration{Version: 1, Name: "data_stream_creations"}.ID())
}
