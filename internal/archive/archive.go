// Package archive guarda en PostgreSQL un registro histórico de los data
// streams creados. Escucha los estados commiteados y escribe fuera del
// goroutine que aplica, así una base lenta nunca frena al cluster.
package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	migrations "github.com/dropDatabas3/datastreams/migrations/postgres"
)

// DefaultQueueSize es la capacidad de la cola de escritura.
const DefaultQueueSize = 256

const insertTimeout = 5 * time.Second

// DB es el subconjunto de pgxpool.Pool que usa el archivo.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Record es una fila de data_stream_creations.
type Record struct {
	ClusterUUID    string    `json:"cluster_uuid"`
	DataStream     string    `json:"data_stream"`
	BackingIndex   string    `json:"backing_index"`
	TimestampField string    `json:"timestamp_field"`
	Generation     int64     `json:"generation"`
	StateVersion   int64     `json:"state_version"`
	StateUUID      string    `json:"state_uuid"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecordsFrom arma un Record por cada data stream nuevo en ev, ordenados por nombre.
func RecordsFrom(ev cluster.ChangedEvent, now time.Time) []Record {
	created := ev.DataStreamsCreated()
	if len(created) == 0 {
		return nil
	}
	out := make([]Record, 0, len(created))
	for _, ds := range created {
		r := Record{
			ClusterUUID:    ev.State.Metadata.ClusterUUID,
			DataStream:     ds.Name,
			TimestampField: ds.TimestampField.Name,
			Generation:     ds.Generation,
			StateVersion:   ev.State.Version,
			StateUUID:      ev.State.StateUUID,
			Source:         ev.Source,
			CreatedAt:      now.UTC(),
		}
		if wi, ok := ds.WriteIndex(); ok {
			r.BackingIndex = wi.Name
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataStream < out[j].DataStream })
	return out
}

// Archive encola registros y los inserta con un worker.
type Archive struct {
	db    DB
	pool  *pgxpool.Pool // nil en tests
	queue chan Record
	log   *zap.Logger
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Open conecta a PostgreSQL y arranca el worker.
func Open(ctx context.Context, dsn string, queueSize int) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	a := newArchive(pool, queueSize)
	a.pool = pool
	return a, nil
}

func newArchive(db DB, queueSize int) *Archive {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &Archive{
		db:    db,
		queue: make(chan Record, queueSize),
		log:   logger.Named("archive"),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

// Migrate aplica las migraciones embebidas.
func (a *Archive) Migrate(ctx context.Context) (*MigrationResult, error) {
	res, err := NewMigrator(migrations.ArchiveFS, migrations.ArchiveDir).Run(ctx, a.db)
	if err != nil {
		return res, err
	}
	a.log.Info("archive migrations applied", zap.Ints("applied", res.Applied), zap.Ints("skipped", res.Skipped))
	return res, nil
}

// Listener devuelve el cluster.Listener que alimenta la cola. Nunca bloquea:
// con la cola llena el registro se descarta.
func (a *Archive) Listener() cluster.Listener {
	return func(ev cluster.ChangedEvent) {
		for _, r := range RecordsFrom(ev, a.now()) {
			a.enqueue(r)
		}
	}
}

func (a *Archive) enqueue(r Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- r:
	default:
		a.log.Warn("archive queue full, dropping record", logger.DataStream(r.DataStream))
	}
}

func (a *Archive) loop() {
	defer close(a.done)
	for r := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		if err := a.Insert(ctx, r); err != nil {
			a.log.Warn("archive insert failed", logger.DataStream(r.DataStream), logger.Err(err))
		}
		cancel()
	}
}

// Insert escribe un registro. Repetir el mismo data stream en el mismo cluster
// no es error: la FSM de un follower y el escritor del leader pueden ver la
// misma creación.
func (a *Archive) Insert(ctx context.Context, r Record) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO data_stream_creations
			(cluster_uuid, data_stream, backing_index, timestamp_field, generation, state_version, state_uuid, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cluster_uuid, data_stream) DO NOTHING`,
		r.ClusterUUID, r.DataStream, r.BackingIndex, r.TimestampField,
		r.Generation, r.StateVersion, r.StateUUID, r.Source, r.CreatedAt)
	return err
}

// Recent devuelve los últimos limit registros, más nuevos primero.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(ctx, `
		SELECT cluster_uuid, data_stream, backing_index, timestamp_field, generation, state_version, state_uuid, source, created_at
		FROM data_stream_creations
		ORDER BY created_at DESC, data_stream
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ClusterUUID, &r.DataStream, &r.BackingIndex, &r.TimestampField,
			&r.Generation, &r.StateVersion, &r.StateUUID, &r.Source, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close drena la cola y cierra el pool.
func (a *Archive) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	if a.pool != nil {
		a.pool.Close()
	}
}
