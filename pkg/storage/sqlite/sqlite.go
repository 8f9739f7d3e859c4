package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bimview/xray/internal/build"
	"github.com/bimview/xray/internal/concurrency"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("xray/pkg/storage/sqlite")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlite."+name)
}

// maxItemsPerQuery keeps IN lists well below the sqlite variable limit.
const maxItemsPerQuery = 500

// Datastore provides a SQLite based implementation of [storage.ModelDatastore].
type Datastore struct {
	stbl              sq.StatementBuilderType
	db                *sql.DB
	logger            logger.Logger
	dbStatsCollector  prometheus.Collector
	decodeConcurrency int
	versionReady      bool
}

// Ensures that SQLite implements the ModelDatastore interface.
var _ storage.ModelDatastore = (*Datastore)(nil)

// Prepare a raw DSN from config for use with SQLite, specifying defaults for journal mode and busy timeout.
func PrepareDSN(uri string) (string, error) {
	// Set journal mode and busy timeout pragmas if not specified.
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}

	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, build.ProjectName)
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return &Datastore{
		stbl:              sq.StatementBuilder.RunWith(db),
		db:                db,
		logger:            cfg.Logger,
		dbStatsCollector:  collector,
		decodeConcurrency: cfg.DecodeConcurrency,
	}, nil
}

// Close see [storage.ModelDatastore].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.db.Close()
}

// WriteModel see [storage.ModelWriter].WriteModel. The previous model, if
// any, is replaced in a single transaction.
func (s *Datastore) WriteModel(ctx context.Context, model *storage.Model) error {
	ctx, span := startTrace(ctx, "WriteModel")
	defer span.End()

	if err := storage.ValidateModel(model); err != nil {
		return err
	}

	var txn *sql.Tx
	err := busyRetry(func() error {
		var err error
		txn, err = s.db.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		return HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	for _, table := range []string{"mesh", "item", "storey", "model_meta"} {
		if _, err := s.stbl.Delete(table).RunWith(txn).ExecContext(ctx); err != nil {
			return HandleSQLError(err)
		}
	}

	_, err = s.stbl.
		Insert("model_meta").
		Columns("id", "name", "world_transform").
		Values(1, model.Name, encodeFloat64s(model.WorldTransform[:])).
		RunWith(txn).
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}

	meshCount := 0
	for _, st := range model.Storeys {
		_, err = s.stbl.
			Insert("storey").
			Columns("id", "name", "elevation").
			Values(int64(st.ID), st.Name, st.Elevation).
			RunWith(txn).
			ExecContext(ctx)
		if err != nil {
			return HandleSQLError(err)
		}

		for ordinal, it := range st.Items {
			_, err = s.stbl.
				Insert("item").
				Columns("id", "storey_id", "ordinal").
				Values(int64(it.ID), int64(st.ID), ordinal).
				RunWith(txn).
				ExecContext(ctx)
			if err != nil {
				return HandleSQLError(err)
			}

			for meshOrdinal, md := range it.Meshes {
				row := encodeMesh(md)
				_, err = s.stbl.
					Insert("mesh").
					Columns("item_id", "ordinal", "positions", "normals", "indices", "transform").
					Values(int64(it.ID), meshOrdinal, row.positions, row.normals, row.indices, row.transform).
					RunWith(txn).
					ExecContext(ctx)
				if err != nil {
					return HandleSQLError(err)
				}
				meshCount++
			}
		}
	}

	err = busyRetry(func() error {
		return txn.Commit()
	})
	if err != nil {
		return HandleSQLError(err)
	}

	span.SetAttributes(
		attribute.Int("storeys", len(model.Storeys)),
		attribute.Int("meshes", meshCount),
	)
	s.logger.DebugWithContext(ctx, "model written",
		zap.String("name", model.Name),
		zap.Int("storeys", len(model.Storeys)),
		zap.Int("meshes", meshCount),
	)

	return nil
}

// Storeys see [storage.ModelReader].Storeys.
func (s *Datastore) Storeys(ctx context.Context) ([]storage.Storey, error) {
	ctx, span := startTrace(ctx, "Storeys")
	defer span.End()

	if err := s.requireModel(ctx); err != nil {
		return nil, err
	}

	rows, err := s.stbl.
		Select("id", "name", "elevation").
		From("storey").
		OrderBy("elevation", "id").
		QueryContext(ctx)
	if err != nil {
		return nil, HandleSQLError(err)
	}
	defer rows.Close()

	var storeys []storage.Storey
	for rows.Next() {
		var (
			id int64
			st storage.Storey
		)
		if err := rows.Scan(&id, &st.Name, &st.Elevation); err != nil {
			return nil, HandleSQLError(err)
		}
		st.ID = storage.GroupKey(id)
		storeys = append(storeys, st)
	}
	if err := rows.Err(); err != nil {
		return nil, HandleSQLError(err)
	}

	return storeys, nil
}

// ChildrenOf see [storage.ModelReader].ChildrenOf.
func (s *Datastore) ChildrenOf(ctx context.Context, group storage.GroupKey) ([]storage.ItemKey, error) {
	ctx, span := startTrace(ctx, "ChildrenOf")
	defer span.End()
	span.SetAttributes(attribute.Int64("group", int64(group)))

	rows, err := s.stbl.
		Select("id").
		From("item").
		Where(sq.Eq{"storey_id": int64(group)}).
		OrderBy("ordinal").
		QueryContext(ctx)
	if err != nil {
		return nil, HandleSQLError(err)
	}
	defer rows.Close()

	children := []storage.ItemKey{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, HandleSQLError(err)
		}
		children = append(children, storage.ItemKey(id))
	}
	if err := rows.Err(); err != nil {
		return nil, HandleSQLError(err)
	}

	return children, nil
}

// GeometryOf see [storage.GeometryReader].GeometryOf. Mesh blobs are decoded
// concurrently; an item with a malformed mesh is logged and left out.
func (s *Datastore) GeometryOf(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.MeshData, error) {
	ctx, span := startTrace(ctx, "GeometryOf")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))

	raw := make(map[storage.ItemKey][]meshRow, len(items))
	for start := 0; start < len(items); start += maxItemsPerQuery {
		end := min(start+maxItemsPerQuery, len(items))
		if err := s.readMeshRows(ctx, items[start:end], raw); err != nil {
			return nil, err
		}
	}

	type decoded struct {
		item   storage.ItemKey
		meshes []geometry.MeshData
	}

	p := concurrency.NewIsolatedPool[decoded](ctx, s.decodeConcurrency)
	for item, rows := range raw {
		p.Go(func(ctx context.Context) (decoded, error) {
			meshes := make([]geometry.MeshData, 0, len(rows))
			for _, r := range rows {
				md, err := r.decode()
				if err != nil {
					s.logger.WarnWithContext(ctx, "skipping item with malformed mesh",
						zap.Int64("item", int64(item)),
						zap.Error(err),
					)
					return decoded{}, err
				}
				meshes = append(meshes, md)
			}
			return decoded{item: item, meshes: meshes}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		span.RecordError(err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	out := make(map[storage.ItemKey][]geometry.MeshData, len(results))
	for _, r := range results {
		out[r.item] = r.meshes
	}
	return out, nil
}

func (s *Datastore) readMeshRows(ctx context.Context, items []storage.ItemKey, into map[storage.ItemKey][]meshRow) error {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = int64(it)
	}

	rows, err := s.stbl.
		Select("item_id", "positions", "normals", "indices", "transform").
		From("mesh").
		Where(sq.Eq{"item_id": ids}).
		OrderBy("item_id", "ordinal").
		QueryContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			r  meshRow
		)
		if err := rows.Scan(&id, &r.positions, &r.normals, &r.indices, &r.transform); err != nil {
			return HandleSQLError(err)
		}
		into[storage.ItemKey(id)] = append(into[storage.ItemKey(id)], r)
	}
	if err := rows.Err(); err != nil {
		return HandleSQLError(err)
	}
	return nil
}

// WorldTransform see [storage.ModelReader].WorldTransform.
func (s *Datastore) WorldTransform(ctx context.Context) (geometry.Matrix4, error) {
	ctx, span := startTrace(ctx, "WorldTransform")
	defer span.End()

	var blob []byte
	err := s.stbl.
		Select("world_transform").
		From("model_meta").
		Where(sq.Eq{"id": 1}).
		QueryRowContext(ctx).
		Scan(&blob)
	if err != nil {
		return geometry.Identity, HandleSQLError(err)
	}

	elems, err := decodeFloat64s(blob)
	if err != nil {
		return geometry.Identity, err
	}
	return geometry.MatrixFromElements(elems), nil
}

func (s *Datastore) requireModel(ctx context.Context) error {
	var name string
	err := s.stbl.
		Select("name").
		From("model_meta").
		Where(sq.Eq{"id": 1}).
		QueryRowContext(ctx).
		Scan(&name)
	if err != nil {
		return HandleSQLError(err)
	}
	return nil
}

// IsReady see [sqlcommon.IsReady].
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, s.versionReady, s.db)
	if err != nil {
		return versionReady, err
	}
	s.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
			return fmt.Errorf("%w: %s", storage.ErrInvalidModel, sqliteErr.Error())
		}
	}

	return fmt.Errorf("sql error: %w", err)
}

// SQLite will return an SQLITE_BUSY error when the database is locked rather than waiting for the lock.
// This function retries the operation up to maxRetries times before returning the error.
func busyRetry(fn func() error) error {
	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}
