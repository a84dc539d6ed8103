package indexdb

import (
	"context"
	"database/sql"
	"strings"
)

// Reader runs queries against an index written by SQLiteIndex. It never
// writes.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type AuditQuery struct {
	Action    string
	Container string
	FromTick  uint64
	ToTick    uint64 // 0 means no upper bound
	Limit     int
}

type AuditRow struct {
	Tick      uint64 `json:"tick"`
	Seq       int    `json:"seq"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Container string `json:"container,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Pos       [3]int `json:"pos"`
	Reason    string `json:"reason,omitempty"`
	RawJSON   string `json:"-"`
}

func (r *Reader) Audits(ctx context.Context, q AuditQuery) ([]AuditRow, error) {
	var (
		where []string
		args  []any
	)
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, q.Action)
	}
	if q.Container != "" {
		where = append(where, "container = ?")
		args = append(args, q.Container)
	}
	if q.FromTick > 0 {
		where = append(where, "tick >= ?")
		args = append(args, int64(q.FromTick))
	}
	if q.ToTick > 0 {
		where = append(where, "tick <= ?")
		args = append(args, int64(q.ToTick))
	}
	limit := q.Limit
	if limit <= 0 || limit > 10000 {
		limit = 100
	}
	query := `SELECT tick, seq, actor, action, COALESCE(container,''), COALESCE(kind,''), x, y, z, COALESCE(reason,''), raw_json FROM audits`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY tick, seq LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var (
			a    AuditRow
			tick int64
		)
		if err := rows.Scan(&tick, &a.Seq, &a.Actor, &a.Action, &a.Container, &a.Kind,
			&a.Pos[0], &a.Pos[1], &a.Pos[2], &a.Reason, &a.RawJSON); err != nil {
			return nil, err
		}
		a.Tick = uint64(tick)
		out = append(out, a)
	}
	return out, rows.Err()
}

type SnapshotRow struct {
	Tick        uint64 `json:"tick"`
	Path        string `json:"path"`
	WorldID     string `json:"world_id"`
	Containers  int    `json:"containers"`
	Replicating int    `json:"replicating"`
	Items       int    `json:"items"`
}

func (r *Reader) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick, path, world_id, containers, replicating, items FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			s    SnapshotRow
			tick int64
		)
		if err := rows.Scan(&tick, &s.Path, &s.WorldID, &s.Containers, &s.Replicating, &s.Items); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplicatingAt lists the ids of containers flagged replicating in the
// snapshot taken at tick.
func (r *Reader) ReplicatingAt(ctx context.Context, tick uint64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT container FROM snapshot_containers WHERE tick = ? AND replicating = 1 ORDER BY container`, int64(tick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
