// Package mapstore persists occupancy maps to sqlite. Each saved map is a
// session identified by a UUID; chunk layer buffers are stored as blobs,
// gzip-compressed when the map carries the compressed flag.
package mapstore

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/occgrid/internal/occmap"
	"github.com/banshee-data/occgrid/internal/timeutil"
)

// ErrUnknownSession is returned when a session id does not exist in the
// store.
var ErrUnknownSession = errors.New("mapstore: unknown session")

// Store wraps a sqlite database holding saved map sessions.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the store at path and applies any
// pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SessionInfo summarises one saved map session.
type SessionInfo struct {
	ID         string
	Config     occmap.MapConfig
	Origin     r3.Vec
	Stamp      uint64
	ChunkCount int
	CreatedAt  time.Time
}

// Save writes the map as a new session and returns the session id.
func (s *Store) Save(m *occmap.Map) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	cfg := m.Config()
	origin := m.Origin()
	_, err = tx.Exec(`
		INSERT INTO map_sessions (
			id, resolution, dim_x, dim_y, dim_z, flags,
			hit_probability, miss_probability, occupancy_threshold,
			min_probability, max_probability, saturate_min, saturate_max,
			max_chunks, origin_x, origin_y, origin_z, stamp, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.Resolution,
		cfg.RegionVoxelDims[0], cfg.RegionVoxelDims[1], cfg.RegionVoxelDims[2],
		uint32(cfg.Flags),
		cfg.HitProbability, cfg.MissProbability, cfg.OccupancyThresholdProbability,
		cfg.MinNodeProbability, cfg.MaxNodeProbability,
		boolToInt(cfg.SaturateAtMin), boolToInt(cfg.SaturateAtMax),
		cfg.MaxChunks, origin.X, origin.Y, origin.Z,
		m.Stamp(), s.clock.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO map_chunks (
			session_id, region_x, region_y, region_z, layer,
			touched_stamp, compressed, voxel_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	compress := cfg.Flags&occmap.MapCompressed != 0
	layout := m.Layout()
	var saveErr error
	m.ForEachChunk(func(c *occmap.Chunk) bool {
		region := c.Region()
		for i := 0; i < layout.NumLayers(); i++ {
			blob := c.Layer(i)
			if compress {
				blob, saveErr = gzipBytes(blob)
				if saveErr != nil {
					return false
				}
			}
			_, saveErr = stmt.Exec(id,
				region[0], region[1], region[2],
				layout.Layer(i).Name(), c.TouchedStamp(i), boolToInt(compress), blob)
			if saveErr != nil {
				return false
			}
		}
		return true
	})
	if saveErr != nil {
		return "", fmt.Errorf("insert chunks: %w", saveErr)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	return id, nil
}

// Load rebuilds the map saved under the session id.
func (s *Store) Load(id string) (*occmap.Map, error) {
	var cfg occmap.MapConfig
	var dims [3]int
	var flags uint32
	var satMin, satMax int
	var origin r3.Vec
	var stamp uint64
	err := s.db.QueryRow(`
		SELECT resolution, dim_x, dim_y, dim_z, flags,
			hit_probability, miss_probability, occupancy_threshold,
			min_probability, max_probability, saturate_min, saturate_max,
			max_chunks, origin_x, origin_y, origin_z, stamp
		FROM map_sessions WHERE id = ?`, id).Scan(
		&cfg.Resolution, &dims[0], &dims[1], &dims[2], &flags,
		&cfg.HitProbability, &cfg.MissProbability, &cfg.OccupancyThresholdProbability,
		&cfg.MinNodeProbability, &cfg.MaxNodeProbability, &satMin, &satMax,
		&cfg.MaxChunks, &origin.X, &origin.Y, &origin.Z, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	cfg.RegionVoxelDims = [3]uint8{uint8(dims[0]), uint8(dims[1]), uint8(dims[2])}
	cfg.Flags = occmap.MapFlag(flags)
	cfg.SaturateAtMin = satMin != 0
	cfg.SaturateAtMax = satMax != 0

	m, err := occmap.NewMap(cfg)
	if err != nil {
		return nil, fmt.Errorf("rebuild map for session %s: %w", id, err)
	}
	m.SetOrigin(origin)
	m.SetStamp(stamp)

	// rowid order restores the original chunk allocation order.
	rows, err := s.db.Query(`
		SELECT region_x, region_y, region_z, layer, touched_stamp, compressed, voxel_data
		FROM map_chunks WHERE session_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("load chunks for session %s: %w", id, err)
	}
	defer rows.Close()

	layout := m.Layout()
	occupancyLayer := layout.LayerIndex(occmap.LayerOccupancy)
	for rows.Next() {
		var region [3]int
		var layer string
		var touched uint64
		var compressed int
		var blob []byte
		if err := rows.Scan(&region[0], &region[1], &region[2], &layer, &touched, &compressed, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		layerIndex := layout.LayerIndex(layer)
		if layerIndex < 0 {
			// Layer persisted by a newer layout; ignore.
			continue
		}
		if compressed != 0 {
			blob, err = gunzipBytes(blob)
			if err != nil {
				return nil, fmt.Errorf("decompress chunk %v layer %s: %w", region, layer, err)
			}
		}
		coord := occmap.RegionKey{int16(region[0]), int16(region[1]), int16(region[2])}
		c, err := m.Region(coord, true)
		if err != nil {
			return nil, fmt.Errorf("allocate chunk %v: %w", region, err)
		}
		buf := c.Layer(layerIndex)
		if len(blob) != len(buf) {
			return nil, fmt.Errorf("chunk %v layer %s: blob size %d, want %d", region, layer, len(blob), len(buf))
		}
		copy(buf, blob)
		c.SetTouchedStamp(layerIndex, touched)
		if layerIndex == occupancyLayer {
			c.RefreshFirstValid(layout, occupancyLayer)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks for session %s: %w", id, err)
	}
	return m, nil
}

// Sessions lists saved sessions, newest first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.resolution, s.dim_x, s.dim_y, s.dim_z, s.flags,
			s.origin_x, s.origin_y, s.origin_z, s.stamp, s.created_at_ns,
			(SELECT COUNT(DISTINCT region_x || ',' || region_y || ',' || region_z)
				FROM map_chunks c WHERE c.session_id = s.id)
		FROM map_sessions s ORDER BY s.created_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var dims [3]int
		var flags uint32
		var createdNs int64
		if err := rows.Scan(&info.ID, &info.Config.Resolution,
			&dims[0], &dims[1], &dims[2], &flags,
			&info.Origin.X, &info.Origin.Y, &info.Origin.Z,
			&info.Stamp, &createdNs, &info.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		info.Config.RegionVoxelDims = [3]uint8{uint8(dims[0]), uint8(dims[1]), uint8(dims[2])}
		info.Config.Flags = occmap.MapFlag(flags)
		info.CreatedAt = time.Unix(0, createdNs)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Info returns the summary of one session.
func (s *Store) Info(id string) (SessionInfo, error) {
	sessions, err := s.Sessions()
	if err != nil {
		return SessionInfo{}, err
	}
	for _, info := range sessions {
		if info.ID == id {
			return info, nil
		}
	}
	return SessionInfo{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
}

// Delete removes a session and its chunks.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM map_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
