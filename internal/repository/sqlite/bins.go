package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/repository/dbutil"
)

var _ repository.BinRepository = (*BinDB)(nil)

// BinDB is the trash_bins table plus its sensor_readings log.
type BinDB struct {
	conn *sql.DB
}

const binColumns = `id, name, location, latitude, longitude, fill_level, status, battery_level,
	sensor_id, capacity, notes, field_officer_id, last_collection, next_collection,
	created_at, updated_at`

func scanBin(row dbutil.Scanner) (*model.Bin, error) {
	var (
		b                  model.Bin
		status             string
		lat, lng           sql.NullFloat64
		sensorID, officer  sql.NullString
		lastColl, nextColl sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Location, &lat, &lng, &b.FillLevel, &status,
		&b.BatteryLevel, &sensorID, &b.Capacity, &b.Notes, &officer, &lastColl, &nextColl,
		&b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BinStatus(status)
	b.Latitude = dbutil.FloatPtr(lat)
	b.Longitude = dbutil.FloatPtr(lng)
	b.SensorID = dbutil.StringPtr(sensorID)
	b.FieldOfficerID = dbutil.StringPtr(officer)
	b.LastCollection = dbutil.TimePtr(lastColl)
	b.NextCollection = dbutil.TimePtr(nextColl)
	return &b, nil
}

func collectBins(rows *sql.Rows) ([]model.Bin, error) {
	defer rows.Close()
	bins := []model.Bin{}
	for rows.Next() {
		b, err := scanBin(rows)
		if err != nil {
			return nil, err
		}
		bins = append(bins, *b)
	}
	return bins, rows.Err()
}

func (b *BinDB) List(ctx context.Context, f model.BinFilter) ([]model.Bin, error) {
	limit, offset := dbutil.ClampPage(f.Limit, f.Offset)
	rows, err := b.conn.QueryContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins
		 WHERE (? = '' OR name LIKE '%' || ? || '%' OR location LIKE '%' || ? || '%')
		   AND (? = '' OR status = ?)
		 ORDER BY name, id
		 LIMIT ? OFFSET ?`,
		f.Search, f.Search, f.Search, string(f.Status), string(f.Status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing bins: %w", err)
	}
	bins, err := collectBins(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning bins: %w", err)
	}
	return bins, nil
}

func (b *BinDB) ListWithCoordinates(ctx context.Context) ([]model.Bin, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing located bins: %w", err)
	}
	bins, err := collectBins(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning located bins: %w", err)
	}
	return bins, nil
}

func (b *BinDB) GetByID(ctx context.Context, id string) (*model.Bin, error) {
	bin, err := scanBin(b.conn.QueryRowContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err, "getting bin", "bin", id)
	}
	return bin, nil
}

func (b *BinDB) GetBySensorID(ctx context.Context, sensorID string) (*model.Bin, error) {
	bin, err := scanBin(b.conn.QueryRowContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins WHERE sensor_id = ?`, sensorID))
	if err != nil {
		return nil, translate(err, "getting bin by sensor", "bin", sensorID)
	}
	return bin, nil
}

func (b *BinDB) Create(ctx context.Context, bin *model.Bin) error {
	if bin.ID == "" {
		bin.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	bin.CreatedAt = now
	bin.UpdatedAt = now

	_, err := b.conn.ExecContext(ctx,
		`INSERT INTO trash_bins (id, name, location, latitude, longitude, fill_level, status,
			battery_level, sensor_id, capacity, notes, field_officer_id, last_collection,
			next_collection, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bin.ID, bin.Name, bin.Location, dbutil.NullFloat(bin.Latitude), dbutil.NullFloat(bin.Longitude),
		bin.FillLevel, string(bin.Status), bin.BatteryLevel, dbutil.NullString(bin.SensorID),
		bin.Capacity, bin.Notes, dbutil.NullString(bin.FieldOfficerID),
		dbutil.NullTime(bin.LastCollection), dbutil.NullTime(bin.NextCollection), now, now,
	)
	return translate(err, "inserting bin", "bin", bin.ID)
}

func (b *BinDB) Update(ctx context.Context, bin *model.Bin) error {
	bin.UpdatedAt = time.Now().UTC()
	res, err := b.conn.ExecContext(ctx,
		`UPDATE trash_bins SET name = ?, location = ?, latitude = ?, longitude = ?,
			fill_level = ?, status = ?, battery_level = ?, sensor_id = ?, capacity = ?,
			notes = ?, field_officer_id = ?, last_collection = ?, next_collection = ?,
			updated_at = ?
		 WHERE id = ?`,
		bin.Name, bin.Location, dbutil.NullFloat(bin.Latitude), dbutil.NullFloat(bin.Longitude),
		bin.FillLevel, string(bin.Status), bin.BatteryLevel, dbutil.NullString(bin.SensorID),
		bin.Capacity, bin.Notes, dbutil.NullString(bin.FieldOfficerID),
		dbutil.NullTime(bin.LastCollection), dbutil.NullTime(bin.NextCollection), bin.UpdatedAt,
		bin.ID,
	)
	if err != nil {
		return translate(err, "updating bin", "bin", bin.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("bin", bin.ID)
	}
	return nil
}

func (b *BinDB) Delete(ctx context.Context, id string) error {
	res, err := b.conn.ExecContext(ctx, `DELETE FROM trash_bins WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting bin %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("bin", id)
	}
	return nil
}

func (b *BinDB) Stats(ctx context.Context, lowBattery int) (*model.BinStats, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(fill_level), 0),
			COALESCE(SUM(CASE WHEN battery_level < ? THEN 1 ELSE 0 END), 0)
		 FROM trash_bins GROUP BY status`, lowBattery)
	if err != nil {
		return nil, fmt.Errorf("sqlite: bin stats: %w", err)
	}
	defer rows.Close()

	stats := &model.BinStats{ByStatus: map[model.BinStatus]int{
		model.BinNormal: 0, model.BinWarning: 0, model.BinFull: 0,
	}}
	var fillSum int
	for rows.Next() {
		var (
			status          string
			count, sum, low int
		)
		if err := rows.Scan(&status, &count, &sum, &low); err != nil {
			return nil, fmt.Errorf("sqlite: scanning bin stats: %w", err)
		}
		stats.ByStatus[model.BinStatus(status)] = count
		stats.Total += count
		stats.LowBattery += low
		fillSum += sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: bin stats rows: %w", err)
	}
	if stats.Total > 0 {
		stats.AverageFillLevel = float64(fillSum) / float64(stats.Total)
	}
	return stats, nil
}

func (b *BinDB) ApplyReading(ctx context.Context, r *model.SensorReading, status model.BinStatus) (*model.Bin, error) {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin reading tx: %w", err)
	}
	defer tx.Rollback()

	// No FOR UPDATE in SQLite; the single pooled connection serialises writers.
	previous, err := scanBin(tx.QueryRowContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins WHERE id = ?`, r.BinID))
	if err != nil {
		return nil, translate(err, "locking bin", "bin", r.BinID)
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sensor_readings (id, bin_id, fill_level, battery_level, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.BinID, r.FillLevel, dbutil.NullInt(r.BatteryLevel), r.RecordedAt,
	); err != nil {
		return nil, translate(err, "inserting reading", "bin", r.BinID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE trash_bins SET fill_level = ?, battery_level = COALESCE(?, battery_level),
			status = ?, updated_at = ?
		 WHERE id = ?`,
		r.FillLevel, dbutil.NullInt(r.BatteryLevel), string(status), r.RecordedAt, r.BinID,
	); err != nil {
		return nil, translate(err, "applying reading", "bin", r.BinID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit reading: %w", err)
	}
	return previous, nil
}

func (b *BinDB) ListReadings(ctx context.Context, binID string, limit int) ([]model.SensorReading, error) {
	limit, _ = dbutil.ClampPage(limit, 0)
	rows, err := b.conn.QueryContext(ctx,
		`SELECT id, bin_id, fill_level, battery_level, recorded_at
		 FROM sensor_readings WHERE bin_id = ?
		 ORDER BY recorded_at DESC LIMIT ?`, binID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing readings: %w", err)
	}
	defer rows.Close()

	readings := []model.SensorReading{}
	for rows.Next() {
		var (
			r       model.SensorReading
			battery sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.BinID, &r.FillLevel, &battery, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning reading: %w", err)
		}
		r.BatteryLevel = dbutil.IntPtr(battery)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (b *BinDB) ListNeedingAttention(ctx context.Context, lowBattery int, staleBefore time.Time) ([]model.Bin, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins
		 WHERE battery_level < ? OR updated_at < ?
		 ORDER BY updated_at`, lowBattery, staleBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing bins needing attention: %w", err)
	}
	bins, err := collectBins(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning bins needing attention: %w", err)
	}
	return bins, nil
}
