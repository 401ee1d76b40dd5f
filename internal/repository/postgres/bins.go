package postgres

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
		 WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR location ILIKE '%' || $1 || '%')
		   AND ($2 = '' OR status = $2)
		 ORDER BY name, id
		 LIMIT $3 OFFSET $4`,
		f.Search, string(f.Status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing bins: %w", err)
	}
	bins, err := collectBins(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning bins: %w", err)
	}
	return bins, nil
}

func (b *BinDB) ListWithCoordinates(ctx context.Context) ([]model.Bin, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing located bins: %w", err)
	}
	bins, err := collectBins(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning located bins: %w", err)
	}
	return bins, nil
}

func (b *BinDB) GetByID(ctx context.Context, id string) (*model.Bin, error) {
	bin, err := scanBin(b.conn.QueryRowContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "getting bin", "bin", id)
	}
	return bin, nil
}

func (b *BinDB) GetBySensorID(ctx context.Context, sensorID string) (*model.Bin, error) {
	bin, err := scanBin(b.conn.QueryRowContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins WHERE sensor_id = $1`, sensorID))
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		bin.ID, bin.Name, bin.Location, dbutil.NullFloat(bin.Latitude), dbutil.NullFloat(bin.Longitude),
		bin.FillLevel, string(bin.Status), bin.BatteryLevel, dbutil.NullString(bin.SensorID),
		bin.Capacity, bin.Notes, dbutil.NullString(bin.FieldOfficerID),
		dbutil.NullTime(bin.LastCollection), dbutil.NullTime(bin.NextCollection), now,
	)
	return translate(err, "inserting bin", "bin", bin.ID)
}

func (b *BinDB) Update(ctx context.Context, bin *model.Bin) error {
	bin.UpdatedAt = time.Now().UTC()
	res, err := b.conn.ExecContext(ctx,
		`UPDATE trash_bins SET name = $2, location = $3, latitude = $4, longitude = $5,
			fill_level = $6, status = $7, battery_level = $8, sensor_id = $9, capacity = $10,
			notes = $11, field_officer_id = $12, last_collection = $13, next_collection = $14,
			updated_at = $15
		 WHERE id = $1`,
		bin.ID, bin.Name, bin.Location, dbutil.NullFloat(bin.Latitude), dbutil.NullFloat(bin.Longitude),
		bin.FillLevel, string(bin.Status), bin.BatteryLevel, dbutil.NullString(bin.SensorID),
		bin.Capacity, bin.Notes, dbutil.NullString(bin.FieldOfficerID),
		dbutil.NullTime(bin.LastCollection), dbutil.NullTime(bin.NextCollection), bin.UpdatedAt,
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
	res, err := b.conn.ExecContext(ctx, `DELETE FROM trash_bins WHERE id = $1`, id)
	if err != nil {
		return translate(err, "deleting bin", "bin", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("bin", id)
	}
	return nil
}

func (b *BinDB) Stats(ctx context.Context, lowBattery int) (*model.BinStats, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(fill_level), 0),
			COALESCE(SUM(CASE WHEN battery_level < $1 THEN 1 ELSE 0 END), 0)
		 FROM trash_bins GROUP BY status`, lowBattery)
	if err != nil {
		return nil, fmt.Errorf("postgres: bin stats: %w", err)
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
			return nil, fmt.Errorf("postgres: scanning bin stats: %w", err)
		}
		stats.ByStatus[model.BinStatus(status)] = count
		stats.Total += count
		stats.LowBattery += low
		fillSum += sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bin stats rows: %w", err)
	}
	if stats.Total > 0 {
		stats.AverageFillLevel = float64(fillSum) / float64(stats.Total)
	}
	return stats, nil
}

func (b *BinDB) ApplyReading(ctx context.Context, r *model.SensorReading, status model.BinStatus) (*model.Bin, error) {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin reading tx: %w", err)
	}
	defer tx.Rollback()

	previous, err := scanBin(tx.QueryRowContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins WHERE id = $1 FOR UPDATE`, r.BinID))
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
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.BinID, r.FillLevel, dbutil.NullInt(r.BatteryLevel), r.RecordedAt,
	); err != nil {
		return nil, translate(err, "inserting reading", "bin", r.BinID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE trash_bins SET fill_level = $2, battery_level = COALESCE($3, battery_level),
			status = $4, updated_at = $5
		 WHERE id = $1`,
		r.BinID, r.FillLevel, dbutil.NullInt(r.BatteryLevel), string(status), r.RecordedAt,
	); err != nil {
		return nil, translate(err, "applying reading", "bin", r.BinID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: commit reading: %w", err)
	}
	return previous, nil
}

func (b *BinDB) ListReadings(ctx context.Context, binID string, limit int) ([]model.SensorReading, error) {
	limit, _ = dbutil.ClampPage(limit, 0)
	rows, err := b.conn.QueryContext(ctx,
		`SELECT id, bin_id, fill_level, battery_level, recorded_at
		 FROM sensor_readings WHERE bin_id = $1
		 ORDER BY recorded_at DESC LIMIT $2`, binID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing readings: %w", err)
	}
	defer rows.Close()

	readings := []model.SensorReading{}
	for rows.Next() {
		var (
			r       model.SensorReading
			battery sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.BinID, &r.FillLevel, &battery, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning reading: %w", err)
		}
		r.BatteryLevel = dbutil.IntPtr(battery)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (b *BinDB) ListNeedingAttention(ctx context.Context, lowBattery int, staleBefore time.Time) ([]model.Bin, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT `+binColumns+` FROM trash_bins
		 WHERE battery_level < $1 OR updated_at < $2
		 ORDER BY updated_at`, lowBattery, staleBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: listing bins needing attention: %w", err)
	}
	bins, err := collectBins(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning bins needing attention: %w", err)
	}
	return bins, nil
}
