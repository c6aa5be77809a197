// README: Reliability store backed by PostgreSQL.
package reliability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("reliability: record not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetCooldownRow(ctx context.Context, driverID string) (*CooldownRow, error) {
	row := s.db.QueryRow(ctx, `
        SELECT driver_id, until_ts, reason, updated_at
        FROM driver_cooldowns
        WHERE driver_id = $1`, driverID,
	)

	var r CooldownRow
	var until sql.NullTime
	var reason sql.NullString
	err := row.Scan(&r.DriverID, &until, &reason, &r.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if until.Valid {
		t := until.Time
		r.Until = &t
	}
	if reason.Valid {
		v := reason.String
		r.Reason = &v
	}
	return &r, nil
}

func (s *Store) UpsertCooldown(ctx context.Context, driverID string, until time.Time, reason string) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO driver_cooldowns (driver_id, until_ts, reason, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (driver_id)
        DO UPDATE SET until_ts = EXCLUDED.until_ts,
                      reason = EXCLUDED.reason,
                      updated_at = NOW()`,
		driverID, until, reason,
	)
	return err
}

// ClearCooldown nulls the cooldown fields but keeps the row for audit history.
func (s *Store) ClearCooldown(ctx context.Context, driverID string) error {
	_, err := s.db.Exec(ctx, `
        UPDATE driver_cooldowns
        SET until_ts = NULL, reason = NULL, updated_at = NOW()
        WHERE driver_id = $1`, driverID,
	)
	return err
}

func (s *Store) HasLock(ctx context.Context, driverID, rideID string) (bool, error) {
	row := s.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM bid_eligibility_locks
            WHERE ride_id = $1 AND driver_id = $2 AND status = 'locked_after_cancel'
        )`, rideID, driverID,
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// UpsertLock is idempotent: writing the same (ride, driver) pair twice has no
// additional effect.
func (s *Store) UpsertLock(ctx context.Context, driverID, rideID string) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO bid_eligibility_locks (ride_id, driver_id, status, locked_at)
        VALUES ($1, $2, 'locked_after_cancel', NOW())
        ON CONFLICT (ride_id, driver_id) DO NOTHING`,
		rideID, driverID,
	)
	return err
}

func (s *Store) InsertCancelEvent(ctx context.Context, ev *CancelEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO cancel_events (
            id, ride_id, driver_id, reason_code, provisional, validated, exempted, metadata, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.RideID, ev.DriverID, ev.ReasonCode,
		ev.Provisional, ev.Validated, ev.Exempted, meta, ev.CreatedAt,
	)
	return err
}

// AddDailyMetrics applies an additive upsert so concurrent increments from
// independent events never lose updates.
func (s *Store) AddDailyMetrics(ctx context.Context, driverID string, day time.Time, d MetricsDelta) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO driver_daily_metrics (
            driver_id, metric_date, awarded, accepted, cancels,
            ontime_pickups, total_pickups, honored_bids
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (driver_id, metric_date)
        DO UPDATE SET awarded        = driver_daily_metrics.awarded + EXCLUDED.awarded,
                      accepted       = driver_daily_metrics.accepted + EXCLUDED.accepted,
                      cancels        = driver_daily_metrics.cancels + EXCLUDED.cancels,
                      ontime_pickups = driver_daily_metrics.ontime_pickups + EXCLUDED.ontime_pickups,
                      total_pickups  = driver_daily_metrics.total_pickups + EXCLUDED.total_pickups,
                      honored_bids   = driver_daily_metrics.honored_bids + EXCLUDED.honored_bids`,
		driverID, day.Format("2006-01-02"),
		d.Awarded, d.Accepted, d.Cancels, d.OntimePickups, d.TotalPickups, d.HonoredBids,
	)
	return err
}

func (s *Store) AggregateMetrics(ctx context.Context, driverID string, from, to time.Time) (Aggregate, error) {
	row := s.db.QueryRow(ctx, `
        SELECT COALESCE(SUM(awarded), 0),
               COALESCE(SUM(accepted), 0),
               COALESCE(SUM(cancels), 0),
               COALESCE(SUM(ontime_pickups), 0),
               COALESCE(SUM(total_pickups), 0),
               COALESCE(SUM(honored_bids), 0)
        FROM driver_daily_metrics
        WHERE driver_id = $1 AND metric_date >= $2 AND metric_date <= $3`,
		driverID, from.Format("2006-01-02"), to.Format("2006-01-02"),
	)
	var a Aggregate
	err := row.Scan(&a.Awarded, &a.Accepted, &a.DriverCancels, &a.OntimePickups, &a.TotalPickups, &a.HonoredBids)
	return a, err
}

func (s *Store) UpsertScore(ctx context.Context, driverID string, sc Score, totalRides int, windowStart, windowEnd time.Time) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO reliability_scores (
            driver_id, score, acceptance_rate, cancellation_rate,
            ontime_arrival, bid_honoring, total_rides,
            window_start, window_end, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
        ON CONFLICT (driver_id)
        DO UPDATE SET score = EXCLUDED.score,
                      acceptance_rate = EXCLUDED.acceptance_rate,
                      cancellation_rate = EXCLUDED.cancellation_rate,
                      ontime_arrival = EXCLUDED.ontime_arrival,
                      bid_honoring = EXCLUDED.bid_honoring,
                      total_rides = EXCLUDED.total_rides,
                      window_start = EXCLUDED.window_start,
                      window_end = EXCLUDED.window_end,
                      updated_at = NOW()`,
		driverID, sc.Value, sc.AcceptanceRate, sc.CancellationRate,
		sc.OntimeArrival, sc.BidHonoring, totalRides, windowStart, windowEnd,
	)
	return err
}

func (s *Store) GetScore(ctx context.Context, driverID string) (*ScoreResult, error) {
	row := s.db.QueryRow(ctx, `
        SELECT driver_id, score, acceptance_rate, cancellation_rate,
               ontime_arrival, bid_honoring, total_rides,
               window_start, window_end, updated_at
        FROM reliability_scores
        WHERE driver_id = $1`, driverID,
	)

	var res ScoreResult
	var sc Score
	var updatedAt time.Time
	err := row.Scan(
		&res.DriverID, &sc.Value, &sc.AcceptanceRate, &sc.CancellationRate,
		&sc.OntimeArrival, &sc.BidHonoring, &res.TotalRides,
		&res.WindowStart, &res.WindowEnd, &updatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	res.HasData = true
	res.Score = &sc
	res.UpdatedAt = &updatedAt
	return &res, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}
