// README: Ride store backed by PostgreSQL; acceptance is a conditional write.
package ride

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridebid/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, r *RideRequest) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
        INSERT INTO ride_requests (
            id, rider_id, pickup_lat, pickup_lng, pickup_address,
            dropoff_lat, dropoff_lng, dropoff_address,
            estimated_distance_miles, estimated_price, currency,
            status, status_version, created_at
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10, $11,
            $12, $13, $14
        )`,
		r.ID, r.RiderID,
		r.Pickup.Point.Lat, r.Pickup.Point.Lng, r.Pickup.Address,
		r.Dropoff.Point.Lat, r.Dropoff.Point.Lng, r.Dropoff.Address,
		r.EstimatedDistanceMiles, r.EstimatedPrice.Amount, r.EstimatedPrice.Currency,
		string(r.Status), r.StatusVersion, r.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, driverID := range r.AvailableDrivers {
		if _, err := tx.Exec(ctx, `
            INSERT INTO ride_available_drivers (ride_id, driver_id)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, r.ID, driverID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (*RideRequest, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, rider_id, pickup_lat, pickup_lng, pickup_address,
               dropoff_lat, dropoff_lng, dropoff_address,
               estimated_distance_miles, estimated_price, currency,
               status, status_version, accepted_driver_id,
               created_at, accepted_at, cancelled_at
        FROM ride_requests
        WHERE id = $1`, id,
	)

	var r RideRequest
	var acceptedDriver sql.NullString
	var acceptedAt, cancelledAt sql.NullTime
	var status string
	err := row.Scan(
		&r.ID, &r.RiderID,
		&r.Pickup.Point.Lat, &r.Pickup.Point.Lng, &r.Pickup.Address,
		&r.Dropoff.Point.Lat, &r.Dropoff.Point.Lng, &r.Dropoff.Address,
		&r.EstimatedDistanceMiles, &r.EstimatedPrice.Amount, &r.EstimatedPrice.Currency,
		&status, &r.StatusVersion, &acceptedDriver,
		&r.CreatedAt, &acceptedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Status = Status(status)
	if acceptedDriver.Valid {
		v := acceptedDriver.String
		r.AcceptedDriverID = &v
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		r.AcceptedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		r.CancelledAt = &t
	}

	if r.AvailableDrivers, err = s.availableDrivers(ctx, id); err != nil {
		return nil, err
	}
	if r.Bids, err = s.Bids(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) availableDrivers(ctx context.Context, rideID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
        SELECT driver_id FROM ride_available_drivers WHERE ride_id = $1`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) AddAvailableDrivers(ctx context.Context, rideID string, driverIDs []string) error {
	for _, driverID := range driverIDs {
		if _, err := s.db.Exec(ctx, `
            INSERT INTO ride_available_drivers (ride_id, driver_id)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, rideID, driverID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AppendBid(ctx context.Context, b *Bid) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO ride_bids (
            id, ride_id, driver_id, amount, currency, bid_type,
            driver_name, driver_rating, driver_vehicle, submitted_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.RideID, b.DriverID, b.Amount.Amount, b.Amount.Currency, b.BidType,
		b.DriverInfo.Name, b.DriverInfo.Rating, b.DriverInfo.Vehicle, b.SubmittedAt,
	)
	return err
}

func (s *Store) Bids(ctx context.Context, rideID string) ([]Bid, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, ride_id, driver_id, amount, currency, bid_type,
               driver_name, driver_rating, driver_vehicle, submitted_at
        FROM ride_bids
        WHERE ride_id = $1
        ORDER BY submitted_at`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []Bid
	for rows.Next() {
		var b Bid
		if err := rows.Scan(
			&b.ID, &b.RideID, &b.DriverID, &b.Amount.Amount, &b.Amount.Currency, &b.BidType,
			&b.DriverInfo.Name, &b.DriverInfo.Rating, &b.DriverInfo.Vehicle, &b.SubmittedAt,
		); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// AcceptBid is the single-winner commit: a conditional write that only
// succeeds while the ride is still bid-acceptable and no driver has been
// accepted. The first write wins; every later attempt affects zero rows.
func (s *Store) AcceptBid(ctx context.Context, rideID, driverID string, finalPrice types.Money) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE ride_requests
        SET status = 'accepted',
            status_version = status_version + 1,
            accepted_driver_id = $2,
            estimated_price = $3,
            accepted_at = NOW()
        WHERE id = $1
          AND status = ANY($4)
          AND accepted_driver_id IS NULL`,
		rideID, driverID, finalPrice.Amount, bidAcceptableStatuses,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus performs an optimistic-concurrency status write guarded by the
// expected current status and version.
func (s *Store) UpdateStatus(ctx context.Context, rideID string, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE ride_requests
        SET status = $1,
            status_version = status_version + 1,
            cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
        WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), rideID, string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
