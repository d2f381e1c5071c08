package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// BookingRepo persists bookings using pgx and plain SQL. Status history and
// the pending reschedule proposal live in jsonb columns on the same row, so a
// booking snapshot is always read and written atomically.
type BookingRepo struct{}

// NewBookingRepo constructs a new BookingRepo.
func NewBookingRepo() ports.BookingRepository {
	return &BookingRepo{}
}

const bookingColumns = `
	id, created_at, updated_at, customer_id, mechanic_id, vehicle_id, service_id,
	scheduled_date, scheduled_time, status, status_history,
	latitude, longitude, eta_minutes, eta_manual,
	cancellation_reason, reschedule_proposal, is_paid, is_reviewed, version`

// Create inserts a new booking row. The id, created_at and updated_at values
// assigned by the database are written back onto b.
func (repo *BookingRepo) Create(ctx context.Context, b *booking.Booking) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	history, err := json.Marshal(b.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}
	proposal, err := marshalProposal(b.Reschedule)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (
			customer_id, mechanic_id, vehicle_id, service_id,
			scheduled_date, scheduled_time, status, status_history,
			latitude, longitude, eta_minutes, eta_manual,
			cancellation_reason, reschedule_proposal, is_paid, is_reviewed, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14::jsonb, $15, $16, 1)
		RETURNING id, created_at, updated_at
	`,
		b.CustomerID,
		b.MechanicID,
		b.VehicleID,
		b.ServiceID,
		b.ScheduledDate,
		b.ScheduledTime,
		b.Status.String(),
		string(history),
		b.Location.Latitude,
		b.Location.Longitude,
		b.ETAMinutes,
		b.ETAManual,
		b.CancellationReason,
		proposal,
		b.IsPaid,
		b.IsReviewed,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}
	b.Version = 1

	return nil
}

// GetByID fetches a booking by primary key (uuid).
func (repo *BookingRepo) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	out, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

// ListByCustomer returns all bookings for a customer, newest first.
func (repo *BookingRepo) ListByCustomer(ctx context.Context, customerID string) ([]*booking.Booking, error) {
	return repo.list(ctx, `WHERE customer_id = $1`, customerID)
}

// ListByMechanic returns all bookings assigned to a mechanic, newest first.
func (repo *BookingRepo) ListByMechanic(ctx context.Context, mechanicID string) ([]*booking.Booking, error) {
	return repo.list(ctx, `WHERE mechanic_id = $1`, mechanicID)
}

// ListByStatus returns all bookings currently in the given status, newest first.
func (repo *BookingRepo) ListByStatus(ctx context.Context, status booking.Status) ([]*booking.Booking, error) {
	return repo.list(ctx, `WHERE status = $1`, status.String())
}

func (repo *BookingRepo) list(ctx context.Context, where string, arg any) ([]*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+bookingColumns+` FROM bookings `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// GetActiveForMechanic fetches the most recent in-flight job for a mechanic.
// Returns (nil, nil) when the mechanic has no active job.
func (repo *BookingRepo) GetActiveForMechanic(ctx context.Context, mechanicID string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE mechanic_id = $1
		  AND status IN ('MECHANIC_ASSIGNED', 'EN_ROUTE', 'IN_PROGRESS')
		ORDER BY updated_at DESC
		LIMIT 1
	`, mechanicID)
	out, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Update writes the full booking snapshot conditionally on expectedVersion.
// The stored row must still carry expectedVersion, otherwise no row matches
// and the caller gets ErrConcurrentModification (or ErrNotFound when the row
// is gone entirely). On success b.Version is bumped to expectedVersion+1.
func (repo *BookingRepo) Update(ctx context.Context, b *booking.Booking, expectedVersion int64) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	history, err := json.Marshal(b.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}
	proposal, err := marshalProposal(b.Reschedule)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET updated_at = now(),
		    mechanic_id = $1,
		    scheduled_date = $2,
		    scheduled_time = $3,
		    status = $4,
		    status_history = $5::jsonb,
		    eta_minutes = $6,
		    eta_manual = $7,
		    cancellation_reason = $8,
		    reschedule_proposal = $9::jsonb,
		    is_paid = $10,
		    is_reviewed = $11,
		    version = version + 1
		WHERE id = $12
		  AND version = $13
	`,
		b.MechanicID,
		b.ScheduledDate,
		b.ScheduledTime,
		b.Status.String(),
		string(history),
		b.ETAMinutes,
		b.ETAManual,
		b.CancellationReason,
		proposal,
		b.IsPaid,
		b.IsReviewed,
		b.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		b.Version = expectedVersion + 1
		return nil
	}

	// zero rows matched: distinguish a missing row from a version mismatch
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ports.ErrNotFound
	}
	return ports.ErrConcurrentModification
}

// CountByStatus returns the number of bookings per status for the dispatch board.
func (repo *BookingRepo) CountByStatus(ctx context.Context) (map[booking.Status]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT status, count(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count bookings by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[booking.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[booking.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}

// --- helpers ---

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*booking.Booking, error) {
	var (
		out      booking.Booking
		status   string
		history  []byte
		proposal []byte
		lat, lng float64
	)

	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.CustomerID, &out.MechanicID,
		&out.VehicleID, &out.ServiceID, &out.ScheduledDate, &out.ScheduledTime,
		&status, &history, &lat, &lng, &out.ETAMinutes, &out.ETAManual,
		&out.CancellationReason, &proposal, &out.IsPaid, &out.IsReviewed, &out.Version,
	)
	if err != nil {
		return nil, err
	}

	out.Status = booking.Status(status)
	out.Location = geo.Point{Latitude: lat, Longitude: lng}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &out.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshal status history: %w", err)
		}
	}
	if len(proposal) > 0 {
		var p booking.RescheduleProposal
		if err := json.Unmarshal(proposal, &p); err != nil {
			return nil, fmt.Errorf("unmarshal reschedule proposal: %w", err)
		}
		out.Reschedule = &p
	}

	return &out, nil
}

// marshalProposal encodes the pending proposal, keeping SQL NULL when absent.
func marshalProposal(p *booking.RescheduleProposal) (*string, error) {
	if p == nil {
		return nil, nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal reschedule proposal: %w", err)
	}
	s := string(body)
	return &s, nil
}
