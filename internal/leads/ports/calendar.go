package ports

import (
	"context"

	"leadsync_backend/internal/leads/domain"
)

// BookingSource returns the upcoming meetings per guest email.
type BookingSource interface {
	UpcomingBookings(ctx context.Context) (domain.Bookings, error)
}
