package scheduling

import (
	"context"
)

type PractitionerRepository interface {
	// ListNames returns every practitioner's full name in lexicographic order.
	ListNames(ctx context.Context) ([]string, error)
	// FindByName reports the id of the practitioner called name, if any.
	FindByName(ctx context.Context, name string) (int64, bool, error)
	// ResolveOrCreate returns the id of the practitioner called name, inserting
	// one when none exists. created is true when this call inserted the row.
	ResolveOrCreate(ctx context.Context, name string) (id int64, created bool, err error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	Exists(ctx context.Context, key DedupKey) (bool, error)
	// LockPractitioner serializes bulk imports for one practitioner until the
	// surrounding transaction ends, so duplicate checks see committed rows.
	LockPractitioner(ctx context.Context, practitionerID int64) error
	Query(ctx context.Context, f AppointmentFilter) ([]AppointmentRow, error)
}
