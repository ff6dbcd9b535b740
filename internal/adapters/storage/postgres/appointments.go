package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clinvia/teleconsulta/internal/domain"
)

// AppointmentRepo reads the clinical appointments table. The rest of
// the repository owns that schema; this subsystem never writes it.
type AppointmentRepo struct {
	db *sql.DB
}

func NewAppointmentRepo(db *sql.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

func (r *AppointmentRepo) GetByID(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT a.id, a.doctor_id, a.patient_id,
		       d.full_name, p.full_name,
		       a.starts_at, a.ends_at, a.status
		FROM appointments a
		JOIN accounts d ON d.id = a.doctor_id
		JOIN accounts p ON p.id = a.patient_id
		WHERE a.id = $1
	`, int64(id))

	var (
		a       domain.Appointment
		aid     int64
		doctor  string
		patient string
		status  string
	)
	err := row.Scan(&aid, &doctor, &patient, &a.DoctorName, &a.PatientName, &a.StartsAt, &a.EndsAt, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Appointment{}, fmt.Errorf("%w: appointment %d", domain.ErrNotFound, id)
		}
		return domain.Appointment{}, err
	}
	a.ID = domain.AppointmentID(aid)
	a.DoctorID = domain.AccountID(doctor)
	a.PatientID = domain.AccountID(patient)
	a.Status = domain.AppointmentStatus(status)
	return a, nil
}
