// Package domain contains entities without logic, just meta-data.
package domain

import "time"

type (
	AccountID     string
	AppointmentID int64
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Appointment is the clinical booking a video session hangs off.
// This subsystem reads it, never writes it.
type Appointment struct {
	ID          AppointmentID
	DoctorID    AccountID
	PatientID   AccountID
	DoctorName  string
	PatientName string
	StartsAt    time.Time
	EndsAt      time.Time
	Status      AppointmentStatus
}

// IsParty reports whether the account is the doctor or the patient
// of this appointment.
func (a *Appointment) IsParty(id AccountID) bool {
	return id != "" && (id == a.DoctorID || id == a.PatientID)
}

// RoleOf returns the role the account holds on this appointment,
// or RoleGuest if it holds none.
func (a *Appointment) RoleOf(id AccountID) Role {
	switch id {
	case a.DoctorID:
		return RoleDoctor
	case a.PatientID:
		return RolePatient
	}
	return RoleGuest
}
