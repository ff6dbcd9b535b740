package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

func TestIssueGuestGrant(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	if _, err := f.broker.IssueGuestGrant(ctx, apptID, doctorID, "", domain.RoleCompanion); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("empty invitee name: got %v, want ErrBadRequest", err)
	}
	if _, err := f.broker.IssueGuestGrant(ctx, apptID, "acc-stranger", "Abuela", domain.RoleCompanion); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("grantor outside the appointment: got %v, want ErrForbidden", err)
	}
	if _, err := f.broker.IssueGuestGrant(ctx, 999, doctorID, "Abuela", domain.RoleCompanion); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown session: got %v, want ErrNotFound", err)
	}

	invite, err := f.broker.IssueGuestGrant(ctx, apptID, patientID, "Abuela", domain.RoleCompanion)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if invite.Code == "" || !strings.Contains(invite.Link, invite.Code) {
		t.Fatalf("invite = %+v", invite)
	}
	if want := f.currentTime().Add(24 * time.Hour); !invite.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", invite.ExpiresAt, want)
	}
}

func TestRedeemGuestGrant(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	invite, err := f.broker.IssueGuestGrant(ctx, apptID, doctorID, "Abuela", domain.RoleCompanion)
	if err != nil {
		t.Fatal(err)
	}
	redeemed, err := f.broker.RedeemGuestGrant(ctx, invite.Code)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	p := redeemed.Participant
	if p.DisplayName != "Abuela" || p.Role != domain.RoleCompanion || p.AccountID != nil {
		t.Fatalf("guest participant = %+v", p)
	}
	if p.ConnToken == "" {
		t.Fatal("guest participant has no connection token")
	}
	if redeemed.DoctorName != "Dra. Gomez" || redeemed.PatientName != "Juan Perez" {
		t.Fatalf("session metadata = %+v", redeemed)
	}

	if _, err := f.broker.RedeemGuestGrant(ctx, invite.Code); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("second redemption: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.broker.RedeemGuestGrant(ctx, "no-such-code"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("unknown code: got %v, want ErrUnauthorized", err)
	}
}

func TestRedeemGuestGrantConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	invite, err := f.broker.IssueGuestGrant(ctx, apptID, doctorID, "Abuela", domain.RoleGuest)
	if err != nil {
		t.Fatal(err)
	}

	const redeemers = 16
	var wg sync.WaitGroup
	errs := make([]error, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.broker.RedeemGuestGrant(ctx, invite.Code)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrUnauthorized):
		default:
			t.Fatalf("unexpected redemption error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d concurrent redemptions won, want exactly 1", wins)
	}
}

func TestRedeemExpiredGrant(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	invite, err := f.broker.IssueGuestGrant(ctx, apptID, doctorID, "Abuela", domain.RoleGuest)
	if err != nil {
		t.Fatal(err)
	}
	f.advance(24*time.Hour + time.Second)
	if _, err := f.broker.RedeemGuestGrant(ctx, invite.Code); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expired code: got %v, want ErrUnauthorized", err)
	}
}

func TestRedeemGrantOfCancelledAppointment(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	invite, err := f.broker.IssueGuestGrant(ctx, apptID, doctorID, "Abuela", domain.RoleGuest)
	if err != nil {
		t.Fatal(err)
	}
	f.appointments.Put(domain.Appointment{
		ID: apptID, DoctorID: doctorID, PatientID: patientID,
		DoctorName: "Dra. Gomez", PatientName: "Juan Perez",
		Status: domain.AppointmentCancelled,
	})
	if _, err := f.broker.RedeemGuestGrant(ctx, invite.Code); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("cancelled appointment: got %v, want ErrForbidden", err)
	}

	// The rejected redemption must not burn the code: once the
	// appointment is restored the same code still admits the guest.
	f.appointments.Put(domain.Appointment{
		ID: apptID, DoctorID: doctorID, PatientID: patientID,
		DoctorName: "Dra. Gomez", PatientName: "Juan Perez",
		Status: domain.AppointmentConfirmed,
	})
	if _, err := f.broker.RedeemGuestGrant(ctx, invite.Code); err != nil {
		t.Fatalf("redeem after restore: %v", err)
	}
}

func TestResolveAccountEntryReusesRow(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	first, err := f.broker.ResolveAccountEntry(ctx, apptID, patientID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Role != domain.RolePatient || first.DisplayName != "Juan Perez" {
		t.Fatalf("patient entry = %+v", first)
	}

	f.advance(5 * time.Minute)
	again, err := f.broker.ResolveAccountEntry(ctx, apptID, patientID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID || again.ConnToken != first.ConnToken {
		t.Fatalf("rejoin minted a new participant: %s vs %s", again.ID, first.ID)
	}

	if _, err := f.broker.ResolveAccountEntry(ctx, apptID, "acc-stranger"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger entry: got %v, want ErrForbidden", err)
	}
}

func TestResolveToken(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	p, err := f.broker.ResolveAccountEntry(ctx, apptID, doctorID)
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.broker.ResolveToken(ctx, p.ConnToken)
	if err != nil || got.ID != p.ID {
		t.Fatalf("ResolveToken = (%+v, %v)", got, err)
	}
	if _, err := f.broker.ResolveToken(ctx, "bogus"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("bogus token: got %v, want ErrUnauthorized", err)
	}
}
