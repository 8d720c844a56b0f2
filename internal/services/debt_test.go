package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/consent"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

func TestCreateDebt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if debt.Status != consent.StatusCreationAwaiting {
		t.Errorf("status = %s, want %s", debt.Status, consent.StatusCreationAwaiting)
	}
	if debt.StatusAcceptor == nil || *debt.StatusAcceptor != bob.ID {
		t.Errorf("statusAcceptor = %v, want %s", debt.StatusAcceptor, bob.ID)
	}
	if debt.Type != models.AccountTypeMultipleUsers {
		t.Errorf("type = %s, want %s", debt.Type, models.AccountTypeMultipleUsers)
	}
	if !debt.HasParticipant(alice.ID) || !debt.HasParticipant(bob.ID) {
		t.Error("debt should contain both participants")
	}
	if debt.UserAID == debt.UserBID {
		t.Error("participants must be distinct")
	}
}

func TestCreateDebtUnknownCounterparty(t *testing.T) {
	env := newTestEnv()
	alice := env.addUser("alice")

	_, err := env.debtService.Create(context.Background(), alice.ID, "nobody", "USD")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateDebtWithVirtualUser(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")

	virtual, err := CloneAsVirtual("ghost", "avatars/ghost.png")
	if err != nil {
		t.Fatalf("CloneAsVirtual: %v", err)
	}
	if err := env.userStore.Create(ctx, virtual); err != nil {
		t.Fatalf("Create virtual: %v", err)
	}

	_, err = env.debtService.Create(ctx, alice.ID, virtual.ID, "USD")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("debt with a virtual counterparty: err = %v, want ErrNotFound", err)
	}
}

func TestCreateDebtWithSelf(t *testing.T) {
	env := newTestEnv()
	alice := env.addUser("alice")

	_, err := env.debtService.Create(context.Background(), alice.ID, alice.ID, "USD")
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCreateDebtDuplicate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	if _, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD"); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	// Same unordered pair, proposed from the other side.
	_, err := env.debtService.Create(ctx, bob.ID, alice.ID, "USD")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}

	// A different currency is a different debt.
	if _, err := env.debtService.Create(ctx, alice.ID, bob.ID, "EUR"); err != nil {
		t.Errorf("different currency should be allowed: %v", err)
	}
}

func TestConcurrentCreateDebt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creator, counterparty := alice.ID, bob.ID
			if i%2 == 1 {
				creator, counterparty = bob.ID, alice.ID
			}
			_, err := env.debtService.Create(ctx, creator, counterparty, "USD")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, apperrors.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("exactly one concurrent create must win, got %d", successes)
	}
}

func TestCreateDebtCurrencyValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	for _, currency := range []string{"", "US", "DOLLARS"} {
		_, err := env.debtService.Create(ctx, alice.ID, bob.ID, currency)
		if !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("currency %q: err = %v, want ErrValidation", currency, err)
		}
	}

	debts, err := env.debtStore.ListByUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(debts) != 0 {
		t.Errorf("no debt should be created on validation failure, got %d", len(debts))
	}
}

func TestAcceptDebtCreation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	accepted, err := env.debtService.AcceptCreation(ctx, bob.ID, debt.ID)
	if err != nil {
		t.Fatalf("AcceptCreation: %v", err)
	}
	if accepted.Status != consent.StatusUnchanged {
		t.Errorf("status = %s, want %s", accepted.Status, consent.StatusUnchanged)
	}
	if accepted.StatusAcceptor != nil {
		t.Errorf("statusAcceptor = %v, want nil", accepted.StatusAcceptor)
	}

	// Accepting an already-settled debt is not found.
	if _, err := env.debtService.AcceptCreation(ctx, bob.ID, debt.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second accept: err = %v, want ErrNotFound", err)
	}
}

func TestAcceptDebtCreationWrongActor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The proposer cannot accept its own proposal.
	if _, err := env.debtService.AcceptCreation(ctx, alice.ID, debt.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	// Neither can an outsider.
	mallory := env.addUser("mallory")
	if _, err := env.debtService.AcceptCreation(ctx, mallory.ID, debt.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("outsider accept: err = %v, want ErrNotFound", err)
	}
}

func TestDeclineDebtCreation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := env.debtService.DeclineCreation(ctx, bob.ID, debt.ID); err != nil {
		t.Fatalf("DeclineCreation: %v", err)
	}

	// A declined creation never existed: the record is gone.
	if _, err := env.debtStore.GetByID(ctx, debt.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("debt should be removed, got err = %v", err)
	}
}

func TestDeclineDebtCreationByProposer(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The proposer abandoning its own proposal is a decline too.
	if err := env.debtService.DeclineCreation(ctx, alice.ID, debt.ID); err != nil {
		t.Fatalf("DeclineCreation by proposer: %v", err)
	}
	if _, err := env.debtStore.GetByID(ctx, debt.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("debt should be removed, got err = %v", err)
	}
}

func TestConcurrentAcceptDebt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.debtService.AcceptCreation(ctx, bob.ID, debt.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("exactly one concurrent accept must win, got %d", successes)
	}
}

func TestRemoveParticipant(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt := env.acceptedDebt(alice, bob, "USD")

	// One settled operation owed to alice.
	op, err := env.opService.Create(ctx, alice.ID, debt.ID, decimal.NewFromInt(25), alice.ID, "groceries")
	if err != nil {
		t.Fatalf("Create operation: %v", err)
	}
	if _, err := env.opService.AcceptCreation(ctx, bob.ID, op.ID); err != nil {
		t.Fatalf("AcceptCreation: %v", err)
	}

	updated, err := env.debtService.RemoveParticipant(ctx, debt, alice.ID)
	if err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}

	if updated.Type != models.AccountTypeSingleUser {
		t.Errorf("type = %s, want %s", updated.Type, models.AccountTypeSingleUser)
	}
	if updated.Status != consent.StatusUserDeleted {
		t.Errorf("status = %s, want %s", updated.Status, consent.StatusUserDeleted)
	}
	if updated.StatusAcceptor == nil || *updated.StatusAcceptor != bob.ID {
		t.Errorf("statusAcceptor = %v, want remaining participant %s", updated.StatusAcceptor, bob.ID)
	}

	// The pair invariant still holds: bob plus a fresh virtual clone.
	if !updated.HasParticipant(bob.ID) {
		t.Fatal("remaining participant missing from debt")
	}
	virtualID, _ := updated.CounterParty(bob.ID)
	if virtualID == alice.ID {
		t.Fatal("removed participant still on the debt")
	}
	virtual, err := env.userStore.GetByID(ctx, virtualID)
	if err != nil {
		t.Fatalf("virtual user not created: %v", err)
	}
	if virtual.Kind != models.UserKindVirtual {
		t.Errorf("kind = %s, want %s", virtual.Kind, models.UserKindVirtual)
	}
	if virtual.Name != alice.Name || virtual.Picture != alice.Picture {
		t.Errorf("clone profile = (%s, %s), want (%s, %s)", virtual.Name, virtual.Picture, alice.Name, alice.Picture)
	}

	// The settled operation now points at the clone, status untouched.
	got, err := env.opStore.GetByID(ctx, op.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ReceiverID != virtualID {
		t.Errorf("receiver = %s, want virtual clone %s", got.ReceiverID, virtualID)
	}
	if got.Status != consent.StatusUnchanged {
		t.Errorf("status = %s, want %s", got.Status, consent.StatusUnchanged)
	}
}

func TestRemoveParticipantDropsPendingProposal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt := env.acceptedDebt(alice, bob, "USD")

	// Pending operation awaiting alice.
	op, err := env.opService.Create(ctx, bob.ID, debt.ID, decimal.NewFromInt(10), bob.ID, "lunch")
	if err != nil {
		t.Fatalf("Create operation: %v", err)
	}
	if op.StatusAcceptor == nil || *op.StatusAcceptor != alice.ID {
		t.Fatalf("statusAcceptor = %v, want %s", op.StatusAcceptor, alice.ID)
	}

	if _, err := env.debtService.RemoveParticipant(ctx, debt, alice.ID); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}

	// The proposal is dropped, not auto-accepted.
	got, err := env.opStore.GetByID(ctx, op.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != consent.StatusUnchanged {
		t.Errorf("status = %s, want %s", got.Status, consent.StatusUnchanged)
	}
	if got.StatusAcceptor != nil {
		t.Errorf("statusAcceptor = %v, want nil", got.StatusAcceptor)
	}
	// Receiver was bob, untouched by the removal.
	if got.ReceiverID != bob.ID {
		t.Errorf("receiver = %s, want %s", got.ReceiverID, bob.ID)
	}
}

func TestLeavePendingDebtDeclines(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt, err := env.debtService.Create(ctx, alice.ID, bob.ID, "USD")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	left, err := env.debtService.Leave(ctx, alice.ID, debt.ID)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if left != nil {
		t.Errorf("leaving a pending debt should remove it, got %+v", left)
	}
	if _, err := env.debtStore.GetByID(ctx, debt.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("debt should be removed, got err = %v", err)
	}
}

func TestLeaveAcceptedDebtCompensates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice")
	bob := env.addUser("bob")

	debt := env.acceptedDebt(alice, bob, "USD")

	left, err := env.debtService.Leave(ctx, alice.ID, debt.ID)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if left == nil || left.Status != consent.StatusUserDeleted {
		t.Fatalf("leaving an accepted debt should mark it %s, got %+v", consent.StatusUserDeleted, left)
	}

	// The orphaned single-user debt persists; the remaining owner
	// cannot leave it again.
	if _, err := env.debtService.Leave(ctx, bob.ID, debt.ID); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("second leave: err = %v, want ErrValidation", err)
	}
}
