package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
	"github.com/AlexDid/simple-debts-api/internal/consent"
	"github.com/AlexDid/simple-debts-api/internal/models"
)

// In-memory stores sharing one mutex, so every transition checks its
// precondition and applies its write atomically, like the SQL
// conditional updates they stand in for.

type fakeDB struct {
	mu    sync.Mutex
	users map[string]models.User
	debts map[string]models.Debt
	ops   map[string]models.Operation
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users: make(map[string]models.User),
		debts: make(map[string]models.Debt),
		ops:   make(map[string]models.Operation),
	}
}

func copyDebt(d models.Debt) *models.Debt {
	out := d
	if d.StatusAcceptor != nil {
		acceptor := *d.StatusAcceptor
		out.StatusAcceptor = &acceptor
	}
	out.Operations = nil
	return &out
}

func copyOperation(op models.Operation) *models.Operation {
	out := op
	if op.StatusAcceptor != nil {
		acceptor := *op.StatusAcceptor
		out.StatusAcceptor = &acceptor
	}
	return &out
}

func copyUser(u models.User) *models.User {
	out := u
	out.PushTokens = append([]string(nil), u.PushTokens...)
	return &out
}

type fakeUserStore struct{ db *fakeDB }

func (s *fakeUserStore) Create(_ context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.users[user.ID] = *copyUser(*user)
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	user, ok := s.db.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}
	return copyUser(user), nil
}

func (s *fakeUserStore) SearchByName(_ context.Context, name string, limit int) ([]*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var users []*models.User
	for _, user := range s.db.users {
		if user.Kind != models.UserKindReal {
			continue
		}
		if strings.Contains(strings.ToLower(user.Name), strings.ToLower(name)) {
			users = append(users, copyUser(user))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *fakeUserStore) UpdateProfile(_ context.Context, id, name, picture string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	user, ok := s.db.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}
	user.Name = name
	user.Picture = picture
	s.db.users[id] = user
	return copyUser(user), nil
}

func (s *fakeUserStore) AddPushToken(_ context.Context, userID, token string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	user, ok := s.db.users[userID]
	if !ok {
		return fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}
	for _, existing := range user.PushTokens {
		if existing == token {
			return nil
		}
	}
	user.PushTokens = append(user.PushTokens, token)
	s.db.users[userID] = user
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[id]; !ok {
		return fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}
	delete(s.db.users, id)
	return nil
}

type fakeDebtStore struct{ db *fakeDB }

func samePair(d models.Debt, userA, userB string) bool {
	return (d.UserAID == userA && d.UserBID == userB) ||
		(d.UserAID == userB && d.UserBID == userA)
}

func (s *fakeDebtStore) Create(_ context.Context, debt *models.Debt) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.debts {
		if samePair(existing, debt.UserAID, debt.UserBID) && existing.Currency == debt.Currency {
			return fmt.Errorf("debt for this pair and currency: %w", apperrors.ErrConflict)
		}
	}
	s.db.debts[debt.ID] = *copyDebt(*debt)
	return nil
}

func (s *fakeDebtStore) GetByID(_ context.Context, id string) (*models.Debt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	debt, ok := s.db.debts[id]
	if !ok {
		return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}
	return copyDebt(debt), nil
}

func (s *fakeDebtStore) GetByPair(_ context.Context, userA, userB, currency string) (*models.Debt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, debt := range s.db.debts {
		if samePair(debt, userA, userB) && debt.Currency == currency {
			return copyDebt(debt), nil
		}
	}
	return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
}

func (s *fakeDebtStore) ListByUser(_ context.Context, userID string) ([]*models.Debt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var debts []*models.Debt
	for _, debt := range s.db.debts {
		if debt.UserAID == userID || debt.UserBID == userID {
			debts = append(debts, copyDebt(debt))
		}
	}
	sort.Slice(debts, func(i, j int) bool { return debts[i].CreatedAt.Before(debts[j].CreatedAt) })
	return debts, nil
}

func (s *fakeDebtStore) AcceptCreation(_ context.Context, debtID, acceptorID string) (*models.Debt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	debt, ok := s.db.debts[debtID]
	if !ok || debt.Status != consent.StatusCreationAwaiting ||
		debt.StatusAcceptor == nil || *debt.StatusAcceptor != acceptorID {
		return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}
	debt.Status = consent.StatusUnchanged
	debt.StatusAcceptor = nil
	s.db.debts[debtID] = debt
	return copyDebt(debt), nil
}

func (s *fakeDebtStore) DeclineCreation(_ context.Context, debtID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	debt, ok := s.db.debts[debtID]
	if !ok || debt.Status != consent.StatusCreationAwaiting ||
		!consent.IsParticipant(debt.UserAID, debt.UserBID, userID) {
		return fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}
	delete(s.db.debts, debtID)
	return nil
}

func (s *fakeDebtStore) ReplaceParticipant(_ context.Context, debtID, removedID, virtualID string) (*models.Debt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	debt, ok := s.db.debts[debtID]
	if !ok || !consent.IsParticipant(debt.UserAID, debt.UserBID, removedID) {
		return nil, fmt.Errorf("debt: %w", apperrors.ErrNotFound)
	}
	var remaining string
	if debt.UserAID == removedID {
		debt.UserAID = virtualID
		remaining = debt.UserBID
	} else {
		debt.UserBID = virtualID
		remaining = debt.UserAID
	}
	debt.Type = models.AccountTypeSingleUser
	debt.Status = consent.StatusUserDeleted
	debt.StatusAcceptor = &remaining
	s.db.debts[debtID] = debt
	return copyDebt(debt), nil
}

type fakeOperationStore struct{ db *fakeDB }

func (s *fakeOperationStore) Create(_ context.Context, op *models.Operation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	debt, ok := s.db.debts[op.DebtID]
	if !ok || !debt.Status.Settled() {
		return fmt.Errorf("debt has a pending request: %w", apperrors.ErrConflict)
	}
	for _, existing := range s.db.ops {
		if existing.DebtID == op.DebtID && existing.Status.Pending() {
			return fmt.Errorf("debt has a pending request: %w", apperrors.ErrConflict)
		}
	}
	s.db.ops[op.ID] = *copyOperation(*op)
	return nil
}

func (s *fakeOperationStore) GetByID(_ context.Context, id string) (*models.Operation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[id]
	if !ok {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	return copyOperation(op), nil
}

func (s *fakeOperationStore) ListByDebt(_ context.Context, debtID string) ([]*models.Operation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var ops []*models.Operation
	for _, op := range s.db.ops {
		if op.DebtID == debtID {
			ops = append(ops, copyOperation(op))
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].CreatedAt.Before(ops[j].CreatedAt) })
	return ops, nil
}

func (s *fakeOperationStore) AcceptCreation(_ context.Context, opID, acceptorID string) (*models.Operation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.Status != consent.StatusCreationAwaiting ||
		op.StatusAcceptor == nil || *op.StatusAcceptor != acceptorID {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	op.Status = consent.StatusUnchanged
	op.StatusAcceptor = nil
	s.db.ops[opID] = op
	return copyOperation(op), nil
}

func (s *fakeOperationStore) participant(op models.Operation, userID string) bool {
	debt, ok := s.db.debts[op.DebtID]
	if !ok {
		return false
	}
	return consent.IsParticipant(debt.UserAID, debt.UserBID, userID)
}

func (s *fakeOperationStore) DeclineCreation(_ context.Context, opID, userID string) (*models.Operation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.Status != consent.StatusCreationAwaiting || !s.participant(op, userID) {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	delete(s.db.ops, opID)
	return copyOperation(op), nil
}

func (s *fakeOperationStore) ProposeDeletion(_ context.Context, opID, acceptorID string) (*models.Operation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.Status != consent.StatusUnchanged {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	for _, existing := range s.db.ops {
		if existing.DebtID == op.DebtID && existing.Status.Pending() {
			return nil, fmt.Errorf("debt has a pending request: %w", apperrors.ErrConflict)
		}
	}
	op.Status = consent.StatusDeletionAwaiting
	op.StatusAcceptor = &acceptorID
	s.db.ops[opID] = op
	return copyOperation(op), nil
}

func (s *fakeOperationStore) AcceptDeletion(_ context.Context, opID, acceptorID string) (*models.Operation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.Status != consent.StatusDeletionAwaiting ||
		op.StatusAcceptor == nil || *op.StatusAcceptor != acceptorID {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	delete(s.db.ops, opID)
	return copyOperation(op), nil
}

func (s *fakeOperationStore) DeclineDeletion(_ context.Context, opID, userID string) (*models.Operation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.Status != consent.StatusDeletionAwaiting || !s.participant(op, userID) {
		return nil, fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	op.Status = consent.StatusUnchanged
	op.StatusAcceptor = nil
	s.db.ops[opID] = op
	return copyOperation(op), nil
}

func (s *fakeOperationStore) DeleteSettled(_ context.Context, opID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.Status != consent.StatusUnchanged {
		return fmt.Errorf("operation: %w", apperrors.ErrNotFound)
	}
	delete(s.db.ops, opID)
	return nil
}

func (s *fakeOperationStore) ReassignReceiver(_ context.Context, opID, oldID, newID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.ReceiverID != oldID {
		return nil
	}
	op.ReceiverID = newID
	s.db.ops[opID] = op
	return nil
}

func (s *fakeOperationStore) ClearAcceptor(_ context.Context, opID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	op, ok := s.db.ops[opID]
	if !ok || op.StatusAcceptor == nil || *op.StatusAcceptor != userID {
		return nil
	}
	op.Status = consent.StatusUnchanged
	op.StatusAcceptor = nil
	s.db.ops[opID] = op
	return nil
}

type testEnv struct {
	db        *fakeDB
	userStore *fakeUserStore
	debtStore *fakeDebtStore
	opStore   *fakeOperationStore

	debtService *DebtService
	opService   *OperationService
	userService *UserService
}

func newTestEnv() *testEnv {
	db := newFakeDB()
	userStore := &fakeUserStore{db: db}
	debtStore := &fakeDebtStore{db: db}
	opStore := &fakeOperationStore{db: db}

	debtService := NewDebtService(debtStore, opStore, userStore)
	return &testEnv{
		db:          db,
		userStore:   userStore,
		debtStore:   debtStore,
		opStore:     opStore,
		debtService: debtService,
		opService:   NewOperationService(opStore, debtStore),
		userService: NewUserService(userStore, debtStore, debtService, "test-secret"),
	}
}

func (e *testEnv) addUser(name string) *models.User {
	user := &models.User{
		ID:        uuid.New().String(),
		Name:      name,
		Picture:   "avatars/" + name + ".png",
		Kind:      models.UserKindReal,
		CreatedAt: time.Now(),
	}
	_ = e.userStore.Create(context.Background(), user)
	return user
}

// acceptedDebt creates a debt between a and b and runs the consent
// round, leaving it settled.
func (e *testEnv) acceptedDebt(a, b *models.User, currency string) *models.Debt {
	ctx := context.Background()
	debt, err := e.debtService.Create(ctx, a.ID, b.ID, currency)
	if err != nil {
		panic(err)
	}
	debt, err = e.debtService.AcceptCreation(ctx, b.ID, debt.ID)
	if err != nil {
		panic(err)
	}
	return debt
}
