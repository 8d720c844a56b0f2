// Package consent defines the two-party consent vocabulary shared by
// debts and operations: a record is either settled or carries exactly
// one pending proposal that only the designated counterparty may
// resolve. The atomic enforcement of these transitions lives in the
// repository layer (conditional updates); this package is the single
// source of the statuses and of acceptor derivation.
package consent

// Status is the consent state of a debt or operation record.
type Status string

const (
	// StatusUnchanged means settled: no pending proposal.
	StatusUnchanged Status = "UNCHANGED"
	// StatusCreationAwaiting means the record was proposed and awaits
	// the counterparty's consent.
	StatusCreationAwaiting Status = "CREATION_AWAITING"
	// StatusDeletionAwaiting means deletion of the record was proposed
	// and awaits the counterparty's consent. Operations only.
	StatusDeletionAwaiting Status = "DELETION_AWAITING"
	// StatusUserDeleted is terminal: one participant was removed and
	// replaced by a virtual placeholder. Debts only.
	StatusUserDeleted Status = "USER_DELETED"
)

// Pending reports whether the status carries an unresolved proposal.
func (s Status) Pending() bool {
	return s == StatusCreationAwaiting || s == StatusDeletionAwaiting
}

// Settled reports whether a new proposal may be raised against a record
// in this status. USER_DELETED debts are settled in this sense: the
// remaining participant may still record operations on them.
func (s Status) Settled() bool {
	return s == StatusUnchanged || s == StatusUserDeleted
}

// CounterParty returns the other member of the {userA, userB} pair,
// i.e. the required acceptor for a proposal raised by actor. ok is
// false when actor is not a member of the pair.
func CounterParty(userA, userB, actor string) (string, bool) {
	switch actor {
	case userA:
		return userB, true
	case userB:
		return userA, true
	default:
		return "", false
	}
}

// IsParticipant reports whether actor is one of the two members.
func IsParticipant(userA, userB, actor string) bool {
	return actor == userA || actor == userB
}
