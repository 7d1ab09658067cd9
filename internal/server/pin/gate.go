// Package pin implements the optional secondary PIN gate over a user's chat
// history. A user with a stored PIN credential must verify it once per
// session before history is served; locking clears only the session flag,
// the credential stays.
//
// Known gap, preserved from the original behavior: there is no attempt
// counter, rate limit or lockout on failed verifications.
package pin

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/peertutor/tutorchat/internal/common"
	"github.com/peertutor/tutorchat/internal/dbx"
	"github.com/peertutor/tutorchat/internal/server/repositories/repomanager"
)

const (
	pinLength = 4

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	saltSize = 16
)

// Gate owns the PIN state machine: NoPin, Locked, Unlocked. The stored
// credential lives on the user record; the Unlocked flag lives in the
// session store.
type Gate struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    SessionStore
}

// NewGate constructs a Gate over the user directory and a session store.
func NewGate(db *sql.DB, m repomanager.RepositoryManager, sessions SessionStore) *Gate {
	return &Gate{db: db, repomanager: m, sessions: sessions}
}

// SetPin enables the PIN for a user that has none yet (NoPin → Unlocked).
// The PIN must be exactly four digits; the caller's session is marked
// verified so the user is not immediately locked out of their own history.
func (g *Gate) SetPin(ctx context.Context, userID, sessionID, pin string) error {
	if !validPin(pin) {
		return fmt.Errorf("%w: PIN must be exactly %d digits", common.ErrorValidation, pinLength)
	}

	repo := g.repomanager.Users(g.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPin() {
		return fmt.Errorf("%w: PIN already set", common.ErrorValidation)
	}

	salt := common.GenerateRandByteArray(saltSize)
	hash := hashPin(pin, salt)

	if err := repo.SetPinCredential(ctx, userID, hash, salt); err != nil {
		return err
	}

	g.sessions.MarkVerified(sessionID)
	return nil
}

// VerifyPin checks the candidate against the stored credential
// (Locked → Unlocked). A wrong PIN leaves the session unverified and
// returns common.ErrorIncorrectPin.
func (g *Gate) VerifyPin(ctx context.Context, userID, sessionID, pin string) error {
	user, err := g.repomanager.Users(g.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPin() {
		return common.ErrorPinNotSet
	}

	if !checkPin(pin, user.PinHash, user.PinSalt) {
		return common.ErrorIncorrectPin
	}

	g.sessions.MarkVerified(sessionID)
	return nil
}

// Lock clears the session's verified flag (Unlocked → Locked). The stored
// credential is untouched.
func (g *Gate) Lock(sessionID string) {
	g.sessions.ClearVerified(sessionID)
}

// DisablePin removes the credential (Unlocked → NoPin) after re-verifying
// the PIN. On any failure the state is unchanged.
func (g *Gate) DisablePin(ctx context.Context, userID, sessionID, pin string) error {
	user, err := g.repomanager.Users(g.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPin() {
		return common.ErrorPinNotSet
	}

	if !checkPin(pin, user.PinHash, user.PinSalt) {
		return common.ErrorIncorrectPin
	}

	if err := dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return g.repomanager.Users(tx).ClearPinCredential(ctx, userID)
	}); err != nil {
		return err
	}

	g.sessions.ClearVerified(sessionID)
	return nil
}

// HasPinEnabled reports whether a credential is stored for the user.
func (g *Gate) HasPinEnabled(ctx context.Context, userID string) (bool, error) {
	user, err := g.repomanager.Users(g.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.HasPin(), nil
}

// IsVerified reports the session's flag.
func (g *Gate) IsVerified(sessionID string) bool {
	return g.sessions.IsVerified(sessionID)
}

// NeedsPinEntry = HasPinEnabled AND NOT IsVerified. History must not be
// served while this is true.
func (g *Gate) NeedsPinEntry(ctx context.Context, userID, sessionID string) (bool, error) {
	enabled, err := g.HasPinEnabled(ctx, userID)
	if err != nil {
		return false, err
	}
	return enabled && !g.sessions.IsVerified(sessionID), nil
}

func validPin(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func hashPin(pin string, salt []byte) []byte {
	return argon2.IDKey([]byte(pin), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func checkPin(pin string, hash, salt []byte) bool {
	candidate := hashPin(pin, salt)
	defer common.WipeByteArray(candidate)
	return subtle.ConstantTimeCompare(hash, candidate) == 1
}
