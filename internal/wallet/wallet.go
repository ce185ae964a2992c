// Package wallet models the user's connected wallet.
// Signing happens inside the wallet; this module only hands it encoded calls.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUserCancelled is returned when the user dismisses the wallet prompt
	ErrUserCancelled = errors.New("user cancelled the transaction")
	// ErrNotConnected is returned when an action needs a wallet and none is connected
	ErrNotConnected = errors.New("wallet not connected")
)

// Call is an encoded contract call awaiting the user's confirmation
type Call struct {
	Contract     string `json:"contract"`
	FunctionName string `json:"functionName"`
	Data         []byte `json:"data,omitempty"`
	// Args is a readable rendering of the call arguments for the confirmation prompt
	Args []string `json:"args,omitempty"`
}

// Wallet submits calls on behalf of the connected user
type Wallet interface {
	// SubmitCall asks the user to confirm the call and returns the transaction id
	SubmitCall(ctx context.Context, call Call) (string, error)
}

// Session is the connection context passed explicitly to every operation that needs it
type Session struct {
	Address string
	Wallet  Wallet
}

// NewSession creates a session for an address
func NewSession(address string, w Wallet) Session {
	return Session{Address: strings.TrimSpace(address), Wallet: w}
}

// Connected reports whether the session has an address
func (s Session) Connected() bool {
	return s.Address != ""
}

// CanSign reports whether the session can submit writes
func (s Session) CanSign() bool {
	return s.Connected() && s.Wallet != nil
}

// ShortAddress renders an address as its first six and last four characters
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return fmt.Sprintf("%s...%s", address[:6], address[len(address)-4:])
}

// DevWallet confirms every call immediately and records what it was asked to sign.
// It backs the development contract and tests.
type DevWallet struct {
	mu     sync.Mutex
	calls  []Call
	reject error
}

// NewDevWallet creates a development wallet
func NewDevWallet() *DevWallet {
	return &DevWallet{}
}

// SubmitCall records the call and returns a fresh transaction id
func (w *DevWallet) SubmitCall(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reject != nil {
		return "", w.reject
	}
	w.calls = append(w.calls, call)
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

// RejectWith makes subsequent calls fail with err. Nil restores confirmation.
func (w *DevWallet) RejectWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reject = err
}

// Calls returns the calls confirmed so far
func (w *DevWallet) Calls() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Call, len(w.calls))
	copy(out, w.calls)
	return out
}
