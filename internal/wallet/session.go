package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/model"
)

// ApprovalFunc asks the user to approve signing msg. It may block until the
// user answers or ctx is cancelled.
type ApprovalFunc func(ctx context.Context, msg string) (bool, error)

// Session is the connected wallet. It starts disconnected.
type Session struct {
	mu        sync.RWMutex
	signer    *Signer
	approve   ApprovalFunc
	listeners []func(address string)
	log       *logrus.Entry
}

// NewSession returns a disconnected session.
func NewSession() *Session {
	return &Session{log: logrus.WithField("component", "wallet")}
}

// SetApproval installs a hook consulted before every signature. nil disables it.
func (s *Session) SetApproval(fn ApprovalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approve = fn
}

// OnChange registers fn to be called with the new address after every
// connect or disconnect. The address is empty after a disconnect.
func (s *Session) OnChange(fn func(address string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Connect makes signer the active account.
func (s *Session) Connect(signer *Signer) {
	s.mu.Lock()
	prev := s.addressLocked()
	s.signer = signer
	addr := s.addressLocked()
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	if prev == addr {
		return
	}
	s.log.WithField("address", addr).Info("Wallet connected")
	for _, fn := range listeners {
		fn(addr)
	}
}

// Disconnect drops the active account.
func (s *Session) Disconnect() {
	s.mu.Lock()
	prev := s.addressLocked()
	s.signer = nil
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	if prev == "" {
		return
	}
	s.log.WithField("address", prev).Info("Wallet disconnected")
	for _, fn := range listeners {
		fn("")
	}
}

// Address returns the checksummed address of the active account, or "".
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addressLocked()
}

func (s *Session) addressLocked() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Address().Hex()
}

// Connected reports whether an account is active.
func (s *Session) Connected() bool {
	return s.Address() != ""
}

// Signer returns the active signer, or model.ErrNoWallet.
func (s *Session) Signer() (*Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signer == nil {
		return nil, model.ErrNoWallet
	}
	return s.signer, nil
}

// SignMessage signs msg with the active account after the approval hook, if
// any, agreed. A refusal or a cancelled ctx yields model.ErrSignatureRejected.
func (s *Session) SignMessage(ctx context.Context, msg string) (string, error) {
	s.mu.RLock()
	signer, approve := s.signer, s.approve
	s.mu.RUnlock()

	if signer == nil {
		return "", model.ErrNoWallet
	}
	if approve != nil {
		ok, err := approve(ctx, msg)
		if err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrSignatureRejected, err)
		}
		if !ok {
			return "", model.ErrSignatureRejected
		}
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrSignatureRejected, err)
	}
	return signer.SignMessage(msg)
}
