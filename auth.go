// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// ClientAuth is one RFB security type's client-side handshake: announce a
// SecurityType, run Handshake against the negotiated connection, and
// describe yourself via String for logging.
type ClientAuth interface {
	SecurityType() uint8
	Handshake(ctx context.Context, conn net.Conn) error
	String() string
}

// loggerOrNoOp returns l, or a NoOpLogger if l is nil, so callers never
// need to guard every log call with a nil check.
func loggerOrNoOp(l Logger) Logger {
	if l == nil {
		return &NoOpLogger{}
	}
	return l
}

// ClientAuthNone is security type 1: no credential exchange, the
// connection is authenticated by the act of connecting alone.
type ClientAuthNone struct {
	logger Logger
}

func (c *ClientAuthNone) SecurityType() uint8 { return 1 }

// Handshake has nothing to send or receive; it only respects cancellation.
func (c *ClientAuthNone) Handshake(ctx context.Context, conn net.Conn) error {
	log := loggerOrNoOp(c.logger)

	select {
	case <-ctx.Done():
		return timeoutError("ClientAuthNone.Handshake", "cancelled before completing", ctx.Err())
	default:
	}

	log.Debug("no credential exchange required for security type None")
	return nil
}

func (c *ClientAuthNone) String() string { return "None" }

// SetLogger sets the logger used during Handshake.
func (c *ClientAuthNone) SetLogger(logger Logger) { c.logger = logger }

// PasswordAuth is security type 2 (VNC Authentication): a DES-encrypted
// response to a server-issued 16-byte challenge, keyed by Password.
type PasswordAuth struct {
	Password string
	logger   Logger
}

// NewPasswordAuth returns a PasswordAuth that will authenticate with
// password when negotiated.
func NewPasswordAuth(password string) *PasswordAuth {
	return &PasswordAuth{Password: password}
}

func (p *PasswordAuth) SecurityType() uint8 { return 2 }

// Handshake reads the server's 16-byte challenge, encrypts it with the DES
// key derived from Password, and writes back the 16-byte response, per RFC
// 6143 §7.2.2. The challenge and encrypted response are held in
// self-clearing buffers for the brief window they exist on the heap.
func (p *PasswordAuth) Handshake(ctx context.Context, conn net.Conn) error {
	log := loggerOrNoOp(p.logger)

	select {
	case <-ctx.Done():
		return timeoutError("PasswordAuth.Handshake", "cancelled before reading challenge", ctx.Err())
	default:
	}

	if len(p.Password) > VNCMaxPasswordLength {
		log.Warn("password exceeds VNC's 8-character limit; only the first 8 bytes key the DES cipher",
			Field{Key: "password_length", Value: len(p.Password)})
	}

	challenge := newProtectedBuffer(VNCChallengeSize)
	defer challenge.Clear()

	if err := binary.Read(conn, binary.BigEndian, challenge.Data()); err != nil {
		return networkError("PasswordAuth.Handshake", "failed to read authentication challenge", err)
	}

	select {
	case <-ctx.Done():
		return timeoutError("PasswordAuth.Handshake", "cancelled before encrypting challenge", ctx.Err())
	default:
	}

	encrypted, err := newSecureDESCipher().EncryptVNCChallenge(p.Password, challenge.Data())
	if err != nil {
		return authenticationError("PasswordAuth.Handshake", "failed to encrypt challenge", err)
	}

	response := newProtectedBuffer(len(encrypted))
	defer response.Clear()
	if err := response.Copy(encrypted); err != nil {
		return authenticationError("PasswordAuth.Handshake", "failed to stage encrypted response", err)
	}
	zeroize(encrypted)

	if err := binary.Write(conn, binary.BigEndian, response.Data()); err != nil {
		return networkError("PasswordAuth.Handshake", "failed to send encrypted response", err)
	}

	log.Debug("VNC Authentication response sent")
	return nil
}

func (p *PasswordAuth) String() string { return "VNC Password" }

// SetLogger sets the logger used during Handshake.
func (p *PasswordAuth) SetLogger(logger Logger) { p.logger = logger }

// ClearPassword zeroizes a throwaway copy of Password and resets it to "".
// Callers done authenticating and not expecting to reconnect should call
// this so the credential doesn't linger in the PasswordAuth value.
func (p *PasswordAuth) ClearPassword() {
	if p.Password != "" {
		p.Password = clearedString(p.Password)
	}
}

// AuthFactory constructs a fresh ClientAuth instance for one security type.
type AuthFactory func() ClientAuth

// AuthRegistry maps RFB security types to the ClientAuth that handles them,
// and picks among a server's offered types during negotiation.
type AuthRegistry struct {
	mu        sync.RWMutex
	factories map[uint8]AuthFactory
	logger    Logger
}

// NewAuthRegistry builds a registry with the None and VNC Password methods
// registered by default. Any methods passed in are registered as the exact
// instance given, taking priority over the defaults for their security
// type, so callers can hand over a pre-configured *PasswordAuth without it
// being replaced by a zero-value one during negotiation.
func NewAuthRegistry(methods ...ClientAuth) *AuthRegistry {
	r := &AuthRegistry{factories: make(map[uint8]AuthFactory)}

	r.Register(1, func() ClientAuth { return &ClientAuthNone{} })
	r.Register(2, func() ClientAuth { return &PasswordAuth{} })

	for _, method := range methods {
		method := method
		r.Register(method.SecurityType(), func() ClientAuth { return method })
	}

	return r
}

// Register installs factory as the handler for securityType, replacing any
// existing registration.
func (r *AuthRegistry) Register(securityType uint8, factory AuthFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[securityType] = factory
}

// Unregister removes securityType's handler, reporting whether one existed.
func (r *AuthRegistry) Unregister(securityType uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[securityType]; !ok {
		return false
	}
	delete(r.factories, securityType)
	return true
}

// CreateAuth builds a fresh ClientAuth for securityType.
func (r *AuthRegistry) CreateAuth(securityType uint8) (ClientAuth, error) {
	r.mu.RLock()
	factory, ok := r.factories[securityType]
	r.mu.RUnlock()

	if !ok {
		return nil, unsupportedError("AuthRegistry.CreateAuth",
			fmt.Sprintf("security type %d is not registered", securityType), nil)
	}
	return factory(), nil
}

// GetSupportedTypes lists every security type this registry can handle.
func (r *AuthRegistry) GetSupportedTypes() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]uint8, 0, len(r.factories))
	for securityType := range r.factories {
		types = append(types, securityType)
	}
	return types
}

// IsSupported reports whether securityType has a registered handler.
func (r *AuthRegistry) IsSupported(securityType uint8) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[securityType]
	return ok
}

// SetLogger sets the logger passed to negotiated ClientAuth instances that
// implement an optional SetLogger(Logger) method.
func (r *AuthRegistry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// NegotiateAuth picks a ClientAuth from the types serverTypes offers. When
// preferredOrder is nil, serverTypes' own order is the preference order
// (first-match, the behavior RFC 6143 implies when a client has no
// stronger opinion). Otherwise preferredOrder is walked first, so a caller
// using SecurityPreferenceStrongest can rank VNC Authentication above None.
func (r *AuthRegistry) NegotiateAuth(ctx context.Context, serverTypes, preferredOrder []uint8) (ClientAuth, uint8, error) {
	log := loggerOrNoOp(r.logger)

	select {
	case <-ctx.Done():
		return nil, 0, timeoutError("AuthRegistry.NegotiateAuth", "cancelled", ctx.Err())
	default:
	}

	if preferredOrder == nil {
		preferredOrder = serverTypes
	}

	for _, preferred := range preferredOrder {
		for _, offered := range serverTypes {
			if preferred != offered || !r.IsSupported(preferred) {
				continue
			}
			auth, err := r.CreateAuth(preferred)
			if err != nil {
				continue
			}
			log.Info("negotiated authentication method",
				Field{Key: "security_type", Value: preferred}, Field{Key: "method", Value: auth.String()})
			return auth, preferred, nil
		}
	}

	return nil, 0, unsupportedError("AuthRegistry.NegotiateAuth",
		fmt.Sprintf("no mutual security type: server offered %v, client supports %v", serverTypes, r.GetSupportedTypes()), nil)
}

// ValidateAuthMethod checks that auth is ready to run its Handshake: a
// non-nil instance, a non-zero security type, and, for *PasswordAuth
// specifically, a non-empty password (an empty one can only ever fail the
// server's challenge).
func (r *AuthRegistry) ValidateAuthMethod(auth ClientAuth) error {
	if auth == nil {
		return validationError("AuthRegistry.ValidateAuthMethod", "authentication method is nil", nil)
	}
	if auth.SecurityType() == 0 {
		return validationError("AuthRegistry.ValidateAuthMethod", "security type 0 is not a valid method", nil)
	}

	if pw, ok := auth.(*PasswordAuth); ok && pw.Password == "" {
		return validationError("AuthRegistry.ValidateAuthMethod", "VNC Password authentication requires a non-empty password", nil)
	}

	return nil
}
