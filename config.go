// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import "time"

// SecurityPreference controls how a session picks among the security types
// a server offers during negotiation.
type SecurityPreference uint8

const (
	// SecurityPreferenceFirstMatch picks the first server-offered type for
	// which the client has a registered ClientAuth, in the order the server
	// sent them. This is the behavior observed in the reference
	// implementation and is the default. When ClientConfig.Auth is set, the
	// order of its methods is walked instead of the server's order.
	SecurityPreferenceFirstMatch SecurityPreference = iota

	// SecurityPreferenceStrongest picks the strongest mutually supported
	// type instead, trying VNC Authentication (2), then None (1), then the
	// types of ClientConfig.Auth in their order. It takes effect only when
	// an AuthRegistry is configured.
	SecurityPreferenceStrongest
)

// ClientConfig configures a session's behavior. Built up by ClientOption
// functions passed to NewEngine; callers should not construct it directly.
type ClientConfig struct {
	// Auth specifies the authentication methods supported by the client,
	// in preference order, used when AuthRegistry is nil.
	Auth []ClientAuth

	// AuthRegistry specifies the authentication registry to use for
	// negotiation. Takes priority over Auth when set.
	AuthRegistry *AuthRegistry

	// SecurityPreference controls how ties among offered security types
	// are broken.
	SecurityPreference SecurityPreference

	// VersionQuirks overrides the default ProtocolVersion banner quirk
	// table (see defaultVersionQuirks).
	VersionQuirks []VersionQuirk

	// RepeaterID is written as the proxy address frame when the server
	// banner indicates a repeater (RFB 000.000\n).
	RepeaterID string

	// Exclusive determines whether this client requests exclusive access
	// (ClientInit shared=false).
	Exclusive bool

	// Logger specifies the logger instance used for session logging.
	Logger Logger

	// Metrics specifies the metrics collector used for session monitoring.
	Metrics MetricsCollector

	// InputPolicy governs whether key/pointer events are forwarded to the
	// server. Defaults to PolicyFull.
	InputPolicy InputPolicy

	// Encodings overrides the default encoding preference order
	// ([ZRLE, Hextile, RRE, CopyRect, Raw]) sent during initialize.
	Encodings []Encoding

	// ConnectTimeout bounds the entire Connect handshake.
	ConnectTimeout time.Duration

	// ReadTimeout is the read timeout setting. Defaults to 15s. Engine does
	// not apply it: no read deadline is set on the connection from it.
	ReadTimeout time.Duration

	// WriteTimeout is the write timeout setting. Defaults to 15s. Engine
	// does not apply it: no write deadline is set on the connection from it.
	WriteTimeout time.Duration

	// DisconnectTimeout bounds how long Disconnect waits for the reader
	// task to exit before closing the socket out from under it. Defaults
	// to 3s.
	DisconnectTimeout time.Duration
}

// ClientOption represents a functional option for configuring a session.
type ClientOption func(*ClientConfig)

// WithAuth sets the authentication methods tried, in order, when no
// AuthRegistry is supplied.
func WithAuth(auth ...ClientAuth) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Auth = auth
	}
}

// WithAuthRegistry sets the authentication registry used for negotiation,
// allowing custom or pre-configured ClientAuth instances (e.g. a
// *PasswordAuth already carrying a password) to take part.
func WithAuthRegistry(registry *AuthRegistry) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.AuthRegistry = registry
	}
}

// WithSecurityPreference overrides the default first-match security type
// selection policy.
func WithSecurityPreference(pref SecurityPreference) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.SecurityPreference = pref
	}
}

// WithVersionQuirks overrides the default ProtocolVersion banner quirk
// table used to map a server's banner to a supported minor version.
func WithVersionQuirks(quirks []VersionQuirk) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.VersionQuirks = quirks
	}
}

// WithRepeaterID sets the proxy ID written when the server banner
// indicates a UltraVNC-style repeater.
func WithRepeaterID(id string) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.RepeaterID = id
	}
}

// WithExclusive sets whether the client requests exclusive access.
func WithExclusive(exclusive bool) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Exclusive = exclusive
	}
}

// WithLogger sets the logger used for session logging.
func WithLogger(logger Logger) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Logger = logger
	}
}

// WithMetrics sets the metrics collector used for session monitoring.
func WithMetrics(metrics MetricsCollector) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Metrics = metrics
	}
}

// WithInputPolicy sets the policy governing whether key and pointer events
// are forwarded to the server.
func WithInputPolicy(policy InputPolicy) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.InputPolicy = policy
	}
}

// WithEncodings overrides the encoding preference order sent in
// SetEncodings during initialize.
func WithEncodings(encs ...Encoding) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Encodings = encs
	}
}

// WithConnectTimeout bounds the entire connect handshake.
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.ConnectTimeout = timeout
	}
}

// WithReadTimeout sets ClientConfig.ReadTimeout.
func WithReadTimeout(timeout time.Duration) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.ReadTimeout = timeout
	}
}

// WithWriteTimeout sets ClientConfig.WriteTimeout.
func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.WriteTimeout = timeout
	}
}

// WithTimeout sets both read and write timeouts to the same value.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.ReadTimeout = timeout
		cfg.WriteTimeout = timeout
	}
}

// WithDisconnectTimeout bounds how long Disconnect waits for the reader
// task to exit before closing the socket.
func WithDisconnectTimeout(timeout time.Duration) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.DisconnectTimeout = timeout
	}
}

const (
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultDisconnectTimeout = 3 * time.Second
)

// newClientConfig builds a ClientConfig from options, applying defaults for
// anything left unset.
func newClientConfig(options ...ClientOption) *ClientConfig {
	cfg := &ClientConfig{
		SecurityPreference: SecurityPreferenceFirstMatch,
		ReadTimeout:        defaultReadTimeout,
		WriteTimeout:       defaultWriteTimeout,
		DisconnectTimeout:  defaultDisconnectTimeout,
		InputPolicy:        PolicyFull{},
	}

	for _, option := range options {
		option(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = &NoOpLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NoOpMetrics{}
	}
	if cfg.VersionQuirks == nil {
		cfg.VersionQuirks = defaultVersionQuirks
	}
	if cfg.Encodings == nil {
		cfg.Encodings = []Encoding{
			&ZRLEEncoding{},
			&HextileEncoding{},
			&RREEncoding{},
			&CopyRectEncoding{},
			&RawEncoding{},
		}
	}

	return cfg
}
