// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// State identifies a session's position in the connection state machine.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingPassword
	StateInitializing
	StateConnected
	StateDisconnecting
)

// String returns a human-readable name for a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingPassword:
		return "AwaitingPassword"
	case StateInitializing:
		return "Initializing"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// Engine is a single-shot RFB client session: version and security
// negotiation, initialization, and a background reader task that keeps a
// local Framebuffer mirror in sync with the server. An Engine is not
// reusable after Disconnect; construct a new one to reconnect.
type Engine struct {
	conn   net.Conn
	config *ClientConfig

	mu    sync.RWMutex
	state State

	fb          *Framebuffer
	auth        ClientAuth
	minor       uint
	needsAuth   bool

	zrle *zrleStream

	fullScreenRefresh atomic.Bool
	done              chan struct{}
	group             *errgroup.Group

	onUpdate         func(Rectangle)
	onConnectionLost func()
	onServerCutText  func(string)
	onBell           func()
	lostOnce         sync.Once
}

// NewEngine creates a session bound to an already-dialed connection.
// Options configure authentication, timeouts, logging, metrics, and input
// policy; see ClientOption.
func NewEngine(conn net.Conn, options ...ClientOption) *Engine {
	return &Engine{
		conn:   conn,
		config: newClientConfig(options...),
		state:  StateDisconnected,
		zrle:   newZRLEStream(),
	}
}

// State returns the session's current state machine position.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// OnUpdate registers a callback invoked once per decoded rectangle from the
// reader task.
func (e *Engine) OnUpdate(fn func(Rectangle)) { e.onUpdate = fn }

// OnConnectionLost registers a callback invoked at most once when the
// reader task gives up on the connection.
func (e *Engine) OnConnectionLost(fn func()) { e.onConnectionLost = fn }

// OnServerCutText registers a callback invoked when the server sends
// clipboard text.
func (e *Engine) OnServerCutText(fn func(string)) { e.onServerCutText = fn }

// OnBell registers a callback invoked on a server bell message.
func (e *Engine) OnBell(fn func()) { e.onBell = fn }

// SetFullScreenRefresh requests that the next FramebufferUpdateRequest
// issued by the reader task be non-incremental. Safe to call from any
// goroutine.
func (e *Engine) SetFullScreenRefresh() { e.fullScreenRefresh.Store(true) }

// Framebuffer returns the session's framebuffer mirror. Valid only once
// Connect has completed initialization (state >= Connected).
func (e *Engine) Framebuffer() *Framebuffer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fb
}

// Connect performs the full handshake: version negotiation, security
// negotiation and authentication, and initialization. Initialization sends
// SetPixelFormat only when the server's own advertised (bits_per_pixel,
// depth) pair is one of the PixelFormatForPreset pairs; otherwise the
// server's format is kept. Connect takes no pixel format request from the
// caller. It combines what
// spec separates into connect/authenticate/initialize into one call,
// since the AuthRegistry supplied via WithAuthRegistry already carries
// whatever credential is needed.
func (e *Engine) Connect(ctx context.Context) error {
	if e.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ConnectTimeout)
		defer cancel()
	}

	if tcpConn, ok := e.conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	e.setState(StateConnecting)
	e.config.Logger.Info("starting RFB handshake")

	start := timeNow()

	minor, err := negotiateVersion(ctx, e.conn, e.config.VersionQuirks, e.config.RepeaterID)
	if err != nil {
		e.setState(StateDisconnected)
		return err
	}
	e.minor = minor

	auth, selectedType, err := negotiateSecurity(ctx, e.conn, minor, e.config.AuthRegistry, e.config.Auth, e.config.SecurityPreference)
	if err != nil {
		e.setState(StateDisconnected)
		return err
	}
	e.auth = auth
	e.needsAuth = selectedType != 1

	if e.config.AuthRegistry != nil {
		if err := e.config.AuthRegistry.ValidateAuthMethod(auth); err != nil {
			e.setState(StateDisconnected)
			return authenticationError("Connect", "authentication method validation failed", err)
		}
	}
	if logAware, ok := auth.(interface{ SetLogger(Logger) }); ok {
		logAware.SetLogger(e.config.Logger)
	}

	if e.needsAuth {
		e.setState(StateAwaitingPassword)
	}

	if err := auth.Handshake(ctx, e.conn); err != nil {
		e.setState(StateDisconnected)
		return authenticationError("Connect", "authentication handshake failed", err)
	}

	if minor >= 8 || e.needsAuth {
		if err := readSecurityResult(ctx, e.conn); err != nil {
			e.setState(StateDisconnected)
			return err
		}
	}

	e.config.Logger.Info("authentication successful",
		Field{Key: "handshake_duration_ms", Value: timeNow().Sub(start).Milliseconds()})
	e.config.Metrics.Histogram(metricHandshakeDuration, timeNow().Sub(start).Milliseconds())

	e.setState(StateInitializing)
	if err := e.initialize(ctx); err != nil {
		e.setState(StateDisconnected)
		return err
	}

	e.setState(StateConnected)
	return nil
}

// initialize performs ClientInit/ServerInit, builds the Framebuffer,
// advertises encodings, and sends SetPixelFormat with the preset matching
// the server's advertised (bits_per_pixel, depth) pair, if there is one.
func (e *Engine) initialize(ctx context.Context) error {
	if err := writeClientInit(ctx, e.conn, !e.config.Exclusive); err != nil {
		return err
	}

	init, err := readServerInit(ctx, e.conn)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.fb = NewFramebuffer(int(init.Width), int(init.Height), init.PixelFormat, init.DesktopName)
	e.mu.Unlock()

	if err := writeSetEncodings(ctx, e.conn, e.config.Encodings); err != nil {
		return err
	}

	if preset, ok := PixelFormatForPreset(init.PixelFormat.BPP, init.PixelFormat.Depth); ok {
		if err := writeSetPixelFormat(ctx, e.conn, preset); err != nil {
			return err
		}
		e.fb.SetPixelFormat(*preset)
	}

	return nil
}

// StartUpdates spawns the reader task and requests the first, full-screen
// framebuffer update. It returns immediately; events fire asynchronously
// via the registered On* callbacks.
func (e *Engine) StartUpdates(ctx context.Context) {
	e.done = make(chan struct{})
	group, gctx := errgroup.WithContext(ctx)
	e.group = group

	group.Go(func() error {
		return e.readerLoop(gctx)
	})

	width, height := e.fb.Width, e.fb.Height
	_ = writeFramebufferUpdateRequest(ctx, e.conn, false, 0, 0, uint16(width), uint16(height)) // #nosec G115 - framebuffer dimensions are validated on ServerInit
}

// readerLoop owns the read half of the connection for the life of the
// session: it decodes server messages, dispatches events, and issues the
// next FramebufferUpdateRequest after fully processing each update.
func (e *Engine) readerLoop(ctx context.Context) error {
	registry := serverMessageRegistry()
	consecutiveFailures := 0

	for {
		select {
		case <-e.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var messageType uint8
		if err := readBinaryWithContext(ctx, e.conn, &messageType); err != nil {
			consecutiveFailures++
			e.config.Metrics.Counter(metricReaderFailureStreaks, consecutiveFailures)
			if consecutiveFailures >= 2 {
				e.fireConnectionLost()
				return err
			}
			width, height := e.fb.Width, e.fb.Height
			_ = writeFramebufferUpdateRequest(ctx, e.conn, true, 0, 0, uint16(width), uint16(height)) // #nosec G115
			continue
		}
		consecutiveFailures = 0

		msg, ok := registry[messageType]
		if !ok {
			e.fireConnectionLost()
			return unsupportedError("readerLoop", fmt.Sprintf("unsupported message type: %d", messageType), nil)
		}

		decodeCtx := &DecodeContext{FB: e.fb, Zrle: e.zrle}
		parsed, err := msg.Read(decodeCtx, e.conn)
		if err != nil {
			e.fireConnectionLost()
			return err
		}

		e.dispatch(parsed)

		select {
		case <-e.done:
			return nil
		default:
		}

		incremental := !e.fullScreenRefresh.Swap(false)
		width, height := e.fb.Width, e.fb.Height
		if err := writeFramebufferUpdateRequest(ctx, e.conn, incremental, 0, 0, uint16(width), uint16(height)); err != nil { // #nosec G115
			e.fireConnectionLost()
			return err
		}
	}
}

// dispatch invokes the registered callback for a decoded server message.
func (e *Engine) dispatch(msg ServerMessage) {
	switch m := msg.(type) {
	case *FramebufferUpdateMessage:
		e.config.Metrics.Counter(metricRectanglesDecoded, m.NumRectangles)
		if e.onUpdate != nil {
			for _, rect := range m.Rectangles {
				e.onUpdate(rect)
			}
		}
	case *ServerCutTextMessage:
		if e.onServerCutText != nil {
			e.onServerCutText(m.Text)
		}
	case *BellMessage:
		if e.onBell != nil {
			e.onBell()
		}
	}
}

func (e *Engine) fireConnectionLost() {
	e.lostOnce.Do(func() {
		if e.onConnectionLost != nil {
			e.onConnectionLost()
		}
	})
}

// WriteKeyEvent sends a KeyEvent to the server, subject to the session's
// InputPolicy.
func (e *Engine) WriteKeyEvent(ctx context.Context, keysym uint32, down bool) error {
	if !e.config.InputPolicy.AllowKeyEvent() {
		return nil
	}
	return writeKeyEvent(ctx, e.conn, keysym, down)
}

// WritePointerEvent sends a PointerEvent to the server, subject to the
// session's InputPolicy.
func (e *Engine) WritePointerEvent(ctx context.Context, mask ButtonMask, x, y uint16) error {
	if !e.config.InputPolicy.AllowPointerEvent() {
		return nil
	}
	width, height := uint16(e.fb.Width), uint16(e.fb.Height) // #nosec G115 - framebuffer dimensions are validated on ServerInit
	return writePointerEvent(ctx, e.conn, mask, x, y, width, height)
}

// WriteClientCutText sends clipboard text to the server. Unlike key and
// pointer events, this always forwards regardless of InputPolicy.
func (e *Engine) WriteClientCutText(ctx context.Context, text string) error {
	return writeClientCutText(ctx, e.conn, text)
}

// Disconnect signals the reader task to stop, wakes it with a 1x1
// incremental update request, waits up to the configured disconnect
// timeout for it to exit, and closes the socket regardless of whether it
// did. Safe to call once; the Engine is not reusable afterward.
func (e *Engine) Disconnect() error {
	e.setState(StateDisconnecting)

	if e.done != nil {
		close(e.done)
	}

	if e.fb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = writeFramebufferUpdateRequest(ctx, e.conn, true, 0, 0, 1, 1)
		cancel()
	}

	if e.group != nil {
		waitErr := make(chan error, 1)
		go func() { waitErr <- e.group.Wait() }()

		select {
		case <-waitErr:
		case <-time.After(e.config.DisconnectTimeout):
			e.config.Logger.Warn("reader task did not exit before disconnect timeout")
		}
	}

	e.setState(StateDisconnected)
	return e.conn.Close()
}

// timeNow exists so handshake-duration timing goes through one seam;
// kept as a thin wrapper rather than calling time.Now() inline purely for
// symmetry with the rest of the timing code.
func timeNow() time.Time { return time.Now() }
