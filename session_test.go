// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeServerInitFrame writes a ServerInit message (width, height, pixel
// format, desktop name) to w.
func writeServerInitFrame(t *testing.T, w net.Conn, width, height uint16, name string) {
	t.Helper()
	require.NoError(t, binary.Write(w, binary.BigEndian, width))
	require.NoError(t, binary.Write(w, binary.BigEndian, height))

	pf, err := writePixelFormat(PixelFormat32BitRGBA)
	require.NoError(t, err)
	_, err = w.Write(pf)
	require.NoError(t, err)

	require.NoError(t, binary.Write(w, binary.BigEndian, uint32(len(name))))
	_, err = w.Write([]byte(name))
	require.NoError(t, err)
}

func readClientInitByte(t *testing.T, r net.Conn) byte {
	t.Helper()
	buf := make([]byte, 1)
	_, err := r.Read(buf)
	require.NoError(t, err)
	return buf[0]
}

// TestEngine_Connect_NoAuth drives the Engine through the full handshake
// (version, security, ClientInit/ServerInit, SetEncodings/SetPixelFormat)
// against a scripted peer offering no authentication, per the SPEC_FULL.md
// scenario 1 flow at the Engine level.
func TestEngine_Connect_NoAuth(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- func() error {
			if _, err := server.Write([]byte("RFB 003.008\n")); err != nil {
				return err
			}
			buf := make([]byte, 12)
			if _, err := server.Read(buf); err != nil {
				return err
			}

			if _, err := server.Write([]byte{1, 1}); err != nil { // one type: None
				return err
			}
			secType := make([]byte, 1)
			if _, err := server.Read(secType); err != nil {
				return err
			}

			if err := binary.Write(server, binary.BigEndian, uint32(0)); err != nil { // SecurityResult OK
				return err
			}

			readClientInitByte(t, server)
			writeServerInitFrame(t, server, 640, 480, "scripted-desktop")

			// drain SetEncodings + SetPixelFormat so Connect's initialize completes
			setEncodingsHeader := make([]byte, 4)
			if _, err := server.Read(setEncodingsHeader); err != nil {
				return err
			}
			count := binary.BigEndian.Uint16(setEncodingsHeader[2:4])
			if _, err := server.Read(make([]byte, int(count)*4)); err != nil {
				return err
			}

			// ServerInit advertised a pixel format (32bpp/depth24) that
			// is not one of the five indexed presets, so initialize
			// never sends a SetPixelFormat to re-narrow it.
			return nil
		}()
	}()

	engine := NewEngine(client)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, engine.Connect(ctx))
	assert.Equal(t, StateConnected, engine.State())
	assert.False(t, engine.needsAuth)
	require.NoError(t, <-serverErr)

	fb := engine.Framebuffer()
	require.NotNil(t, fb)
	assert.Equal(t, 640, fb.Width)
	assert.Equal(t, 480, fb.Height)
	assert.Equal(t, "scripted-desktop", fb.DesktopName)
}

// TestEngine_Connect_PasswordAuth_EntersAwaitingPassword verifies the
// Engine transitions through StateAwaitingPassword when the negotiated
// security type requires a credential.
func TestEngine_Connect_PasswordAuth_EntersAwaitingPassword(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	challenge := make([]byte, 16) // all-zero challenge
	expectedResponse, err := newSecureDESCipher().EncryptVNCChallenge("secret", challenge)
	require.NoError(t, err)

	var sawAwaitingPassword bool
	stateSeen := make(chan struct{})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- func() error {
			if _, err := server.Write([]byte("RFB 003.008\n")); err != nil {
				return err
			}
			if _, err := server.Read(make([]byte, 12)); err != nil {
				return err
			}

			if _, err := server.Write([]byte{2, 1, 2}); err != nil { // None, VNC Auth
				return err
			}
			secType := make([]byte, 1)
			if _, err := server.Read(secType); err != nil {
				return err
			}
			require.EqualValues(t, 2, secType[0])

			if _, err := server.Write(challenge); err != nil {
				return err
			}
			response := make([]byte, 16)
			if _, err := server.Read(response); err != nil {
				return err
			}
			require.Equal(t, expectedResponse, response)

			close(stateSeen)

			if err := binary.Write(server, binary.BigEndian, uint32(0)); err != nil {
				return err
			}

			readClientInitByte(t, server)
			writeServerInitFrame(t, server, 100, 100, "secure-desktop")

			setEncodingsHeader := make([]byte, 4)
			if _, err := server.Read(setEncodingsHeader); err != nil {
				return err
			}
			count := binary.BigEndian.Uint16(setEncodingsHeader[2:4])
			if _, err := server.Read(make([]byte, int(count)*4)); err != nil {
				return err
			}

			return nil
		}()
	}()

	engine := NewEngine(client, WithAuth(NewPasswordAuth("secret")))

	go func() {
		<-stateSeen
		sawAwaitingPassword = engine.State() == StateAwaitingPassword
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Connect(ctx))
	require.NoError(t, <-serverErr)

	assert.Equal(t, StateConnected, engine.State())
	assert.True(t, engine.needsAuth)
	time.Sleep(10 * time.Millisecond)
	assert.True(t, sawAwaitingPassword)
}

// TestEngine_ReaderLoop_TwoStrikesFiresConnectionLost verifies the reader
// task tolerates one failed read (issuing a forced incremental update
// request) but fires onConnectionLost on the second consecutive failure.
func TestEngine_ReaderLoop_TwoStrikesFiresConnectionLost(t *testing.T) {
	client, server := net.Pipe()

	fb := NewFramebuffer(4, 4, *PixelFormat32BitRGBA, "test")
	engine := &Engine{
		conn:   client,
		config: newClientConfig(),
		fb:     fb,
		zrle:   newZRLEStream(),
		done:   make(chan struct{}),
	}

	lost := make(chan struct{})
	engine.OnConnectionLost(func() { close(lost) })

	// Closing the peer with nothing written means every read fails
	// immediately: the first failure is tolerated (strike 1, a forced
	// incremental update request is issued and ignored), the second
	// consecutive failure fires onConnectionLost.
	_ = server.Close()

	go func() { _ = engine.readerLoop(context.Background()) }()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("expected onConnectionLost to fire within timeout")
	}

	_ = client.Close()
}

func TestEngine_SetFullScreenRefresh_SwapsOnce(t *testing.T) {
	engine := &Engine{}
	assert.False(t, engine.fullScreenRefresh.Load())

	engine.SetFullScreenRefresh()
	assert.True(t, engine.fullScreenRefresh.Swap(false))
	assert.False(t, engine.fullScreenRefresh.Load())
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateDisconnected:     "Disconnected",
		StateConnecting:       "Connecting",
		StateAwaitingPassword: "AwaitingPassword",
		StateInitializing:     "Initializing",
		StateConnected:        "Connected",
		StateDisconnecting:    "Disconnecting",
		State(99):             "Unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestEngine_WriteKeyEvent_RespectsViewOnlyPolicy(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	engine := &Engine{conn: client, config: newClientConfig(WithInputPolicy(PolicyViewOnly{})), fb: NewFramebuffer(1, 1, *PixelFormat32BitRGBA, "t")}

	done := make(chan struct{})
	go func() {
		err := engine.WriteKeyEvent(context.Background(), 0x61, true)
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("WriteKeyEvent should return immediately under PolicyViewOnly without writing to the wire")
	}
}

func TestEngine_Disconnect_ClosesConnectionWithoutReaderTask(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	engine := &Engine{conn: client, config: newClientConfig(), fb: NewFramebuffer(1, 1, *PixelFormat32BitRGBA, "t")}

	drained := make(chan struct{})
	go func() {
		_, _ = server.Read(make([]byte, 6))
		close(drained)
	}()

	require.NoError(t, engine.Disconnect())
	<-drained
	assert.Equal(t, StateDisconnected, engine.State())
}
