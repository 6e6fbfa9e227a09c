// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

// Package rfb implements the client side of the Remote Framebuffer (RFB/VNC)
// protocol described in RFC 6143: version negotiation, VNC authentication,
// the five supported rectangle encodings, and the background reader loop
// that keeps a local framebuffer mirror in sync with a server.
//
// # Basic usage
//
//	conn, err := net.Dial("tcp", "localhost:5900")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	engine := rfb.NewEngine(conn, rfb.WithAuthRegistry(rfb.NewAuthRegistry(&rfb.PasswordAuth{Password: "secret"})))
//
//	if err := engine.Connect(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Disconnect()
//
//	engine.StartUpdates(context.Background())
//
// # Events
//
// Engine.OnUpdate, Engine.OnConnectionLost, Engine.OnServerCutText and
// Engine.OnBell register callbacks invoked from the reader goroutine; the
// host is responsible for any thread marshaling its display surface needs.
//
// This package does not render anything: the framebuffer it maintains is a
// plain pixel buffer the host reads from its own event handlers.
package rfb
