/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains HandleWebSocket, which upgrades the connection and attaches the
resulting session to the registrar. Connection attempts are rate limited by the router.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chatroster/internal/app/registrar"
	"chatroster/internal/pkg/logx"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		session := registrar.NewSession(deps.Registrar, conn)
		if !deps.Registrar.Attach(session) {
			logx.Warn("WebSocket connection dropped: registrar is shutting down.")
			conn.Close()
			return
		}

		go session.WritePump()

		session.ReadPump()
	}
}
