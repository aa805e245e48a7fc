package websocket

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and runs it as a Hub client. The
// optional account_id query parameter subscribes the connection to that
// account's private events. originPatterns restricts cross-origin upgrades;
// an empty list allows same-origin only.
func HandleWebSocket(hub *Hub, logger *slog.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var accountID int64
		if v := r.URL.Query().Get("account_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "invalid account_id", http.StatusBadRequest)
				return
			}
			accountID = id
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}

		client := NewClient(hub, conn, accountID)
		logger.Debug("websocket connected", "client_id", client.ID, "account_id", accountID)
		client.Run(r.Context())
		logger.Debug("websocket disconnected", "client_id", client.ID)
	}
}
