package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dmfontes/callscribe/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Progress events are not sensitive; browser clients connect from
	// arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewTaskEventsHandler returns the handler for GET /ws/tasks/{taskID}. The
// hub owns the connection after a successful upgrade.
func NewTaskEventsHandler(hub *notify.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "task_id", taskID, "error", err)
			return
		}
		go hub.HandleConnection(conn, taskID)
	}
}
