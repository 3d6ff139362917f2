package middleware

import (
	"net/http"

	"github.com/cobra-poc/messaging-bridge/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
