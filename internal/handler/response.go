package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/cobra-poc/messaging-bridge/internal/httputil"
)

// ActorHeader carries the display name of the COBRA user behind a request.
const ActorHeader = "X-User-Name"

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func actorFromRequest(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}

// pathParam returns a chi parameter with percent-encoding removed. Teams
// conversation ids contain characters that clients escape.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
