package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/admin-portal/middleware"
	"github.com/upb/admin-portal/services/authclient"
	"github.com/upb/admin-portal/utils"
)

// forwardedHeaders are the request headers passed on to the API
var forwardedHeaders = []string{"Accept", "Accept-Language", "Content-Type"}

// ProxyHandler forwards the SPA's API calls with the session's credential
type ProxyHandler struct {
	client *authclient.Client
	logger *zap.Logger
}

// NewProxyHandler creates a new ProxyHandler
func NewProxyHandler(client *authclient.Client, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{client: client, logger: logger}
}

// HandleProxy handles /api/v1/*. Failing API responses are reported with
// their status and extracted message.
func (h *ProxyHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	store := middleware.GetSessionStoreFromContext(r.Context())
	if store == nil {
		_ = utils.WriteInternalServerError(w, "Session unavailable")
		return
	}

	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	header := http.Header{}
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			header.Set(name, v)
		}
	}

	var body io.Reader
	if r.ContentLength != 0 && r.Body != nil {
		body = r.Body
	}

	resp, err := h.client.WithStore(store).Do(r.Context(), r.Method, path, body, header)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("failed to relay API response",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
}
