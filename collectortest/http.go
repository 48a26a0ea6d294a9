package collectortest

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/zoobzio/tracecap/transport"
)

// Version is reported by the info endpoint.
const Version = "0.3.0"

type infoResponse struct {
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// NewHTTPHandler returns the collector's HTTP API:
//
//	GET  /info          collector version and endpoints
//	PUT  /v0.4/traces   JSON traces, as sent by transport.HTTPAdapter
//	POST /v0.4/traces
func NewHTTPHandler(rec *Recorder, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &httpHandler{rec: rec, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/info", h.info).Methods(http.MethodGet)
	r.HandleFunc("/v0.4/traces", h.traces).Methods(http.MethodPut, http.MethodPost)
	return r
}

type httpHandler struct {
	rec    *Recorder
	logger *zap.Logger
}

func (h *httpHandler) info(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(infoResponse{
		Version:   Version,
		Endpoints: []string{"/v0.4/traces", "/info"},
	})
}

func (h *httpHandler) traces(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	traces, err := transport.DecodeJSON(body)
	if err != nil {
		h.logger.Warn("rejecting malformed payload", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := Request{
		ReceivedAt: now(),
		Header:     r.Header.Clone(),
		Protocol:   ProtocolHTTP,
		Traces:     traces,
	}
	if !h.rec.record(req) {
		http.Error(w, "rejected", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("received traces", zap.String("protocol", ProtocolHTTP), zap.Int("traces", len(traces)))
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"rate_by_service":{}}`))
}
