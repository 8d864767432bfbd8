// Package api exposes the capture manager over HTTP and reports capture
// health over gRPC.
package api

import (
	"RedWire/internal/engine/capture"
	"RedWire/internal/engine/graph"
	"RedWire/internal/engine/manager"
	"RedWire/internal/engine/pipeline"
	"RedWire/internal/export"
	"RedWire/internal/geo"
	"RedWire/internal/model"
	"RedWire/pkg/pcap"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"
)

// maxUploadBytes caps a capture uploaded to /api/capture/load.
const maxUploadBytes = 256 << 20

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	mgr    *manager.Manager
	geo    *geo.Client
	layout graph.LayoutOptions
}

// NewServer creates the HTTP handlers for mgr. A nil geo client disables
// /api/lookup.
func NewServer(mgr *manager.Manager, geoClient *geo.Client, layout graph.LayoutOptions) *Server {
	return &Server{mgr: mgr, geo: geoClient, layout: layout}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/packets", s.packetsHandler).Methods("GET")
	api.HandleFunc("/conversations", s.conversationsHandler).Methods("GET")
	api.HandleFunc("/conversations/{a}/{b}", s.conversationHandler).Methods("GET")
	api.HandleFunc("/selection", s.getSelectionHandler).Methods("GET")
	api.HandleFunc("/selection", s.selectHandler).Methods("PUT")
	api.HandleFunc("/selection", s.clearSelectionHandler).Methods("DELETE")
	api.HandleFunc("/graph", s.graphHandler).Methods("GET")
	api.HandleFunc("/graph.html", s.graphPageHandler).Methods("GET")
	api.HandleFunc("/capture", s.captureStatusHandler).Methods("GET")
	api.HandleFunc("/capture/live", s.startLiveHandler).Methods("POST")
	api.HandleFunc("/capture/replay", s.startReplayHandler).Methods("POST")
	api.HandleFunc("/capture/load", s.loadHandler).Methods("POST")
	api.HandleFunc("/capture/stop", s.stopHandler).Methods("POST")
	api.HandleFunc("/clear", s.clearHandler).Methods("POST")
	api.HandleFunc("/export.csv", s.exportHandler).Methods("GET")
	api.HandleFunc("/lookup/{addr}", s.lookupHandler).Methods("GET")

	return r
}

// CaptureStatus is the body of GET /api/capture.
type CaptureStatus struct {
	Session  capture.Status `json:"session"`
	Error    string         `json:"error,omitempty"`
	Pipeline pipeline.Stats `json:"pipeline"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type liveRequest struct {
	Interface string `json:"interface"`
}

type selectionResponse struct {
	Selected bool           `json:"selected"`
	Key      *model.FlowKey `json:"key,omitempty"`
}

func (s *Server) packetsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.mgr.Pipeline()
	if r.URL.Query().Get("all") == "true" {
		writeJSON(w, http.StatusOK, p.Packets())
		return
	}
	writeJSON(w, http.StatusOK, p.DisplayedPackets())
}

func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Pipeline().Summaries())
}

func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := model.NewFlowKey(vars["a"], vars["b"])
	st, ok := s.mgr.Pipeline().Conversation(key)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrUnknownConversation)
		return
	}
	writeJSON(w, http.StatusOK, model.Conversation{Key: key, State: st})
}

func (s *Server) getSelectionHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := s.mgr.Pipeline().Selection()
	resp := selectionResponse{Selected: ok}
	if ok {
		resp.Key = &key
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	var key model.FlowKey
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if key.A == "" || key.B == "" {
		http.Error(w, "Both conversation endpoints are required", http.StatusBadRequest)
		return
	}
	p := s.mgr.Pipeline()
	if err := p.Select(key); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p.GraphView())
}

func (s *Server) clearSelectionHandler(w http.ResponseWriter, r *http.Request) {
	s.mgr.Pipeline().ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) graphHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Pipeline().LaidOutGraphView(s.layout))
}

func (s *Server) captureStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.captureStatus())
}

func (s *Server) captureStatus() CaptureStatus {
	st := s.mgr.Session().Status()
	out := CaptureStatus{Session: st, Pipeline: s.mgr.Pipeline().Stats()}
	if st.LastError != nil {
		out.Error = st.LastError.Error()
	}
	return out
}

func (s *Server) startLiveHandler(w http.ResponseWriter, r *http.Request) {
	var req liveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if err := s.mgr.StartLive(req.Interface); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.captureStatus())
}

func (s *Server) startReplayHandler(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "A capture file path is required", http.StatusBadRequest)
		return
	}
	if err := s.mgr.StartReplay(req.Path); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.captureStatus())
}

// loadHandler replaces the current state with a capture file. A JSON body
// names a file on the server; any other body is the capture itself.
func (s *Server) loadHandler(w http.ResponseWriter, r *http.Request) {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req pathRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil || req.Path == "" {
			http.Error(w, "A capture file path is required", http.StatusBadRequest)
			return
		}
		err = s.mgr.LoadFile(req.Path)
	} else {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload"
		}
		err = s.mgr.LoadReader(http.MaxBytesReader(w, r.Body, maxUploadBytes), name)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.captureStatus())
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	err := s.mgr.StopCapture()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.captureStatus())
	case errors.Is(err, model.ErrStopTimeout):
		// The session is already marked stopped; the worker exits later.
		log.Printf("Stop request: %v", err)
		writeJSON(w, http.StatusAccepted, s.captureStatus())
	default:
		writeError(w, statusFor(err), err)
	}
}

func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	s.mgr.Pipeline().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	records := s.mgr.Pipeline().DisplayedPackets()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="packets.csv"`)
	if err := export.WriteCSV(w, records); err != nil {
		log.Printf("Error exporting %d packets: %v", len(records), err)
	}
}

func (s *Server) lookupHandler(w http.ResponseWriter, r *http.Request) {
	if s.geo == nil {
		http.Error(w, "Geolocation is disabled", http.StatusServiceUnavailable)
		return
	}
	addr := mux.Vars(r)["addr"]
	if _, err := netip.ParseAddr(addr); err != nil {
		http.Error(w, fmt.Sprintf("Invalid address %q", addr), http.StatusBadRequest)
		return
	}

	info, err := s.geo.Lookup(r.Context(), addr)
	if err != nil {
		log.Printf("Lookup of %s failed: %v", addr, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"address": addr,
			"error":   err.Error(),
			"display": geo.DisplayError(addr, err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"info":    info,
		"display": info.String(),
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var srcErr *model.CaptureSourceError
	switch {
	case errors.Is(err, model.ErrUnknownConversation):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyRunning), errors.Is(err, model.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, pcap.ErrLiveUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &srcErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
