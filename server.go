package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"i4.energy/across/blelink/at"
	"i4.energy/across/blelink/frame"
	"i4.energy/across/blelink/hm10"
)

// Server handles incoming HTTP requests for interacting with the
// configured HM-10 device. Every request runs on the device loop.
type Server struct {
	Logger *slog.Logger
	Device *hm10.Device
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /message", s.handleMessage)
	mux.HandleFunc("POST /event", s.handleEvent)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /device", s.handleDevice)
	mux.HandleFunc("POST /connect", s.handleConnect)
	mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps driver errors to HTTP status codes.
func statusFor(err error) int {
	var connectErr *hm10.ConnectError
	switch {
	case errors.Is(err, frame.ErrPayloadTooLarge),
		errors.Is(err, frame.ErrReservedByte):
		return http.StatusBadRequest
	case errors.Is(err, hm10.ErrNotReady),
		errors.Is(err, hm10.ErrBusy),
		errors.Is(err, hm10.ErrNotCentral),
		errors.Is(err, hm10.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, hm10.ErrTimeout),
		errors.Is(err, hm10.ErrResponseMismatch),
		errors.Is(err, hm10.ErrStillConnected),
		errors.Is(err, at.ErrUnknownCode),
		errors.As(err, &connectErr):
		return http.StatusBadGateway
	case errors.Is(err, hm10.ErrAlreadyClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleMessage sends a Message frame to the peer
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	type MessageRequest struct {
		Text string `json:"text"`
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Text == "" {
		s.sendError(w, "'text' field is required", http.StatusBadRequest)
		return
	}

	err := s.Device.Do(r.Context(), func(d *hm10.Device) error {
		return d.WriteMessageText(req.Text)
	})
	if err != nil {
		s.Logger.Error("Failed to send message", "error", err)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	s.Logger.Info("Message sent", "length", len(req.Text))
	w.WriteHeader(http.StatusOK)
}

// handleEvent sends an Event frame to the peer
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	type EventRequest struct {
		ID   *uint16 `json:"id"`
		Text string  `json:"text"`
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.ID == nil || req.Text == "" {
		s.sendError(w, "both 'id' and 'text' fields are required", http.StatusBadRequest)
		return
	}

	err := s.Device.Do(r.Context(), func(d *hm10.Device) error {
		return d.WriteEventText(*req.ID, req.Text)
	})
	if err != nil {
		s.Logger.Error("Failed to send event", "error", err, "id", *req.ID)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	s.Logger.Info("Event sent", "id", *req.ID, "length", len(req.Text))
	w.WriteHeader(http.StatusOK)
}

type statusResponse struct {
	Ready    bool   `json:"ready"`
	State    string `json:"state"`
	Role     string `json:"role"`
	Peer     string `json:"peer"`
	Activity bool   `json:"activity"`
	Console  bool   `json:"console"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	err := s.Device.Do(r.Context(), func(d *hm10.Device) error {
		resp = statusResponse{
			Ready:    d.Ready(),
			State:    d.State().String(),
			Role:     d.ConfiguredRole().String(),
			Peer:     d.PeerAddress(),
			Activity: d.Activity().Active(),
			Console:  d.ConsoleEnabled(),
		}
		return nil
	})
	if err != nil {
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	s.sendJSON(w, resp)
}

// handleDevice reads every module setting. Settings the module did not
// report are left at their zero value and the error is logged.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	var info hm10.DeviceInfo
	err := s.Device.Do(r.Context(), func(d *hm10.Device) error {
		var err error
		info, err = d.Info()
		return err
	})
	if err != nil {
		s.Logger.Warn("Failed to read module settings", "error", err)
		if errors.Is(err, r.Context().Err()) || errors.Is(err, hm10.ErrAlreadyClosed) {
			s.sendError(w, err.Error(), statusFor(err))
			return
		}
	}
	s.sendJSON(w, info)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	err := s.Device.Do(r.Context(), func(d *hm10.Device) error {
		switch {
		case !d.Ready():
			return hm10.ErrNotReady
		case d.ConfiguredRole() != at.Central:
			return hm10.ErrNotCentral
		}
		return d.Reconnect()
	})
	if err != nil {
		s.Logger.Error("Failed to connect", "error", err)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	err := s.Device.Do(r.Context(), func(d *hm10.Device) error {
		return d.ManualDisconnect()
	})
	if err != nil {
		s.Logger.Error("Failed to disconnect", "error", err)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}
