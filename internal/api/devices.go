package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// maxQueryParamLen bounds ids and filter values taken from the URL.
const maxQueryParamLen = 128

// deviceResponse is a device state, with the typed lock view for locks.
type deviceResponse struct {
	device.State
	Lock *device.LockRuntimeState `json:"lock,omitempty"`
}

func toDeviceResponse(st device.State) deviceResponse {
	resp := deviceResponse{State: st}
	if view, err := device.LockView(st); err == nil {
		resp.Lock = &view
	}
	return resp
}

// handleListDevices returns every device, optionally filtered by kind.
//
// Query parameters:
//   - kind: sensor, lock, light or alarm
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var states []device.State
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := device.ParseKind(k)
		if err != nil {
			writeBadRequest(w, "invalid kind")
			return
		}
		states = s.store.ListByKind(kind)
	} else {
		states = s.store.List()
	}

	devices := make([]deviceResponse, 0, len(states))
	for _, st := range states {
		devices = append(devices, toDeviceResponse(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device's current state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	st, err := s.store.Read(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to read device")
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(st))
}

// handleListDeviceEvents returns the device's recent events, newest first.
//
// Query parameters:
//   - limit: max results (default 50, max 200)
func (s *Server) handleListDeviceEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	events := s.store.Events(id, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"events":    events,
		"count":     len(events),
	})
}

// handleGetDeviceHistory returns stored state snapshots for a device.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if s.history == nil {
		writeUnavailable(w, "state history unavailable")
		return
	}

	snaps, err := s.history.Snapshots(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to load device history", "device_id", id, "error", err)
		writeInternalError(w, "failed to load device history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"history":   snaps,
		"count":     len(snaps),
	})
}

// deviceIDParam reads {id}, writing a 400 when it is unusable.
func deviceIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return "", false
	}
	return id, true
}

// parseLimit reads an optional positive limit. Zero means the default.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}
