package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/command"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// lockCommandRequest is the body of POST /locks/{id}/command.
type lockCommandRequest struct {
	Action   string    `json:"action"`
	Method   string    `json:"method"`
	Actor    string    `json:"actor,omitempty"`
	PIN      string    `json:"pin,omitempty"`
	Username string    `json:"username,omitempty"`
	Secret   string    `json:"secret,omitempty"`
	Probe    []float64 `json:"probe,omitempty"`
}

// handleLockCommand verifies and dispatches a lock or unlock.
//
// A denied command answers 403 with the result body, so callers read
// status and detail the same way for both outcomes.
func (s *Server) handleLockCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	var body lockCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	action, err := command.ParseAction(body.Action)
	if err != nil {
		writeBadRequest(w, "action must be lock or unlock")
		return
	}
	method, err := auth.ParseMethod(body.Method)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.commands.Dispatch(r.Context(), command.Request{
		DeviceID: id,
		Action:   action,
		Method:   method,
		Actor:    body.Actor,
		PIN:      body.PIN,
		Username: body.Username,
		Secret:   body.Secret,
		Probe:    body.Probe,
	})
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}

	status := http.StatusOK
	if !res.Sent() {
		status = http.StatusForbidden
	}
	writeJSON(w, status, res)
}

// handleLightingCommand dispatches a partial lighting command.
func (s *Server) handleLightingCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	var cmd command.LightCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.commands.DispatchLight(r.Context(), id, cmd)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeCommandError maps dispatcher errors to HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, command.ErrInvalidRequest), errors.Is(err, command.ErrInvalidAction):
		writeBadRequest(w, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrKindMismatch):
		writeConflict(w, "device is not of the commanded kind")
	case errors.Is(err, device.ErrStaleUpdate):
		writeConflict(w, "device reported a newer state")
	case errors.Is(err, command.ErrTransport):
		s.logger.Warn("command not delivered", "device_id", id, "error", err)
		writeBadGateway(w, "command could not be delivered to the bus")
	default:
		s.logger.Error("command failed", "device_id", id, "error", err)
		writeInternalError(w, "command failed")
	}
}
