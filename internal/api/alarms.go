package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// alarmTestRequest is the body of POST /alarms/{id}/test.
type alarmTestRequest struct {
	TestMode bool   `json:"test_mode"`
	Actor    string `json:"actor,omitempty"`
}

// alarmSensitivityRequest is the body of POST /alarms/{id}/sensitivity.
type alarmSensitivityRequest struct {
	Sensitivity string `json:"sensitivity"`
	Actor       string `json:"actor,omitempty"`
}

// alarmAckRequest is the optional body of POST /alarms/{id}/acknowledge.
type alarmAckRequest struct {
	Actor string `json:"actor,omitempty"`
}

// decodeOptional decodes a JSON body. An empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// handleAlarmTest starts or stops a smoke alarm's test mode.
func (s *Server) handleAlarmTest(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	var body alarmTestRequest
	if err := decodeOptional(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.commands.SetAlarmTest(r.Context(), id, body.Actor, body.TestMode)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAlarmSensitivity sets a smoke alarm's sensitivity.
func (s *Server) handleAlarmSensitivity(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	var body alarmSensitivityRequest
	if err := decodeOptional(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.commands.SetAlarmSensitivity(r.Context(), id, body.Actor, body.Sensitivity)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAlarmAcknowledge clears an active smoke alarm.
func (s *Server) handleAlarmAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	var body alarmAckRequest
	if err := decodeOptional(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.commands.AcknowledgeAlarm(r.Context(), id, body.Actor)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
