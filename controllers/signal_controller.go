package controllers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"radar_server/models"
	"radar_server/services"
)

// SignalController exposes the signal lifecycle over HTTP.
type SignalController struct {
	Signals *services.SignalService
}

func NewSignalController(signals *services.SignalService) *SignalController {
	return &SignalController{Signals: signals}
}

type sendSignalRequest struct {
	ToSessionID  string `json:"toSessionId"`
	TargetUserID string `json:"targetUserId"`
	Message      string `json:"message"`
}

type sendSignalResponse struct {
	Signal    *models.Signal `json:"signal"`
	Delivered bool           `json:"delivered"`
}

type respondRequest struct {
	SignalID string `json:"signalId"`
	Response string `json:"response"`
}

// SendSignal creates a pending signal and pushes it to the recipient if online.
func (c *SignalController) SendSignal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req sendSignalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		result *services.SignalResult
		err    error
	)
	switch {
	case strings.TrimSpace(req.ToSessionID) != "":
		result, err = c.Signals.Send(r.Context(), userID, req.ToSessionID, req.Message)
	case strings.TrimSpace(req.TargetUserID) != "":
		result, err = c.Signals.SendToUser(r.Context(), userID, req.TargetUserID, req.Message)
	default:
		writeFailure(w, http.StatusBadRequest, "toSessionId is required")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	delivered := c.Signals.Deliver(result)
	writeSuccess(w, http.StatusCreated, "signal sent", sendSignalResponse{Signal: result.Signal, Delivered: delivered})
}

// RespondToSignal accepts or ignores a received signal.
func (c *SignalController) RespondToSignal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := c.Signals.Respond(r.Context(), req.SignalID, userID, req.Response)
	if err != nil {
		writeError(w, err)
		return
	}
	message := "signal ignored"
	if result.ChatID != "" {
		message = "signal accepted"
	}
	writeSuccess(w, http.StatusOK, message, result)
}

func (c *SignalController) GetReceivedSignals(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	signals, err := c.Signals.ListReceived(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", signals)
}

func (c *SignalController) DeleteSignal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := c.Signals.Delete(r.Context(), mux.Vars(r)["signalId"], userID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "signal deleted", nil)
}
