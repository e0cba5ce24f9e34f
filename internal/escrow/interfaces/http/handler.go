// Package http serves the escrow HTTP API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/attestation"
	"github.com/sapirl7/solarma-sub000/internal/audit"
	"github.com/sapirl7/solarma-sub000/internal/auth"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
	escrow "github.com/sapirl7/solarma-sub000/internal/escrow/domain"
)

const timeLayout = time.RFC3339

// Handler serves profile and alarm endpoints.
type Handler struct {
	service     *application.Service
	auditLogger audit.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *application.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("escrow handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes escrow requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller := escrow.Address(auth.CallerFromContext(r.Context()))

	switch {
	case r.URL.Path == "/api/v1/profiles" && r.Method == http.MethodPost:
		h.handleInitialize(w, r, caller)
	case r.URL.Path == "/api/v1/alarms" && r.Method == http.MethodPost:
		h.handleCreate(w, r, caller)
	case r.URL.Path == "/api/v1/alarms" && r.Method == http.MethodGet:
		h.handleList(w, r, caller)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alarms/"):
		h.routeAlarm(w, r, caller)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeAlarm(w http.ResponseWriter, r *http.Request, caller escrow.Address) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/")
	parts := strings.Split(path, "/")
	if len(parts) < 1 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	alarmID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "alarm id must be an unsigned integer", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGet(w, r, caller, alarmID)
		return
	}
	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "acknowledge":
			h.handleAcknowledge(w, r, caller, alarmID)
		case "snooze":
			h.handleSnooze(w, r, caller, alarmID)
		case "claim":
			h.handleClaim(w, r, caller, alarmID)
		case "refund":
			h.handleRefund(w, r, caller, alarmID)
		case "slash":
			h.handleSlash(w, r, caller, alarmID)
		case "sweep":
			h.handleSweep(w, r, caller, alarmID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request, caller escrow.Address) {
	var req struct {
		TagHash string `json:"tag_hash"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	resp, err := h.service.Initialize(r.Context(), application.InitializeRequest{Caller: caller, TagHash: req.TagHash})
	h.logAudit(r, caller, "profile.initialize", "", err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, caller escrow.Address) {
	var req struct {
		AlarmID     uint64 `json:"alarm_id"`
		AlarmTime   string `json:"alarm_time"`
		Deadline    string `json:"deadline"`
		Deposit     uint64 `json:"deposit"`
		Route       string `json:"penalty_route"`
		Destination string `json:"penalty_destination"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	alarmTime, err := time.Parse(timeLayout, req.AlarmTime)
	if err != nil {
		http.Error(w, "alarm_time must be RFC3339", http.StatusBadRequest)
		return
	}
	var deadline time.Time
	if req.Deadline != "" {
		deadline, err = time.Parse(timeLayout, req.Deadline)
		if err != nil {
			http.Error(w, "deadline must be RFC3339", http.StatusBadRequest)
			return
		}
	}
	resp, err := h.service.CreateAlarm(r.Context(), application.CreateAlarmRequest{
		Caller:      caller,
		AlarmID:     req.AlarmID,
		AlarmTime:   alarmTime.UTC(),
		Deadline:    deadline.UTC(),
		Deposit:     req.Deposit,
		Route:       req.Route,
		Destination: escrow.Address(req.Destination),
	})
	h.logAudit(r, caller, "alarm.create", addressOf(resp), err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, caller escrow.Address) {
	owner := caller
	if queried := r.URL.Query().Get("owner"); queried != "" {
		owner = escrow.Address(queried)
	}
	views, err := h.service.ListAlarms(r.Context(), owner)
	if err != nil {
		respondError(w, err)
		return
	}
	if views == nil {
		views = []*application.AlarmView{}
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, caller escrow.Address, alarmID uint64) {
	view, err := h.service.GetAlarm(r.Context(), caller, alarmID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request, caller escrow.Address, alarmID uint64) {
	var req struct {
		Permit string `json:"permit"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	resp, err := h.service.Acknowledge(r.Context(), application.AcknowledgeRequest{Caller: caller, AlarmID: alarmID, Permit: req.Permit})
	h.logAudit(r, caller, "alarm.acknowledge", addressOf(resp), err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSnooze(w http.ResponseWriter, r *http.Request, caller escrow.Address, alarmID uint64) {
	var req struct {
		ExpectedSnoozeCount uint8  `json:"expected_snooze_count"`
		Sink                string `json:"sink"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	resp, err := h.service.Snooze(r.Context(), application.SnoozeRequest{
		Caller:              caller,
		AlarmID:             alarmID,
		ExpectedSnoozeCount: req.ExpectedSnoozeCount,
		Sink:                escrow.Address(req.Sink),
	})
	h.logAudit(r, caller, "alarm.snooze", transitionAddress(resp), err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request, caller escrow.Address, alarmID uint64) {
	resp, err := h.service.Claim(r.Context(), application.ClaimRequest{Caller: caller, AlarmID: alarmID})
	h.logAudit(r, caller, "alarm.claim", transitionAddress(resp), err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request, caller escrow.Address, alarmID uint64) {
	var req struct {
		Sink string `json:"sink"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	resp, err := h.service.Refund(r.Context(), application.RefundRequest{Caller: caller, AlarmID: alarmID, Sink: escrow.Address(req.Sink)})
	h.logAudit(r, caller, "alarm.refund", transitionAddress(resp), err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSlash(w http.ResponseWriter, r *http.Request, caller escrow.Address, alarmID uint64) {
	var req struct {
		Owner     string `json:"owner"`
		Recipient string `json:"recipient"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	owner := escrow.Address(req.Owner)
	if owner == "" {
		owner = caller
	}
	resp, err := h.service.Slash(r.Context(), application.SlashRequest{
		Caller:    caller,
		Owner:     owner,
		AlarmID:   alarmID,
		Recipient: escrow.Address(req.Recipient),
	})
	h.logAudit(r, caller, "alarm.slash", transitionAddress(resp), err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request, caller escrow.Address, alarmID uint64) {
	var req struct {
		Owner string `json:"owner"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	owner := escrow.Address(req.Owner)
	if owner == "" {
		owner = caller
	}
	resp, err := h.service.Sweep(r.Context(), application.SweepRequest{Caller: caller, Owner: owner, AlarmID: alarmID})
	h.logAudit(r, caller, "alarm.sweep", transitionAddress(resp), err)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) logAudit(r *http.Request, caller escrow.Address, action, alarmAddress string, opErr error) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.Entry{
		Actor:        string(caller),
		Action:       action,
		Owner:        string(caller),
		AlarmAddress: alarmAddress,
		Outcome:      "success",
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if opErr != nil {
		entry.Outcome = "error"
		entry.ErrorCode = escrow.CodeOf(opErr)
	}
	_ = h.auditLogger.Log(r.Context(), entry)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(target)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	type errorBody struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	status := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: escrow.CodeOf(err), Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attestation.ErrPermitInvalid), errors.Is(err, attestation.ErrPermitExpired):
		return http.StatusForbidden
	case errors.Is(err, attestation.ErrPermitReplayed):
		return http.StatusConflict
	}
	switch escrow.KindOf(err) {
	case escrow.KindValidation:
		return http.StatusBadRequest
	case escrow.KindAuthorization:
		return http.StatusForbidden
	case escrow.KindState, escrow.KindTiming, escrow.KindConflict:
		return http.StatusConflict
	case escrow.KindArithmetic:
		return http.StatusUnprocessableEntity
	case escrow.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func addressOf(view *application.AlarmView) string {
	if view == nil {
		return ""
	}
	return view.Address
}

func transitionAddress(result *application.TransitionResult) string {
	if result == nil || result.Alarm == nil {
		return ""
	}
	return result.Alarm.Address
}
