package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/lead"
	"realtycrm/api/internal/objectstore"
)

const (
	maxJSONBody    = 1 << 20
	maxWebhookBody = 1 << 20
)

type requestIDKey struct{}
type callerKey struct{}

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.service.metrics.Middleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", s.service.metrics.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	router.HandleFunc("/auth/password/forgot", s.handleForgotPassword).Methods(http.MethodPost)
	router.HandleFunc("/auth/password/reset", s.handleResetPassword).Methods(http.MethodPost)

	router.HandleFunc("/webhook/meta", s.handleMetaVerify).Methods(http.MethodGet)
	router.HandleFunc("/webhook/meta", s.handleMetaWebhook).Methods(http.MethodPost)
	router.HandleFunc("/webhook/twilio", s.handleTwilioStatus).Methods(http.MethodPost)

	api := router.NewRoute().Subrouter()
	api.Use(s.requireCaller)

	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/company", s.handleGetCompany).Methods(http.MethodGet)
	api.HandleFunc("/company", s.handleUpdateCompany).Methods(http.MethodPut)
	api.HandleFunc("/company/logo", s.handleUploadLogo).Methods(http.MethodPut)

	api.HandleFunc("/users", s.handleListTeam).Methods(http.MethodGet)
	api.HandleFunc("/team/invitations", s.handleInvite).Methods(http.MethodPost)
	api.HandleFunc("/team/members/{userId}/role", s.handleReassignRole).Methods(http.MethodPut)
	api.HandleFunc("/team/members/{userId}", s.handleRemoveMember).Methods(http.MethodDelete)

	api.HandleFunc("/leads", s.handleListLeads).Methods(http.MethodGet)
	api.HandleFunc("/leads", s.handleCreateLead).Methods(http.MethodPost)
	api.HandleFunc("/leads/{id}", s.handleGetLead).Methods(http.MethodGet)
	api.HandleFunc("/leads/{id}", s.handleUpdateLead).Methods(http.MethodPut)
	api.HandleFunc("/leads/{id}", s.handleDeleteLead).Methods(http.MethodDelete)
	api.HandleFunc("/leads/{id}/score", s.handleScoreLead).Methods(http.MethodPost)

	api.HandleFunc("/properties", s.handleListProperties).Methods(http.MethodGet)
	api.HandleFunc("/properties", s.handleCreateProperty).Methods(http.MethodPost)
	api.HandleFunc("/properties/{id}", s.handleUpdateProperty).Methods(http.MethodPut)
	api.HandleFunc("/properties/{id}", s.handleDeleteProperty).Methods(http.MethodDelete)

	api.HandleFunc("/site-visits", s.handleListSiteVisits).Methods(http.MethodGet)
	api.HandleFunc("/site-visits", s.handleCreateSiteVisit).Methods(http.MethodPost)
	api.HandleFunc("/site-visits/{id}", s.handleUpdateSiteVisit).Methods(http.MethodPut)
	api.HandleFunc("/site-visits/{id}", s.handleDeleteSiteVisit).Methods(http.MethodDelete)

	api.HandleFunc("/follow-ups", s.handleListFollowUps).Methods(http.MethodGet)
	api.HandleFunc("/follow-ups", s.handleCreateFollowUp).Methods(http.MethodPost)
	api.HandleFunc("/follow-ups/{id}", s.handleUpdateFollowUp).Methods(http.MethodPut)
	api.HandleFunc("/follow-ups/{id}", s.handleDeleteFollowUp).Methods(http.MethodDelete)

	api.HandleFunc("/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows", s.handleCreateWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}", s.handleUpdateWorkflow).Methods(http.MethodPut)
	api.HandleFunc("/workflows/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete)

	api.HandleFunc("/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/send", s.handleSendMessage).Methods(http.MethodPost)

	api.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", s.handleMarkNotificationRead).Methods(http.MethodPost)

	api.HandleFunc("/analytics", s.handleAnalytics).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(s.corsOrigin),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return s.withRequestLog(corsHandler.Handler(router))
}

// allowedOrigins splits a comma separated origin list. Empty means any.
func allowedOrigins(value string) []string {
	var out []string
	for _, origin := range strings.Split(value, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		entry := s.service.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		if writer.status >= http.StatusInternalServerError {
			entry.Warn("request")
		} else {
			entry.Info("request")
		}
	})
}

func (s *HTTPServer) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.service.ResolveCaller(r.Context(), bearerToken(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func callerFrom(r *http.Request) Caller {
	caller, _ := r.Context().Value(callerKey{}).(Caller)
	return caller
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// fail renders err through the error taxonomy. Unmapped errors are logged
// with the request id and reported as a generic server error.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.service.log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID(r),
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return errBadRequest("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadRequest("request body is required")
		}
		return errBadRequest("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func pathParam(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func recordQuery(r *http.Request) RecordQuery {
	q := r.URL.Query()
	return RecordQuery{LeadID: q.Get("lead_id"), Status: q.Get("status")}
}

// ---- operational

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, ready := s.service.Readiness(ctx)
	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

// ---- auth

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterCompanyInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.RegisterCompany(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.ForgotPassword(r.Context(), body.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	userID, err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "userId": userID})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.service.Me(r.Context(), callerFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

// ---- company and team

func (s *HTTPServer) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.service.GetCompany(r.Context(), callerFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *HTTPServer) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	var patch CompanyPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	company, err := s.service.UpdateCompany(r.Context(), callerFrom(r), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *HTTPServer) handleUploadLogo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, objectstore.MaxLogoBytes+64<<10)
	file, _, err := r.FormFile("logo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, objectstore.ErrTooLarge)
			return
		}
		s.fail(w, r, errValidation("multipart field logo is required", nil))
		return
	}
	defer file.Close()

	data, err := objectstore.ReadLogo(file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	company, err := s.service.UploadLogo(r.Context(), callerFrom(r), data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *HTTPServer) handleListTeam(w http.ResponseWriter, r *http.Request) {
	members, err := s.service.ListTeam(r.Context(), callerFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *HTTPServer) handleInvite(w http.ResponseWriter, r *http.Request) {
	var body InviteInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	invitation, err := s.service.InviteMember(r.Context(), callerFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitation)
}

func (s *HTTPServer) handleReassignRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	assignment, err := s.service.ReassignRole(r.Context(), callerFrom(r), pathParam(r, "userId"), body.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (s *HTTPServer) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveMember(r.Context(), callerFrom(r), pathParam(r, "userId")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- leads

func (s *HTTPServer) handleListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leads, err := s.service.ListLeads(r.Context(), callerFrom(r), LeadQuery{
		Stage:      q.Get("stage"),
		AssignedTo: q.Get("assigned_to"),
		Source:     q.Get("source"),
		Text:       q.Get("q"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *HTTPServer) handleGetLead(w http.ResponseWriter, r *http.Request) {
	found, err := s.service.GetLead(r.Context(), callerFrom(r), pathParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *HTTPServer) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var body lead.CreateInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.service.CreateLead(r.Context(), callerFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	var patch lead.Patch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.service.UpdateLead(r.Context(), callerFrom(r), pathParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteLead(r.Context(), callerFrom(r), pathParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleScoreLead(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ScoreLead(r.Context(), callerFrom(r), pathParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---- records

func (s *HTTPServer) handleListProperties(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ListProperties(r.Context(), callerFrom(r), recordQuery(r))
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var body PropertyInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.CreateProperty(r.Context(), callerFrom(r), body)
	respond(s, w, r, http.StatusCreated, out, err)
}

func (s *HTTPServer) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	var patch PropertyPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.UpdateProperty(r.Context(), callerFrom(r), pathParam(r, "id"), patch)
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteProperty(r.Context(), callerFrom(r), pathParam(r, "id"))
	respond(s, w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleListSiteVisits(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ListSiteVisits(r.Context(), callerFrom(r), recordQuery(r))
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleCreateSiteVisit(w http.ResponseWriter, r *http.Request) {
	var body SiteVisitInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.CreateSiteVisit(r.Context(), callerFrom(r), body)
	respond(s, w, r, http.StatusCreated, out, err)
}

func (s *HTTPServer) handleUpdateSiteVisit(w http.ResponseWriter, r *http.Request) {
	var patch SiteVisitPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.UpdateSiteVisit(r.Context(), callerFrom(r), pathParam(r, "id"), patch)
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleDeleteSiteVisit(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteSiteVisit(r.Context(), callerFrom(r), pathParam(r, "id"))
	respond(s, w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleListFollowUps(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ListFollowUps(r.Context(), callerFrom(r), recordQuery(r))
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleCreateFollowUp(w http.ResponseWriter, r *http.Request) {
	var body FollowUpInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.CreateFollowUp(r.Context(), callerFrom(r), body)
	respond(s, w, r, http.StatusCreated, out, err)
}

func (s *HTTPServer) handleUpdateFollowUp(w http.ResponseWriter, r *http.Request) {
	var patch FollowUpPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.UpdateFollowUp(r.Context(), callerFrom(r), pathParam(r, "id"), patch)
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleDeleteFollowUp(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteFollowUp(r.Context(), callerFrom(r), pathParam(r, "id"))
	respond(s, w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ListWorkflows(r.Context(), callerFrom(r))
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body WorkflowInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.CreateWorkflow(r.Context(), callerFrom(r), body)
	respond(s, w, r, http.StatusCreated, out, err)
}

func (s *HTTPServer) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var patch WorkflowPatch
	if err := decodeBody(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.UpdateWorkflow(r.Context(), callerFrom(r), pathParam(r, "id"), patch)
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteWorkflow(r.Context(), callerFrom(r), pathParam(r, "id"))
	respond(s, w, r, http.StatusOK, map[string]any{"ok": true}, err)
}

func respond(s *HTTPServer, w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

// ---- messaging

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ListMessages(r.Context(), callerFrom(r), recordQuery(r))
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body SendMessageInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.SendMessage(r.Context(), callerFrom(r), body)
	respond(s, w, r, http.StatusCreated, out, err)
}

func (s *HTTPServer) handleMetaVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := s.service.VerifyMetaSubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (s *HTTPServer) handleMetaWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.fail(w, r, errBadRequest("unreadable body"))
		return
	}
	if err := s.service.HandleMetaWebhook(r.Context(), body); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) handleTwilioStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errBadRequest("invalid form body"))
		return
	}
	err := s.service.HandleTwilioStatus(r.Context(), s.callbackURL(r), r.PostForm, r.Header.Get("X-Twilio-Signature"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// callbackURL is the URL Twilio signed: the configured callback when set,
// otherwise the URL this request arrived on.
func (s *HTTPServer) callbackURL(r *http.Request) string {
	if configured := s.service.cfg.TwilioStatusCallbackURL; configured != "" {
		return configured
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// ---- notifications and analytics

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.ListNotifications(r.Context(), callerFrom(r))
	respond(s, w, r, http.StatusOK, out, err)
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	err := s.service.MarkNotificationRead(r.Context(), callerFrom(r), id)
	respond(s, w, r, http.StatusOK, map[string]any{"id": id, "is_read": true}, err)
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.Analytics(r.Context(), callerFrom(r))
	respond(s, w, r, http.StatusOK, out, err)
}
