package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/auth"
	"realtycrm/api/internal/authpw"
	"realtycrm/api/internal/config"
	"realtycrm/api/internal/logging"
	"realtycrm/api/internal/messaging"
	"realtycrm/api/internal/metrics"
	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/scoring"
	"realtycrm/api/internal/search"
	"realtycrm/api/internal/session"
	"realtycrm/api/internal/store"
)

const (
	invitationTTL = 7 * 24 * time.Hour
	resetTTL      = time.Hour
)

type dataStore interface {
	Ping(ctx context.Context) error

	RegisterCompany(ctx context.Context, identity store.Identity, company store.Company, profile store.Profile, role store.RoleAssignment) error
	CreateInvitation(ctx context.Context, identity store.Identity, profile store.Profile, role store.RoleAssignment, tokenHash string, tokenExpires time.Time) error
	GetIdentityByEmail(ctx context.Context, email string) (store.Identity, error)
	MarkSignedIn(ctx context.Context, userID string, at time.Time) error
	CreatePasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	ProfileEmailExists(ctx context.Context, email string) (bool, error)
	LookupCaller(ctx context.Context, userID string) (store.CallerRecord, error)
	GetProfileByUserID(ctx context.Context, userID string) (store.Profile, error)
	GetCompany(ctx context.Context, companyID string) (store.Company, error)
	UpdateCompany(ctx context.Context, company store.Company) (store.Company, error)
	SetCompanyLogo(ctx context.Context, companyID, logoURL string) (store.Company, error)
	GetMemberRole(ctx context.Context, companyID, userID string) (store.RoleAssignment, error)
	UpdateMemberRole(ctx context.Context, companyID, userID, role string) error
	RemoveMember(ctx context.Context, companyID, userID string) error
	IsMember(ctx context.Context, companyID, userID string) (bool, error)
	ListTeam(ctx context.Context, companyID string) ([]store.TeamMember, error)

	ListLeads(ctx context.Context, companyID string, filter store.LeadFilter) ([]store.Lead, error)
	GetLead(ctx context.Context, companyID, leadID string) (store.Lead, error)
	InsertLead(ctx context.Context, lead store.Lead) (store.Lead, error)
	UpdateLead(ctx context.Context, lead store.Lead) (store.Lead, error)
	DeleteLead(ctx context.Context, companyID, leadID string) error
	SetLeadScore(ctx context.Context, companyID, leadID string, score int, reasoning string, at time.Time) (store.Lead, error)
	FindLeadsByPhoneDigits(ctx context.Context, digits string) ([]store.Lead, error)
	TouchLeadContact(ctx context.Context, companyID, leadID string, at time.Time) error
	LeadStats(ctx context.Context, companyID string, todayStart time.Time) (store.LeadStats, error)
	SampleProperties(ctx context.Context, companyID string, limit int) ([]store.PropertySample, error)

	ListProperties(ctx context.Context, companyID string, filter store.RecordFilter) ([]store.Property, error)
	GetProperty(ctx context.Context, companyID, id string) (store.Property, error)
	InsertProperty(ctx context.Context, p store.Property) (store.Property, error)
	UpdateProperty(ctx context.Context, p store.Property) (store.Property, error)
	DeleteProperty(ctx context.Context, companyID, id string) error
	ListSiteVisits(ctx context.Context, companyID string, filter store.RecordFilter) ([]store.SiteVisit, error)
	GetSiteVisit(ctx context.Context, companyID, id string) (store.SiteVisit, error)
	InsertSiteVisit(ctx context.Context, v store.SiteVisit) (store.SiteVisit, error)
	UpdateSiteVisit(ctx context.Context, v store.SiteVisit) (store.SiteVisit, error)
	DeleteSiteVisit(ctx context.Context, companyID, id string) error
	ListFollowUps(ctx context.Context, companyID string, filter store.RecordFilter) ([]store.FollowUp, error)
	GetFollowUp(ctx context.Context, companyID, id string) (store.FollowUp, error)
	InsertFollowUp(ctx context.Context, f store.FollowUp) (store.FollowUp, error)
	UpdateFollowUp(ctx context.Context, f store.FollowUp) (store.FollowUp, error)
	DeleteFollowUp(ctx context.Context, companyID, id string) error
	ListWorkflows(ctx context.Context, companyID string) ([]store.Workflow, error)
	GetWorkflow(ctx context.Context, companyID, id string) (store.Workflow, error)
	InsertWorkflow(ctx context.Context, w store.Workflow) (store.Workflow, error)
	UpdateWorkflow(ctx context.Context, w store.Workflow) (store.Workflow, error)
	DeleteWorkflow(ctx context.Context, companyID, id string) error

	ListMessages(ctx context.Context, companyID string, filter store.RecordFilter) ([]store.Message, error)
	InsertMessage(ctx context.Context, m store.Message) (store.Message, error)
	RecordSendResult(ctx context.Context, companyID, messageID string, providerID, metaStatus, metaError *string) (store.Message, error)
	UpdateStatusByProviderID(ctx context.Context, providerID, metaStatus string, status, metaError *string) error
	InsertNotification(ctx context.Context, n store.Notification) (store.Notification, error)
	ListNotifications(ctx context.Context, companyID, userID string, unreadOnly bool, limit int) ([]store.Notification, error)
	MarkNotificationsRead(ctx context.Context, companyID, userID string, ids []string) (int64, error)
}

type callerCache interface {
	Get(ctx context.Context, userID string) (session.Caller, error)
	Put(ctx context.Context, caller session.Caller) error
	Invalidate(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}

type leadIndex interface {
	Search(ctx context.Context, q search.Query) ([]string, error)
	IndexLead(lead store.Lead)
	DeleteLead(id string)
}

type mailer interface {
	SendInvitation(to, userName, companyName, role, inviterName, acceptURL string, expiresAt time.Time) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type logoStore interface {
	Upload(ctx context.Context, companyID string, data []byte) (string, error)
}

// Dependencies are the optional collaborators of the service. Nil members
// disable the matching feature.
type Dependencies struct {
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Cache   callerCache
	Search  leadIndex
	Engine  scoring.Engine
	Gateway messaging.Gateway
	Mailer  mailer
	Logos   logoStore
}

type Service struct {
	cfg       config.Config
	store     dataStore
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	cache     callerCache
	search    leadIndex
	scorer    *scoring.Service
	gateway   messaging.Gateway
	mailer    mailer
	logos     logoStore
	passwords *authpw.Service
	now       func() time.Time
	newID     func() string
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies) *Service {
	return newService(cfg, dataStore, deps)
}

func newService(cfg config.Config, st dataStore, deps Dependencies) *Service {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("realtycrm")
	}
	log := deps.Log.WithField("component", "app")
	return &Service{
		cfg:       cfg,
		store:     st,
		log:       log,
		metrics:   deps.Metrics,
		cache:     deps.Cache,
		search:    deps.Search,
		scorer:    scoring.NewService(st, deps.Engine, cfg.AITimeout, deps.Log.WithField("component", "scoring"), deps.Metrics.ScoringOutcomes),
		gateway:   deps.Gateway,
		mailer:    deps.Mailer,
		logos:     deps.Logos,
		passwords: authpw.NewService(st, resetTTL),
		now:       time.Now,
		newID:     newUUID,
	}
}

// Caller is the resolved tenant context of one request.
type Caller struct {
	UserID    string    `json:"userId"`
	ProfileID string    `json:"profileId"`
	CompanyID string    `json:"companyId"`
	Role      rbac.Role `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
}

func (c Caller) actor() rbac.Actor {
	return rbac.Actor{UserID: c.UserID, Role: c.Role}
}

// ResolveCaller turns a bearer token into the caller's tenant context.
func (s *Service) ResolveCaller(ctx context.Context, token string) (Caller, error) {
	if strings.TrimSpace(token) == "" {
		return Caller{}, errUnauthenticated()
	}
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Caller{}, errUnauthenticated()
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, claims.Subject)
		if err == nil {
			if role, err := rbac.Parse(cached.Role); err == nil {
				return Caller{
					UserID:    cached.UserID,
					ProfileID: cached.ProfileID,
					CompanyID: cached.CompanyID,
					Role:      role,
					Name:      cached.Name,
					Email:     cached.Email,
				}, nil
			}
		} else if !errors.Is(err, session.ErrMiss) {
			s.log.WithError(err).Warn("caller cache read failed")
		}
	}

	record, err := s.store.LookupCaller(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Caller{}, errNoProfile()
	}
	if err != nil {
		return Caller{}, fmt.Errorf("lookup caller: %w", err)
	}
	role, err := rbac.Parse(record.Role)
	if err != nil {
		return Caller{}, errNoProfile()
	}
	caller := Caller{
		UserID:    record.UserID,
		ProfileID: record.ProfileID,
		CompanyID: record.CompanyID,
		Role:      role,
		Name:      record.Name,
		Email:     record.Email,
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, session.Caller{
			UserID:    caller.UserID,
			ProfileID: caller.ProfileID,
			CompanyID: caller.CompanyID,
			Role:      string(caller.Role),
			Name:      caller.Name,
			Email:     caller.Email,
			CachedAt:  s.now().UTC(),
		}); err != nil {
			s.log.WithError(err).Warn("caller cache write failed")
		}
	}
	return caller, nil
}

func (s *Service) authorize(caller Caller, action rbac.Action, target rbac.Target) error {
	if err := rbac.Authorize(caller.actor(), action, target); err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":    caller.UserID,
			"company_id": caller.CompanyID,
			"role":       caller.Role,
			"action":     action,
		}).Info("authorization denied")
		return authzError(err)
	}
	return nil
}

func (s *Service) invalidateCaller(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("caller cache invalidate failed")
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness reports the status of every backing service that is configured.
func (s *Service) Readiness(ctx context.Context) (map[string]any, bool) {
	ready := true
	checks := map[string]any{}

	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["database"] = map[string]any{"status": "ok"}
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			ready = false
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["redis"] = map[string]any{"status": "ok"}
		}
	}
	return checks, ready
}

func (s *Service) notify(ctx context.Context, companyID, userID, title, body, link string) {
	n := store.Notification{
		ID:        s.newID(),
		CompanyID: companyID,
		UserID:    userID,
		Title:     title,
		Body:      body,
	}
	if link != "" {
		n.Link = &link
	}
	if _, err := s.store.InsertNotification(ctx, n); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("create notification")
	}
}

func (s *Service) issueToken(identity store.Identity) (string, time.Time, error) {
	return auth.IssueToken([]byte(s.cfg.JWTSecret), identity.ID, identity.Email, identity.Name, s.cfg.AccessTTL)
}

func (s *Service) link(path string) string {
	return strings.TrimRight(s.cfg.AppBaseURL, "/") + path
}
