package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"realtycrm/api/internal/messaging"
	"realtycrm/api/internal/store"
)

// memStore is an in-memory dataStore with the tenant rules of the Postgres
// store: rows outside the company behave exactly like missing rows.
type memStore struct {
	mu sync.Mutex

	pingErr error

	identities    map[string]store.Identity
	companies     map[string]store.Company
	profiles      map[string]store.Profile // by user id
	roles         map[string]store.RoleAssignment
	resets        map[string]memReset // by token hash
	leads         map[string]store.Lead
	properties    map[string]store.Property
	visits        map[string]store.SiteVisit
	followUps     map[string]store.FollowUp
	workflows     map[string]store.Workflow
	messages      []store.Message
	notifications []store.Notification

	lookups int
}

type memReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

func newMemStore() *memStore {
	return &memStore{
		identities: map[string]store.Identity{},
		companies:  map[string]store.Company{},
		profiles:   map[string]store.Profile{},
		roles:      map[string]store.RoleAssignment{},
		resets:     map[string]memReset{},
		leads:      map[string]store.Lead{},
		properties: map[string]store.Property{},
		visits:     map[string]store.SiteVisit{},
		followUps:  map[string]store.FollowUp{},
		workflows:  map[string]store.Workflow{},
	}
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) emailTaken(email string) bool {
	for _, id := range m.identities {
		if strings.EqualFold(id.Email, email) {
			return true
		}
	}
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			return true
		}
	}
	return false
}

func (m *memStore) RegisterCompany(_ context.Context, identity store.Identity, company store.Company, profile store.Profile, role store.RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTaken(identity.Email) {
		return store.ErrDuplicate
	}
	m.identities[identity.ID] = identity
	m.companies[company.ID] = company
	m.profiles[profile.UserID] = profile
	m.roles[role.UserID] = role
	return nil
}

func (m *memStore) CreateInvitation(_ context.Context, identity store.Identity, profile store.Profile, role store.RoleAssignment, tokenHash string, tokenExpires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTaken(identity.Email) {
		return store.ErrDuplicate
	}
	m.identities[identity.ID] = identity
	m.profiles[profile.UserID] = profile
	m.roles[role.UserID] = role
	m.resets[tokenHash] = memReset{userID: identity.ID, expiresAt: tokenExpires}
	return nil
}

func (m *memStore) GetIdentityByEmail(_ context.Context, email string) (store.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.identities {
		if strings.EqualFold(id.Email, email) {
			return id, nil
		}
	}
	return store.Identity{}, store.ErrNotFound
}

func (m *memStore) MarkSignedIn(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[userID]
	if !ok {
		return store.ErrNotFound
	}
	identity.LastSignInAt = &at
	m.identities[userID] = identity
	if role, ok := m.roles[userID]; ok && role.Status == store.RoleStatusPending {
		role.Status = store.RoleStatusActive
		m.roles[userID] = role
	}
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[tokenHash] = memReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) ConsumePasswordReset(_ context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset, ok := m.resets[tokenHash]
	if !ok || reset.used || !reset.expiresAt.After(now) {
		return "", store.ErrNotFound
	}
	reset.used = true
	m.resets[tokenHash] = reset
	identity := m.identities[reset.userID]
	identity.PasswordHash = passwordHash
	m.identities[reset.userID] = identity
	return reset.userID, nil
}

func (m *memStore) ProfileEmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emailTaken(email), nil
}

func (m *memStore) LookupCaller(_ context.Context, userID string) (store.CallerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	profile, ok := m.profiles[userID]
	if !ok || profile.CompanyID == nil {
		return store.CallerRecord{}, store.ErrNotFound
	}
	role, ok := m.roles[userID]
	if !ok || role.CompanyID != *profile.CompanyID || role.Status != store.RoleStatusActive {
		return store.CallerRecord{}, store.ErrNotFound
	}
	return store.CallerRecord{
		UserID:    userID,
		ProfileID: profile.ID,
		CompanyID: *profile.CompanyID,
		Role:      role.Role,
		Name:      profile.Name,
		Email:     profile.Email,
	}, nil
}

func (m *memStore) GetProfileByUserID(_ context.Context, userID string) (store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return profile, nil
}

func (m *memStore) GetCompany(_ context.Context, companyID string) (store.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	company, ok := m.companies[companyID]
	if !ok {
		return store.Company{}, store.ErrNotFound
	}
	return company, nil
}

func (m *memStore) UpdateCompany(_ context.Context, company store.Company) (store.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[company.ID]; !ok {
		return store.Company{}, store.ErrNotFound
	}
	m.companies[company.ID] = company
	return company, nil
}

func (m *memStore) SetCompanyLogo(_ context.Context, companyID, logoURL string) (store.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	company, ok := m.companies[companyID]
	if !ok {
		return store.Company{}, store.ErrNotFound
	}
	company.LogoURL = &logoURL
	m.companies[companyID] = company
	return company, nil
}

func (m *memStore) GetMemberRole(_ context.Context, companyID, userID string) (store.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[userID]
	if !ok || role.CompanyID != companyID {
		return store.RoleAssignment{}, store.ErrNotFound
	}
	return role, nil
}

func (m *memStore) UpdateMemberRole(_ context.Context, companyID, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.roles[userID]
	if !ok || current.CompanyID != companyID {
		return store.ErrNotFound
	}
	current.Role = role
	m.roles[userID] = current
	return nil
}

func (m *memStore) RemoveMember(_ context.Context, companyID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.roles[userID]
	if !ok || current.CompanyID != companyID {
		return store.ErrNotFound
	}
	delete(m.roles, userID)
	profile := m.profiles[userID]
	profile.CompanyID = nil
	m.profiles[userID] = profile
	return nil
}

func (m *memStore) IsMember(_ context.Context, companyID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[userID]
	return ok && role.CompanyID == companyID, nil
}

func (m *memStore) ListTeam(_ context.Context, companyID string) ([]store.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.TeamMember{}
	for userID, role := range m.roles {
		if role.CompanyID != companyID {
			continue
		}
		member := store.TeamMember{Profile: m.profiles[userID], Role: role.Role, RoleStatus: role.Status}
		for _, l := range m.leads {
			if l.AssignedTo != nil && *l.AssignedTo == userID {
				member.LeadsCount++
				if l.Stage == "closed-won" {
					member.DealsCount++
				}
			}
		}
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) ListLeads(_ context.Context, companyID string, filter store.LeadFilter) ([]store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := map[string]bool{}
	for _, id := range filter.IDs {
		ids[id] = true
	}
	out := []store.Lead{}
	for _, l := range m.leads {
		if l.CompanyID != companyID ||
			(filter.Stage != "" && l.Stage != filter.Stage) ||
			(filter.AssignedTo != "" && (l.AssignedTo == nil || *l.AssignedTo != filter.AssignedTo)) ||
			(filter.Source != "" && (l.Source == nil || *l.Source != filter.Source)) ||
			(len(ids) > 0 && !ids[l.ID]) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetLead(_ context.Context, companyID, leadID string) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok || l.CompanyID != companyID {
		return store.Lead{}, store.ErrNotFound
	}
	return l, nil
}

func (m *memStore) InsertLead(_ context.Context, l store.Lead) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = l.LastContact
	}
	l.UpdatedAt = l.CreatedAt
	m.leads[l.ID] = l
	return l, nil
}

func (m *memStore) UpdateLead(_ context.Context, l store.Lead) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.leads[l.ID]
	if !ok || current.CompanyID != l.CompanyID {
		return store.Lead{}, store.ErrNotFound
	}
	m.leads[l.ID] = l
	return l, nil
}

func (m *memStore) DeleteLead(_ context.Context, companyID, leadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok || l.CompanyID != companyID {
		return store.ErrNotFound
	}
	delete(m.leads, leadID)
	return nil
}

func (m *memStore) SetLeadScore(_ context.Context, companyID, leadID string, score int, reasoning string, at time.Time) (store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok || l.CompanyID != companyID {
		return store.Lead{}, store.ErrNotFound
	}
	if l.ScoredAt != nil && !at.After(*l.ScoredAt) {
		at = l.ScoredAt.Add(time.Microsecond)
	}
	l.LeadScore = &score
	l.ScoreReasoning = &reasoning
	l.ScoredAt = &at
	m.leads[leadID] = l
	return l, nil
}

func (m *memStore) FindLeadsByPhoneDigits(_ context.Context, digits string) ([]store.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Lead{}
	for _, l := range m.leads {
		if messaging.Digits(l.Phone) == digits {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) TouchLeadContact(_ context.Context, companyID, leadID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok || l.CompanyID != companyID {
		return store.ErrNotFound
	}
	l.LastContact = at
	m.leads[leadID] = l
	return nil
}

func (m *memStore) LeadStats(_ context.Context, companyID string, todayStart time.Time) (store.LeadStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats store.LeadStats
	bySource := map[string]int{}
	byStage := map[string]int{}
	var scoreSum float64
	var scored int
	for _, l := range m.leads {
		if l.CompanyID != companyID {
			continue
		}
		stats.Total++
		if !l.CreatedAt.Before(todayStart) {
			stats.CreatedToday++
		}
		for _, tag := range l.Tags {
			if tag == "Hot Lead" {
				stats.HotLeads++
				break
			}
		}
		source := "Unknown"
		if l.Source != nil && *l.Source != "" {
			source = *l.Source
		}
		bySource[source]++
		byStage[l.Stage]++
		if l.LeadScore != nil {
			scoreSum += float64(*l.LeadScore)
			scored++
		}
	}
	for key, count := range bySource {
		stats.BySource = append(stats.BySource, store.CountByKey{Key: key, Count: count})
	}
	sort.Slice(stats.BySource, func(i, j int) bool {
		if stats.BySource[i].Count != stats.BySource[j].Count {
			return stats.BySource[i].Count > stats.BySource[j].Count
		}
		return stats.BySource[i].Key < stats.BySource[j].Key
	})
	for key, count := range byStage {
		stats.ByStage = append(stats.ByStage, store.CountByKey{Key: key, Count: count})
	}
	if scored > 0 {
		avg := scoreSum / float64(scored)
		stats.AverageScore = &avg
	}
	for _, f := range m.followUps {
		if f.CompanyID == companyID && f.Status == "pending" {
			stats.PendingFollowUp++
		}
	}
	for _, v := range m.visits {
		if v.CompanyID == companyID && v.Status == "scheduled" {
			stats.ScheduledVisits++
		}
	}
	return stats, nil
}

func (m *memStore) SampleProperties(_ context.Context, companyID string, limit int) ([]store.PropertySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.PropertySample{}
	for _, p := range m.properties {
		if p.CompanyID == companyID && len(out) < limit {
			out = append(out, store.PropertySample{Price: p.Price, Location: p.Location, BHK: p.BHK})
		}
	}
	return out, nil
}

func matches(companyID string, filter store.RecordFilter, rowCompany, rowLead, rowStatus string) bool {
	return rowCompany == companyID &&
		(filter.LeadID == "" || filter.LeadID == rowLead) &&
		(filter.Status == "" || filter.Status == rowStatus)
}

func (m *memStore) ListProperties(_ context.Context, companyID string, filter store.RecordFilter) ([]store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Property{}
	for _, p := range m.properties {
		if p.CompanyID == companyID && (filter.Status == "" || filter.Status == p.Status) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProperty(_ context.Context, companyID, id string) (store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok || p.CompanyID != companyID {
		return store.Property{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) InsertProperty(_ context.Context, p store.Property) (store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = p
	return p, nil
}

func (m *memStore) UpdateProperty(_ context.Context, p store.Property) (store.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.properties[p.ID]; !ok || current.CompanyID != p.CompanyID {
		return store.Property{}, store.ErrNotFound
	}
	m.properties[p.ID] = p
	return p, nil
}

func (m *memStore) DeleteProperty(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.properties[id]; !ok || p.CompanyID != companyID {
		return store.ErrNotFound
	}
	delete(m.properties, id)
	return nil
}

func (m *memStore) ListSiteVisits(_ context.Context, companyID string, filter store.RecordFilter) ([]store.SiteVisit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.SiteVisit{}
	for _, v := range m.visits {
		if matches(companyID, filter, v.CompanyID, v.LeadID, v.Status) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) GetSiteVisit(_ context.Context, companyID, id string) (store.SiteVisit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok || v.CompanyID != companyID {
		return store.SiteVisit{}, store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) InsertSiteVisit(_ context.Context, v store.SiteVisit) (store.SiteVisit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits[v.ID] = v
	return v, nil
}

func (m *memStore) UpdateSiteVisit(_ context.Context, v store.SiteVisit) (store.SiteVisit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.visits[v.ID]; !ok || current.CompanyID != v.CompanyID {
		return store.SiteVisit{}, store.ErrNotFound
	}
	m.visits[v.ID] = v
	return v, nil
}

func (m *memStore) DeleteSiteVisit(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.visits[id]; !ok || v.CompanyID != companyID {
		return store.ErrNotFound
	}
	delete(m.visits, id)
	return nil
}

func (m *memStore) ListFollowUps(_ context.Context, companyID string, filter store.RecordFilter) ([]store.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.FollowUp{}
	for _, f := range m.followUps {
		if matches(companyID, filter, f.CompanyID, f.LeadID, f.Status) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) GetFollowUp(_ context.Context, companyID, id string) (store.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.followUps[id]
	if !ok || f.CompanyID != companyID {
		return store.FollowUp{}, store.ErrNotFound
	}
	return f, nil
}

func (m *memStore) InsertFollowUp(_ context.Context, f store.FollowUp) (store.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followUps[f.ID] = f
	return f, nil
}

func (m *memStore) UpdateFollowUp(_ context.Context, f store.FollowUp) (store.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.followUps[f.ID]; !ok || current.CompanyID != f.CompanyID {
		return store.FollowUp{}, store.ErrNotFound
	}
	m.followUps[f.ID] = f
	return f, nil
}

func (m *memStore) DeleteFollowUp(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.followUps[id]; !ok || f.CompanyID != companyID {
		return store.ErrNotFound
	}
	delete(m.followUps, id)
	return nil
}

func (m *memStore) ListWorkflows(_ context.Context, companyID string) ([]store.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Workflow{}
	for _, w := range m.workflows {
		if w.CompanyID == companyID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) GetWorkflow(_ context.Context, companyID, id string) (store.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok || w.CompanyID != companyID {
		return store.Workflow{}, store.ErrNotFound
	}
	return w, nil
}

func (m *memStore) InsertWorkflow(_ context.Context, w store.Workflow) (store.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[w.ID] = w
	return w, nil
}

func (m *memStore) UpdateWorkflow(_ context.Context, w store.Workflow) (store.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.workflows[w.ID]; !ok || current.CompanyID != w.CompanyID {
		return store.Workflow{}, store.ErrNotFound
	}
	m.workflows[w.ID] = w
	return w, nil
}

func (m *memStore) DeleteWorkflow(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workflows[id]; !ok || w.CompanyID != companyID {
		return store.ErrNotFound
	}
	delete(m.workflows, id)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, companyID string, filter store.RecordFilter) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Message{}
	for _, msg := range m.messages {
		if matches(companyID, filter, msg.CompanyID, msg.LeadID, msg.Status) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) InsertMessage(_ context.Context, msg store.Message) (store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.MetaMessageID != nil {
		for _, existing := range m.messages {
			if existing.MetaMessageID != nil && *existing.MetaMessageID == *msg.MetaMessageID {
				return store.Message{}, store.ErrDuplicate
			}
		}
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *memStore) RecordSendResult(_ context.Context, companyID, messageID string, providerID, metaStatus, metaError *string) (store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID != messageID || msg.CompanyID != companyID {
			continue
		}
		if providerID != nil {
			msg.MetaMessageID = providerID
		}
		msg.MetaStatus = metaStatus
		msg.MetaError = metaError
		m.messages[i] = msg
		return msg, nil
	}
	return store.Message{}, store.ErrNotFound
}

func (m *memStore) UpdateStatusByProviderID(_ context.Context, providerID, metaStatus string, status, metaError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for i, msg := range m.messages {
		if msg.MetaMessageID == nil || *msg.MetaMessageID != providerID {
			continue
		}
		found = true
		ms := metaStatus
		msg.MetaStatus = &ms
		if status != nil && messaging.StatusRank(*status) > messaging.StatusRank(msg.Status) {
			msg.Status = *status
		}
		if metaError != nil {
			msg.MetaError = metaError
		}
		m.messages[i] = msg
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

func (m *memStore) InsertNotification(_ context.Context, n store.Notification) (store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return n, nil
}

func (m *memStore) ListNotifications(_ context.Context, companyID, userID string, unreadOnly bool, limit int) ([]store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Notification{}
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.notifications[i]
		if n.CompanyID == companyID && n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) MarkNotificationsRead(_ context.Context, companyID, userID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var affected int64
	for i, n := range m.notifications {
		if n.CompanyID != companyID || n.UserID != userID {
			continue
		}
		if len(ids) > 0 && !wanted[n.ID] {
			continue
		}
		m.notifications[i].IsRead = true
		affected++
	}
	return affected, nil
}

// notificationsFor returns every notification addressed to userID.
func (m *memStore) notificationsFor(userID string) []store.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}
