package store

import "time"

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Address   *string   `json:"address"`
	LogoURL   *string   `json:"logo_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is an authentication principal. Its ID is the user_id every
// profile and role tuple refers to.
type Identity struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	LastSignInAt *time.Time
	CreatedAt    time.Time
}

type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CompanyID *string   `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	RoleStatusPending = "pending"
	RoleStatusActive  = "active"
)

type RoleAssignment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CompanyID string    `json:"company_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CallerRecord is the joined profile + active role row used to resolve a
// request's tenant context.
type CallerRecord struct {
	UserID    string
	ProfileID string
	CompanyID string
	Role      string
	Name      string
	Email     string
}

type TeamMember struct {
	Profile
	Role       string `json:"role"`
	RoleStatus string `json:"role_status"`
	LeadsCount int    `json:"leads_count"`
	DealsCount int    `json:"deals_count"`
}

type Lead struct {
	ID             string     `json:"id"`
	CompanyID      string     `json:"company_id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Email          *string    `json:"email"`
	Budget         *string    `json:"budget"`
	Location       *string    `json:"location"`
	PropertyType   *string    `json:"property_type"`
	Source         *string    `json:"source"`
	Stage          string     `json:"stage"`
	AssignedTo     *string    `json:"assigned_to"`
	Tags           []string   `json:"tags"`
	Notes          []string   `json:"notes"`
	LeadScore      *int       `json:"lead_score"`
	ScoreReasoning *string    `json:"score_reasoning"`
	ScoredAt       *time.Time `json:"scored_at"`
	LastContact    time.Time  `json:"last_contact"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedBy      string     `json:"created_by"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type LeadFilter struct {
	Stage      string
	AssignedTo string
	Source     string
	IDs        []string
}

type Property struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	BHK         string    `json:"bhk"`
	Area        string    `json:"area"`
	Price       string    `json:"price"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SiteVisit struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	LeadID     string    `json:"lead_id"`
	PropertyID string    `json:"property_id"`
	VisitDate  string    `json:"visit_date"`
	VisitTime  string    `json:"visit_time"`
	Status     string    `json:"status"`
	Feedback   *string   `json:"feedback"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type FollowUp struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id"`
	LeadID       string    `json:"lead_id"`
	Type         string    `json:"type"`
	FollowUpDate string    `json:"follow_up_date"`
	FollowUpTime string    `json:"follow_up_time"`
	Notes        *string   `json:"notes"`
	Status       string    `json:"status"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Message struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id"`
	LeadID        string    `json:"lead_id"`
	Content       string    `json:"content"`
	Direction     string    `json:"direction"`
	Status        string    `json:"status"`
	MessageType   string    `json:"message_type"`
	MetaMessageID *string   `json:"meta_message_id"`
	MetaStatus    *string   `json:"meta_status"`
	MetaError     *string   `json:"meta_error"`
	CreatedAt     time.Time `json:"created_at"`
}

type Workflow struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	Name         string     `json:"name"`
	TriggerEvent string     `json:"trigger_event"`
	Action       string     `json:"action"`
	Status       string     `json:"status"`
	RunsCount    int        `json:"runs_count"`
	LastRun      *time.Time `json:"last_run"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      *string   `json:"link"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordFilter narrows list queries for records hanging off a lead.
type RecordFilter struct {
	LeadID string
	Status string
	Limit  int
}

type CountByKey struct {
	Key   string
	Count int
}

// LeadStats is the raw per-company aggregate behind the analytics view.
type LeadStats struct {
	Total           int
	CreatedToday    int
	HotLeads        int
	BySource        []CountByKey
	ByStage         []CountByKey
	AverageScore    *float64
	PendingFollowUp int
	ScheduledVisits int
}

// PropertySample is the budget-comparison subset of a property.
type PropertySample struct {
	Price    string `json:"price"`
	Location string `json:"location"`
	BHK      string `json:"bhk"`
}
