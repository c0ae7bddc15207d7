// Package lead holds the lifecycle rules for leads: the stage enumeration,
// the transition policy, creation defaults and patch application.
package lead

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"realtycrm/api/internal/store"
	"realtycrm/api/internal/validate"
)

// Stage is a pipeline position.
type Stage string

const (
	StageNew         Stage = "new"
	StageContacted   Stage = "contacted"
	StageFollowUp    Stage = "follow-up"
	StageSiteVisit   Stage = "site-visit"
	StageNegotiation Stage = "negotiation"
	StageClosedWon   Stage = "closed-won"
	StageClosedLost  Stage = "closed-lost"
)

var stages = []Stage{
	StageNew,
	StageContacted,
	StageFollowUp,
	StageSiteVisit,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

var ErrInvalidStage = errors.New("invalid stage")

// Stages returns the pipeline in order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

func (s Stage) Valid() bool {
	for _, candidate := range stages {
		if s == candidate {
			return true
		}
	}
	return false
}

func ParseStage(value string) (Stage, error) {
	stage := Stage(value)
	if !stage.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, value)
	}
	return stage, nil
}

// CheckTransition is the single place a stage ordering policy would live.
// Every stage may currently follow every other.
func CheckTransition(from, to Stage) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, to)
	}
	return nil
}

// CreateInput is the client-supplied part of a new lead.
type CreateInput struct {
	Name         string   `json:"name" validate:"required"`
	Phone        string   `json:"phone" validate:"required"`
	Email        *string  `json:"email" validate:"omitempty,email"`
	Budget       *string  `json:"budget"`
	Location     *string  `json:"location"`
	PropertyType *string  `json:"property_type"`
	Source       *string  `json:"source"`
	Stage        string   `json:"stage"`
	AssignedTo   *string  `json:"assigned_to" validate:"omitempty,uuid"`
	Tags         []string `json:"tags"`
	Notes        []string `json:"notes"`
}

// New validates in and builds the lead row. Stage is checked before the
// required fields so an unknown stage is reported as such.
func New(id, companyID, createdBy string, in CreateInput, now time.Time) (store.Lead, error) {
	stage := StageNew
	if in.Stage != "" {
		parsed, err := ParseStage(in.Stage)
		if err != nil {
			return store.Lead{}, err
		}
		stage = parsed
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = trimOptional(in.Email)
	in.AssignedTo = trimOptional(in.AssignedTo)
	if err := validate.Struct(in); err != nil {
		return store.Lead{}, err
	}

	return store.Lead{
		ID:           id,
		CompanyID:    companyID,
		Name:         in.Name,
		Phone:        in.Phone,
		Email:        in.Email,
		Budget:       trimOptional(in.Budget),
		Location:     trimOptional(in.Location),
		PropertyType: trimOptional(in.PropertyType),
		Source:       trimOptional(in.Source),
		Stage:        string(stage),
		AssignedTo:   in.AssignedTo,
		Tags:         nonNil(in.Tags),
		Notes:        nonNil(in.Notes),
		LastContact:  now,
		CreatedAt:    now,
		CreatedBy:    createdBy,
		UpdatedAt:    now,
	}, nil
}

// Patch carries the fields present in an update. A nil pointer leaves the
// field unchanged; an empty string clears an optional field.
type Patch struct {
	Name         *string   `json:"name"`
	Phone        *string   `json:"phone"`
	Email        *string   `json:"email"`
	Budget       *string   `json:"budget"`
	Location     *string   `json:"location"`
	PropertyType *string   `json:"property_type"`
	Source       *string   `json:"source"`
	Stage        *string   `json:"stage"`
	AssignedTo   *string   `json:"assigned_to"`
	Tags         *[]string `json:"tags"`
	Notes        *[]string `json:"notes"`
}

// Result is a patched lead plus what changed.
type Result struct {
	Lead            store.Lead
	StageChanged    bool
	AssigneeChanged bool
}

type patchedFields struct {
	Name       string  `json:"name" validate:"required"`
	Phone      string  `json:"phone" validate:"required"`
	Email      *string `json:"email" validate:"omitempty,email"`
	AssignedTo *string `json:"assigned_to" validate:"omitempty,uuid"`
}

// Apply validates p against current and returns the updated row. When the
// stage changes, last_contact moves to now (never backwards) in the same
// row so the store persists both together.
func Apply(current store.Lead, p Patch, now time.Time) (Result, error) {
	next := current
	res := Result{}

	if p.Stage != nil {
		stage, err := ParseStage(*p.Stage)
		if err != nil {
			return Result{}, err
		}
		if err := CheckTransition(Stage(current.Stage), stage); err != nil {
			return Result{}, err
		}
		if string(stage) != current.Stage {
			next.Stage = string(stage)
			res.StageChanged = true
			if now.After(current.LastContact) {
				next.LastContact = now
			}
		}
	}

	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		next.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Email != nil {
		next.Email = trimOptional(p.Email)
	}
	if p.Budget != nil {
		next.Budget = trimOptional(p.Budget)
	}
	if p.Location != nil {
		next.Location = trimOptional(p.Location)
	}
	if p.PropertyType != nil {
		next.PropertyType = trimOptional(p.PropertyType)
	}
	if p.Source != nil {
		next.Source = trimOptional(p.Source)
	}
	if p.AssignedTo != nil {
		next.AssignedTo = trimOptional(p.AssignedTo)
		res.AssigneeChanged = !sameOptional(current.AssignedTo, next.AssignedTo)
	}
	if p.Tags != nil {
		next.Tags = nonNil(*p.Tags)
	}
	if p.Notes != nil {
		next.Notes = nonNil(*p.Notes)
	}

	if err := validate.Struct(patchedFields{
		Name:       next.Name,
		Phone:      next.Phone,
		Email:      next.Email,
		AssignedTo: next.AssignedTo,
	}); err != nil {
		return Result{}, err
	}

	next.UpdatedAt = now
	res.Lead = next
	return res, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
