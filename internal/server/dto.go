package server

import (
	"encoding/json"

	"tally/internal/domain"
)

// Request payloads

type ConnectRequest struct {
	TargetID string `json:"target_id"`
	Message  string `json:"message,omitempty"`
}

type ProposeProjectRequest struct {
	Title      string   `json:"title"`
	GoalAmount float64  `json:"goal_amount,omitempty"`
	GoalType   string   `json:"goal_type,omitempty" enum:"fixed,flexible"`
	Milestones []string `json:"milestones,omitempty"`
}

type ContributeRequest struct {
	Amount    float64 `json:"amount"`
	Anonymous bool    `json:"anonymous,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type MilestoneRequest struct {
	Name string `json:"name"`
}

type ProjectTransitionRequest struct {
	Action string `json:"action" enum:"approve,start,complete,cancel"`
}

type CreatePolicyRequest struct {
	Title string `json:"title"`
}

type PolicyTransitionRequest struct {
	Event string `json:"event" enum:"open,review,approve,reject,implement"`
}

type VoteRequest struct {
	VoteType string `json:"vote_type" enum:"support,oppose,neutral"`
	Comment  string `json:"comment,omitempty"`
}

type FeedbackRequest struct {
	Kind    string `json:"kind,omitempty"`
	Content string `json:"content"`
}

type EndorseRequest struct {
	SubjectID string `json:"subject_id"`
	Skill     string `json:"skill"`
	Message   string `json:"message,omitempty"`
}

type MessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type ProfileRequest struct {
	DisplayName string   `json:"display_name,omitempty"`
	Skills      []string `json:"skills"`
}

type CreateOrgRequest struct {
	Name string `json:"name"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"owner,member"`
}

type CreateJobRequest struct {
	Title          string   `json:"title"`
	RequiredSkills []string `json:"required_skills,omitempty"`
}

type ApplyRequest struct {
	CoverLetter string `json:"cover_letter,omitempty"`
}

type ApplicationStatusRequest struct {
	Status string `json:"status" enum:"applied,reviewed,shortlisted,interviewed,accepted,rejected"`
}

type CreditRequest struct {
	ActorID  string `json:"actor_id"`
	Activity string `json:"activity"`
	Points   int    `json:"points,omitempty"`
}

type RoleRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"moderator,admin"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

// ContributionResponse hides the contributor of an anonymous contribution
// from everyone but the contributor.
type ContributionResponse struct {
	ID            string  `json:"id"`
	FundableID    string  `json:"fundable_id"`
	ContributorID string  `json:"contributor_id,omitempty"`
	Amount        float64 `json:"amount"`
	Anonymous     bool    `json:"anonymous"`
	Message       string  `json:"message,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type ContributeResponse struct {
	Project      domain.Fundable      `json:"project"`
	Contribution ContributionResponse `json:"contribution"`
}

type EventResponse struct {
	ID            int64          `json:"id"`
	TS            string         `json:"ts" format:"date-time"`
	Type          string         `json:"type"`
	AggregateKind string         `json:"aggregate_kind"`
	AggregateID   string         `json:"aggregate_id"`
	RecordID      string         `json:"record_id,omitempty"`
	ActorID       string         `json:"actor_id"`
	Payload       map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID   string   `json:"actor_id"`
	Roles     []string `json:"roles"`
	Moderator bool     `json:"moderator"`
	Source    string   `json:"source"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Conversion helpers

func contributionResponse(c domain.Contribution, viewer string) ContributionResponse {
	out := ContributionResponse{
		ID:            c.ID,
		FundableID:    c.Fundable,
		ContributorID: c.Contributor,
		Amount:        c.Amount,
		Anonymous:     c.Anonymous,
		Message:       c.Message,
		CreatedAt:     c.CreatedAt,
	}
	if c.Anonymous && c.Contributor != viewer {
		out.ContributorID = ""
	}
	return out
}

func mapContributions(items []domain.Contribution, viewer string) []ContributionResponse {
	out := make([]ContributionResponse, 0, len(items))
	for _, c := range items {
		out = append(out, contributionResponse(c, viewer))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:            e.ID,
		TS:            e.TS,
		Type:          e.Type,
		AggregateKind: e.AggregateKind,
		AggregateID:   e.AggregateID,
		RecordID:      e.RecordID,
		ActorID:       e.ActorID,
		Payload:       decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey, raw string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, Key: raw, CreatedAt: k.CreatedAt}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
