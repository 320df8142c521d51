package domain

import "sort"

type EdgeStatus string

const (
	EdgePending  EdgeStatus = "pending"
	EdgeAccepted EdgeStatus = "accepted"
)

func (s EdgeStatus) Valid() bool { return s == EdgePending || s == EdgeAccepted }

type Edge struct {
	ID         string     `json:"id"`
	PartyA     string     `json:"party_a"`
	PartyB     string     `json:"party_b"`
	Initiator  string     `json:"initiator"`
	Status     EdgeStatus `json:"status" enum:"pending,accepted"`
	Message    string     `json:"message,omitempty"`
	Version    int64      `json:"version"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
	AcceptedAt *string    `json:"accepted_at,omitempty" format:"date-time"`
}

// Other returns the party of e that is not actorID.
func (e Edge) Other(actorID string) string {
	if e.PartyA == actorID {
		return e.PartyB
	}
	return e.PartyA
}

// Recipient is the party expected to accept a pending request.
func (e Edge) Recipient() string { return e.Other(e.Initiator) }

type GoalType string

const (
	GoalFixed    GoalType = "fixed"
	GoalFlexible GoalType = "flexible"
)

func (g GoalType) Valid() bool { return g == GoalFixed || g == GoalFlexible }

type FundableStatus string

const (
	FundablePendingApproval FundableStatus = "pending_approval"
	FundableActive          FundableStatus = "active"
	FundableFunded          FundableStatus = "funded"
	FundableInProgress      FundableStatus = "in_progress"
	FundableCompleted       FundableStatus = "completed"
	FundableCancelled       FundableStatus = "cancelled"
)

func (s FundableStatus) Valid() bool {
	switch s {
	case FundablePendingApproval, FundableActive, FundableFunded, FundableInProgress, FundableCompleted, FundableCancelled:
		return true
	}
	return false
}

// Closed reports whether the fundable no longer changes.
func (s FundableStatus) Closed() bool { return s == FundableCompleted || s == FundableCancelled }

type Fundable struct {
	ID                  string         `json:"id"`
	Owner               string         `json:"owner"`
	Title               string         `json:"title"`
	GoalAmount          float64        `json:"goal_amount"`
	GoalType            GoalType       `json:"goal_type" enum:"fixed,flexible"`
	RaisedAmount        float64        `json:"raised_amount"`
	ContributorCount    int            `json:"contributor_count"`
	Status              FundableStatus `json:"status" enum:"pending_approval,active,funded,in_progress,completed,cancelled"`
	Milestones          []string       `json:"milestones"`
	CompletedMilestones []string       `json:"completed_milestones"`
	FundingPercentage   float64        `json:"funding_percentage"`
	Version             int64          `json:"version"`
	CreatedAt           string         `json:"created_at" format:"date-time"`
	UpdatedAt           string         `json:"updated_at" format:"date-time"`
}

// HasMilestone reports whether name is one of f's milestones.
func (f Fundable) HasMilestone(name string) bool {
	for _, m := range f.Milestones {
		if m == name {
			return true
		}
	}
	return false
}

// MilestoneCompleted reports whether name was already completed.
func (f Fundable) MilestoneCompleted(name string) bool {
	for _, m := range f.CompletedMilestones {
		if m == name {
			return true
		}
	}
	return false
}

type Contribution struct {
	ID          string  `json:"id"`
	Fundable    string  `json:"fundable_id"`
	Contributor string  `json:"contributor_id"`
	Amount      float64 `json:"amount"`
	Anonymous   bool    `json:"anonymous"`
	Message     string  `json:"message,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type VotableStatus string

const (
	VotableDraft           VotableStatus = "draft"
	VotableOpenForFeedback VotableStatus = "open_for_feedback"
	VotableUnderReview     VotableStatus = "under_review"
	VotableApproved        VotableStatus = "approved"
	VotableImplemented     VotableStatus = "implemented"
	VotableRejected        VotableStatus = "rejected"
)

func (s VotableStatus) Valid() bool {
	switch s {
	case VotableDraft, VotableOpenForFeedback, VotableUnderReview, VotableApproved, VotableImplemented, VotableRejected:
		return true
	}
	return false
}

// AcceptsInput reports whether votes and feedback may be recorded.
func (s VotableStatus) AcceptsInput() bool {
	return s == VotableOpenForFeedback || s == VotableUnderReview
}

type Votable struct {
	ID            string        `json:"id"`
	Owner         string        `json:"owner"`
	Title         string        `json:"title"`
	SupportCount  int           `json:"support_count"`
	OpposeCount   int           `json:"oppose_count"`
	NeutralCount  int           `json:"neutral_count"`
	FeedbackCount int           `json:"feedback_count"`
	Status        VotableStatus `json:"status" enum:"draft,open_for_feedback,under_review,approved,implemented,rejected"`
	Version       int64         `json:"version"`
	CreatedAt     string        `json:"created_at" format:"date-time"`
	UpdatedAt     string        `json:"updated_at" format:"date-time"`
}

// TotalVotes is the number of distinct live voters.
func (v Votable) TotalVotes() int { return v.SupportCount + v.OpposeCount + v.NeutralCount }

// CountFor returns the counter for t.
func (v Votable) CountFor(t VoteType) int {
	switch t {
	case VoteSupport:
		return v.SupportCount
	case VoteOppose:
		return v.OpposeCount
	case VoteNeutral:
		return v.NeutralCount
	}
	return 0
}

type VoteType string

const (
	VoteSupport VoteType = "support"
	VoteOppose  VoteType = "oppose"
	VoteNeutral VoteType = "neutral"
)

func (t VoteType) Valid() bool { return t == VoteSupport || t == VoteOppose || t == VoteNeutral }

// Column names the votables counter that tracks t.
func (t VoteType) Column() string {
	switch t {
	case VoteSupport:
		return "support_count"
	case VoteOppose:
		return "oppose_count"
	case VoteNeutral:
		return "neutral_count"
	}
	return ""
}

type Vote struct {
	Policy    string   `json:"policy_id"`
	Voter     string   `json:"voter_id"`
	Type      VoteType `json:"vote_type" enum:"support,oppose,neutral"`
	Comment   string   `json:"comment,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

type Feedback struct {
	ID        string `json:"id"`
	Policy    string `json:"policy_id"`
	Author    string `json:"author_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Endorsement struct {
	ID        string `json:"id"`
	Endorser  string `json:"endorser_id"`
	Subject   string `json:"subject_id"`
	Skill     string `json:"skill"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Message is a direct message between two connected actors.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender_id"`
	Recipient string `json:"recipient_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ApplicationStatus string

const (
	ApplicationApplied     ApplicationStatus = "applied"
	ApplicationReviewed    ApplicationStatus = "reviewed"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationInterviewed ApplicationStatus = "interviewed"
	ApplicationAccepted    ApplicationStatus = "accepted"
	ApplicationRejected    ApplicationStatus = "rejected"
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationApplied, ApplicationReviewed, ApplicationShortlisted, ApplicationInterviewed, ApplicationAccepted, ApplicationRejected:
		return true
	}
	return false
}

type Application struct {
	ID          string            `json:"id"`
	Job         string            `json:"job_id"`
	Applicant   string            `json:"applicant_id"`
	Status      ApplicationStatus `json:"status" enum:"applied,reviewed,shortlisted,interviewed,accepted,rejected"`
	CoverLetter string            `json:"cover_letter,omitempty"`
	Version     int64             `json:"version"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
	UpdatedAt   string            `json:"updated_at" format:"date-time"`
}

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Job struct {
	ID             string   `json:"id"`
	Org            string   `json:"org_id"`
	Title          string   `json:"title"`
	RequiredSkills []string `json:"required_skills"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

type ActorProfile struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name,omitempty"`
	Skills      []string `json:"skills"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type ActivityKind string

const (
	ActivityPolicyCreation ActivityKind = "policy_creation"
	ActivityPolicyVote     ActivityKind = "policy_vote"
	ActivityPolicyFeedback ActivityKind = "policy_feedback"
	ActivityForumCreation  ActivityKind = "forum_creation"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type ParticipationAccount struct {
	Actor       string               `json:"actor_id"`
	TotalPoints int                  `json:"total_points"`
	PerActivity map[ActivityKind]int `json:"per_activity"`
	Tier        Tier                 `json:"tier" enum:"bronze,silver,gold,platinum"`
	UpdatedAt   string               `json:"updated_at,omitempty" format:"date-time"`
}

// Activities returns the activity kinds of a in a stable order.
func (a ParticipationAccount) Activities() []ActivityKind {
	kinds := make([]ActivityKind, 0, len(a.PerActivity))
	for k := range a.PerActivity {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
