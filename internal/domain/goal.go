package domain

import "time"

type NodeKind string

const (
	NodeValue  NodeKind = "value"
	NodeGoal   NodeKind = "goal"
	NodeTarget NodeKind = "target"
)

// Value is a terminal goal. Lower Priority means higher precedence.
type Value struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Priority    int       `json:"priority" yaml:"priority"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Goal is instrumental: it serves one or more Values. Strengths holds the
// tether strength per value id; unlisted values count as 1.
type Goal struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Values      []string           `json:"values" yaml:"values"`
	Strengths   map[string]float64 `json:"strengths,omitempty" yaml:"strengths,omitempty"`
	Progress    float64            `json:"progress" yaml:"progress"`
	Concepts    []string           `json:"concepts,omitempty" yaml:"concepts,omitempty"`
	CreatedAt   time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" yaml:"updated_at"`
}

type TargetState string

const (
	TargetNotStarted TargetState = "not_started"
	TargetInProgress TargetState = "in_progress"
	TargetCompleted  TargetState = "completed"
	TargetAbandoned  TargetState = "abandoned"
)

func ValidTargetState(s string) bool {
	switch TargetState(s) {
	case TargetNotStarted, TargetInProgress, TargetCompleted, TargetAbandoned:
		return true
	}
	return false
}

// TargetStatus holds the fraction for InProgress and the reason for Abandoned.
type TargetStatus struct {
	State    TargetState `json:"state" yaml:"state"`
	Fraction float64     `json:"fraction,omitempty" yaml:"fraction,omitempty"`
	Reason   string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func NotStarted() TargetStatus { return TargetStatus{State: TargetNotStarted} }

func InProgress(fraction float64) TargetStatus {
	return TargetStatus{State: TargetInProgress, Fraction: fraction}
}

func Completed() TargetStatus { return TargetStatus{State: TargetCompleted} }

func Abandoned(reason string) TargetStatus {
	return TargetStatus{State: TargetAbandoned, Reason: reason}
}

// Closed reports whether the target no longer needs attention.
func (s TargetStatus) Closed() bool {
	return s.State == TargetCompleted || s.State == TargetAbandoned
}

// TetherStrength looks up the strength of the link to id, 1 when unset.
func TetherStrength(strengths map[string]float64, id string) float64 {
	if s, ok := strengths[id]; ok {
		return s
	}
	return 1
}

type DriftReview struct {
	At   time.Time `json:"at" yaml:"at"`
	Note string    `json:"note" yaml:"note"`
}

// Target is tactical: it serves one or more Goals, with per-goal tether
// Strengths like Goal.
type Target struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Goals       []string           `json:"goals" yaml:"goals"`
	Strengths   map[string]float64 `json:"strengths,omitempty" yaml:"strengths,omitempty"`
	Status      TargetStatus       `json:"status" yaml:"status"`
	Due         *time.Time         `json:"due,omitempty" yaml:"due,omitempty"`
	Concepts    []string           `json:"concepts,omitempty" yaml:"concepts,omitempty"`
	Reviews     []DriftReview      `json:"reviews,omitempty" yaml:"reviews,omitempty"`
	CreatedAt   time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" yaml:"updated_at"`
}

type AlignmentWarning struct {
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}

type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeProgress    ChangeKind = "progress"
	ChangeStatus      ChangeKind = "status"
	ChangeDriftReview ChangeKind = "drift_review"
)

// GoalChange is one entry of the tracker's append-only change log.
type GoalChange struct {
	Seq      uint64        `json:"seq" yaml:"seq"`
	At       time.Time     `json:"at" yaml:"at"`
	NodeKind NodeKind      `json:"node_kind" yaml:"node_kind"`
	NodeID   string        `json:"node_id" yaml:"node_id"`
	Kind     ChangeKind    `json:"kind" yaml:"kind"`
	Progress *float64      `json:"progress,omitempty" yaml:"progress,omitempty"`
	Status   *TargetStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Note     string        `json:"note,omitempty" yaml:"note,omitempty"`
}

// Lineage is the upward chain from a target to the values it ultimately serves.
type Lineage struct {
	Target Target  `json:"target"`
	Goals  []Goal  `json:"goals"`
	Values []Value `json:"values"`
}

// GoalDocument is the persisted form of the goal hierarchy.
type GoalDocument struct {
	Values  map[string]Value  `json:"values" yaml:"values"`
	Goals   map[string]Goal   `json:"goals" yaml:"goals"`
	Targets map[string]Target `json:"targets" yaml:"targets"`
	Changes []GoalChange      `json:"changes" yaml:"changes"`
}
