// Package contests is the typed REST API of the contest hub backend:
// sessions, contests, submissions, profiles and the leaderboard. List
// endpoints are served by pkg/pagination; this package names their paths.
package contests

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is returned when a request fails validation before it is sent.
var ErrInvalidRequest = errors.New("invalid request")

// List endpoints.
const (
	ResourceContests           = "/api/contests"
	ResourceCreatorContests    = "/api/creator/contests"
	ResourceCreatorSubmissions = "/api/creator/submissions"
	ResourceAdminUsers         = "/api/admin/users"
	ResourceLeaderboard        = "/api/public/leaderboard"
)

// ParticipatedResource lists contests uid joined. Empty when uid is empty, so
// queries on it stay idle until the user is known.
func ParticipatedResource(uid string) string {
	return userResource(uid, "participated")
}

// WinningResource lists contests uid won.
func WinningResource(uid string) string {
	return userResource(uid, "winning")
}

func userResource(uid, leaf string) string {
	if uid == "" {
		return ""
	}
	return "/api/users/" + url.PathEscape(uid) + "/" + leaf
}

// Roles.
const (
	RoleUser    = "user"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// Contest status values.
const (
	StatusPending   = "Pending"
	StatusConfirmed = "Confirmed"
	StatusRejected  = "Rejected"
)

// Winner is the declared winner of a contest.
type Winner struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

// Contest as returned by the backend.
type Contest struct {
	ID              string  `json:"_id"`
	Name            string  `json:"name"`
	Image           string  `json:"image,omitempty"`
	Type            string  `json:"type"`
	Status          string  `json:"status,omitempty"`
	Price           float64 `json:"price"`
	PrizeMoney      float64 `json:"prizeMoney"`
	Deadline        string  `json:"deadline,omitempty"`
	Participants    int     `json:"participants"`
	Description     string  `json:"description,omitempty"`
	ShortDesc       string  `json:"shortDesc,omitempty"`
	TaskInstruction string  `json:"taskInstruction,omitempty"`
	Creator         string  `json:"creator,omitempty"`
	Winner          *Winner `json:"winner,omitempty"`
	WinDate         string  `json:"winDate,omitempty"`
}

// NewContest is the creator form for adding or editing a contest.
type NewContest struct {
	Name            string  `json:"name" validate:"required,max=120"`
	Price           float64 `json:"price" validate:"gte=0"`
	PrizeMoney      float64 `json:"prizeMoney" validate:"gte=0"`
	Type            string  `json:"type" validate:"required,oneof=Design Writing Development Marketing 'Content Writing'"`
	Deadline        string  `json:"deadline" validate:"required,datetime=2006-01-02"`
	Description     string  `json:"description" validate:"required"`
	TaskInstruction string  `json:"taskInstruction" validate:"required"`
}

// Image is an uploaded contest or profile picture.
type Image struct {
	Filename string
	Data     []byte
}

// User as listed on the admin screen.
type User struct {
	ID       string `json:"_id"`
	UID      string `json:"uid,omitempty"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Photo    string `json:"photo,omitempty"`
	Role     string `json:"role"`
}

// Submission is a participant's task entry.
type Submission struct {
	ID         string `json:"_id,omitempty"`
	ContestID  string `json:"contestId,omitempty"`
	UID        string `json:"uid,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Submission string `json:"submission" validate:"required,max=2000"`
	Winner     bool   `json:"winner,omitempty"`
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	ID         string  `json:"_id"`
	Name       string  `json:"name"`
	Photo      string  `json:"photo,omitempty"`
	Wins       int     `json:"wins"`
	TotalPrize float64 `json:"totalPrize"`
}

// Profile is the signed-in user's editable profile.
type Profile struct {
	Name    string `json:"name" validate:"required,max=80"`
	Email   string `json:"email" validate:"required,email"`
	Bio     string `json:"bio,omitempty" validate:"max=500"`
	Address string `json:"address,omitempty" validate:"max=200"`
	Photo   string `json:"photo,omitempty"`
}

// LoginResponse is the backend's answer to a session sync.
type LoginResponse struct {
	Token string `json:"token,omitempty"`
	Role  string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=user creator admin"`
}

type winnerRequest struct {
	SubmissionID string `json:"submissionId" validate:"required"`
}

var validate = validator.New()

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
