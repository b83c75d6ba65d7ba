package contests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/contesthub-client/pkg/auth"
	"github.com/Sternrassler/contesthub-client/pkg/client"
	"github.com/Sternrassler/contesthub-client/pkg/logging"
	"github.com/rs/zerolog"
)

// Invalidator drops cached list pages of a resource. *pagination.Coordinator
// and every pagination.Store implement it.
type Invalidator interface {
	Invalidate(ctx context.Context, resource string) error
}

// LoginRequest is the session sync body.
type LoginRequest struct {
	Username string `json:"username"`
	UID      string `json:"uid" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	PhotoURL string `json:"photoURL,omitempty"`
	Role     string `json:"role" validate:"required,oneof=user creator admin"`
}

// API wraps the backend's non-list endpoints.
type API struct {
	client      *client.Client
	invalidator Invalidator
	logger      zerolog.Logger
}

// New creates an API. inv may be nil when no list pages are cached.
func New(c *client.Client, inv Invalidator) *API {
	return &API{
		client:      c,
		invalidator: inv,
		logger:      logging.NewLogger("contests"),
	}
}

// Login installs id in session, syncs it with the backend and installs the
// token and role the backend returns. When the sync fails the identity stays
// installed with the plain user role.
func (a *API) Login(ctx context.Context, session *auth.Session, id auth.Identity) (*LoginResponse, error) {
	if id.Role == "" {
		id.Role = RoleUser
	}
	req := LoginRequest{
		Username: id.Username,
		UID:      id.UID,
		Email:    id.Email,
		PhotoURL: id.PhotoURL,
		Role:     id.Role,
	}
	if err := check(req); err != nil {
		return nil, err
	}

	id.Token = ""
	session.Set(&id)

	var resp LoginResponse
	if err := a.client.PostJSON(ctx, "/api/auth/login", req, &resp); err != nil {
		a.logger.Error().Err(err).Str("uid", id.UID).Msg("Backend session sync failed")
		id.Role = RoleUser
		session.Set(&id)
		return nil, fmt.Errorf("login: %w", err)
	}

	if resp.Token != "" {
		id.Token = resp.Token
	}
	id.Role = resp.Role
	if id.Role == "" {
		id.Role = RoleUser
	}
	session.Set(&id)

	a.logger.Info().Str("uid", id.UID).Str("role", id.Role).Msg("Session synced")
	return &resp, nil
}

// Logout ends the backend session and clears the local one, even when the
// backend call fails.
func (a *API) Logout(ctx context.Context, session *auth.Session) error {
	err := a.client.PostJSON(ctx, "/api/auth/logout", nil, nil)
	session.Set(nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// GetContest returns one contest.
func (a *API) GetContest(ctx context.Context, id string) (*Contest, error) {
	var c Contest
	if err := a.client.GetJSON(ctx, contestPath(id), nil, &c); err != nil {
		return nil, fmt.Errorf("get contest %s: %w", id, err)
	}
	return &c, nil
}

// CreateContest uploads a new contest. image is optional.
func (a *API) CreateContest(ctx context.Context, nc NewContest, image *Image) (*Contest, error) {
	if err := check(nc); err != nil {
		return nil, err
	}

	var c Contest
	if err := a.client.PostForm(ctx, "/api/creator/create", contestFields(nc), imageFiles("image", image), &c); err != nil {
		return nil, fmt.Errorf("create contest: %w", err)
	}
	a.invalidate(ctx, ResourceContests, ResourceCreatorContests)
	return &c, nil
}

// UpdateContest replaces the editable fields of a contest. image is optional.
func (a *API) UpdateContest(ctx context.Context, id string, nc NewContest, image *Image) (*Contest, error) {
	if err := check(nc); err != nil {
		return nil, err
	}

	var c Contest
	if err := a.client.PutForm(ctx, contestPath(id), contestFields(nc), imageFiles("image", image), &c); err != nil {
		return nil, fmt.Errorf("update contest %s: %w", id, err)
	}
	a.invalidate(ctx, ResourceContests, ResourceCreatorContests)
	return &c, nil
}

// DeleteContest removes a contest.
func (a *API) DeleteContest(ctx context.Context, id string) error {
	if err := a.client.Delete(ctx, contestPath(id)); err != nil {
		return fmt.Errorf("delete contest %s: %w", id, err)
	}
	a.invalidate(ctx, ResourceContests, ResourceCreatorContests)
	return nil
}

// SetContestStatus confirms or rejects a pending contest.
func (a *API) SetContestStatus(ctx context.Context, id, status string) error {
	switch status {
	case StatusPending, StatusConfirmed, StatusRejected:
	default:
		return fmt.Errorf("%w: unknown contest status %q", ErrInvalidRequest, status)
	}
	body := map[string]string{"status": status}
	if err := a.client.PutJSON(ctx, "/api/admin/contests/"+url.PathEscape(id)+"/status", body, nil); err != nil {
		return fmt.Errorf("set contest %s status: %w", id, err)
	}
	a.invalidate(ctx, ResourceContests, ResourceCreatorContests)
	return nil
}

// SubmitTask sends a participant's entry for a contest.
func (a *API) SubmitTask(ctx context.Context, contestID, text string) (*Submission, error) {
	sub := Submission{ContestID: contestID, Submission: text}
	if err := check(sub); err != nil {
		return nil, err
	}

	var out Submission
	if err := a.client.PostJSON(ctx, contestPath(contestID)+"/submissions", sub, &out); err != nil {
		return nil, fmt.Errorf("submit task for %s: %w", contestID, err)
	}
	a.invalidate(ctx, ResourceCreatorSubmissions)
	return &out, nil
}

// DeclareWinner marks a submission as the contest winner.
func (a *API) DeclareWinner(ctx context.Context, contestID, submissionID string) error {
	req := winnerRequest{SubmissionID: submissionID}
	if err := check(req); err != nil {
		return err
	}
	path := "/api/creator/contests/" + url.PathEscape(contestID) + "/winner"
	if err := a.client.PostJSON(ctx, path, req, nil); err != nil {
		return fmt.Errorf("declare winner of %s: %w", contestID, err)
	}
	a.invalidate(ctx, ResourceContests, ResourceCreatorContests, ResourceCreatorSubmissions)
	return nil
}

// UpdateUserRole changes a user's role and refreshes the admin user list.
func (a *API) UpdateUserRole(ctx context.Context, userID, role string) error {
	req := roleRequest{Role: role}
	if err := check(req); err != nil {
		return err
	}
	path := ResourceAdminUsers + "/" + url.PathEscape(userID) + "/role"
	if err := a.client.PutJSON(ctx, path, req, nil); err != nil {
		return fmt.Errorf("update role of %s: %w", userID, err)
	}
	a.invalidate(ctx, ResourceAdminUsers)
	return nil
}

// GetProfile returns the profile of uid.
func (a *API) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	var p Profile
	if err := a.client.GetJSON(ctx, profilePath(uid), nil, &p); err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return &p, nil
}

// UpdateProfile saves the profile of uid. photo is optional.
func (a *API) UpdateProfile(ctx context.Context, uid string, p Profile, photo *Image) (*Profile, error) {
	if err := check(p); err != nil {
		return nil, err
	}

	fields := [][2]string{
		{"name", p.Name},
		{"email", p.Email},
		{"bio", p.Bio},
		{"address", p.Address},
	}
	var out Profile
	if err := a.client.PutForm(ctx, profilePath(uid), fields, imageFiles("photo", photo), &out); err != nil {
		return nil, fmt.Errorf("update profile %s: %w", uid, err)
	}
	return &out, nil
}

// Leaderboard returns the public leaderboard. Both the {"data": [...]} form
// and a bare array are accepted.
func (a *API) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var raw json.RawMessage
	if err := a.client.GetJSON(ctx, ResourceLeaderboard, nil, &raw); err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	var entries []LeaderboardEntry
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode leaderboard: %w", err)
		}
		return entries, nil
	}

	var env struct {
		Data []LeaderboardEntry `json:"data"`
	}
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode leaderboard: %w", err)
		}
	}
	return env.Data, nil
}

func (a *API) invalidate(ctx context.Context, resources ...string) {
	if a.invalidator == nil {
		return
	}
	for _, r := range resources {
		if err := a.invalidator.Invalidate(ctx, r); err != nil {
			a.logger.Warn().Err(err).Str("resource", r).Msg("Failed to invalidate cached list")
		}
	}
}

func contestPath(id string) string {
	return ResourceContests + "/" + url.PathEscape(id)
}

func profilePath(uid string) string {
	return "/api/users/" + url.PathEscape(uid) + "/profile"
}

func contestFields(nc NewContest) [][2]string {
	return [][2]string{
		{"name", nc.Name},
		{"price", strconv.FormatFloat(nc.Price, 'f', -1, 64)},
		{"prizeMoney", strconv.FormatFloat(nc.PrizeMoney, 'f', -1, 64)},
		{"type", nc.Type},
		{"deadline", nc.Deadline},
		{"description", nc.Description},
		{"taskInstruction", nc.TaskInstruction},
	}
}

func imageFiles(field string, img *Image) []client.FormFile {
	if img == nil || len(img.Data) == 0 {
		return nil
	}
	return []client.FormFile{{
		Field:    field,
		Filename: img.Filename,
		Content:  bytes.NewReader(img.Data),
	}}
}
