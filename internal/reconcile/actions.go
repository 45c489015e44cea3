package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/api"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

// ActionKind is the backend call an action resolved to.
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionReject  ActionKind = "reject"
	ActionVote    ActionKind = "vote"
)

// PendingAction is a mutation that has been issued and not yet answered.
// Every retry of the action resends the same Nonce.
type PendingAction struct {
	QueryID  int64
	Kind     ActionKind
	Vote     model.Vote
	Nonce    string
	IssuedAt time.Time
}

// Approve approves query id, or votes to approve it when the signed-in user
// is a peer.
func (r *Reconciler) Approve(ctx context.Context, id int64) error {
	return r.decide(ctx, id, true)
}

// Reject rejects query id, or votes to reject it when the signed-in user is
// a peer.
func (r *Reconciler) Reject(ctx context.Context, id int64) error {
	return r.decide(ctx, id, false)
}

type actionCall func(context.Context, api.ActionRequest) (*api.ActionResult, error)

func (r *Reconciler) decide(ctx context.Context, id int64, approve bool) error {
	epoch := r.currentEpoch()
	user := r.session.User()
	peer := user != nil && user.Role == model.RolePeer

	pa := PendingAction{QueryID: id, Nonce: uuid.NewString(), IssuedAt: r.clock.Now()}
	var (
		call    actionCall
		success string
	)
	switch {
	case peer && approve:
		pa.Kind, pa.Vote, call, success = ActionVote, model.VoteApprove, r.api.Vote, "Vote cast: Approve"
	case peer:
		pa.Kind, pa.Vote, call, success = ActionVote, model.VoteReject, r.api.Vote, "Vote cast: Reject"
	case approve:
		pa.Kind, call, success = ActionApprove, r.api.Approve, "Query approved"
	default:
		pa.Kind, call, success = ActionReject, r.api.Reject, "Query rejected"
	}

	entry := TimelineEntry{Kind: EntryApproved, Title: "Query Approved", Detail: fmt.Sprintf("You approved query #%d", id), Local: true}
	failure := "Failed to approve query"
	if !approve {
		entry = TimelineEntry{Kind: EntryRejected, Title: "Query Rejected", Detail: fmt.Sprintf("You rejected query #%d", id), Local: true}
		failure = "Failed to reject query"
	}

	r.track(pa)
	defer r.untrack(pa.Nonce)

	req := api.NewActionRequest(pa.QueryID, pa.Vote, pa.Nonce, pa.IssuedAt)
	_, err := r.submit(ctx, call, req)

	// The answer belongs to the session that sent it.
	r.mu.Lock()
	live := r.liveLocked(epoch)
	onQueries := r.page == PageQueries
	r.mu.Unlock()
	if !live {
		r.logger.Info("action answered after sign-out", zap.String("kind", string(pa.Kind)),
			zap.Int64("query", id), zap.String("nonce", pa.Nonce), zap.Error(err))
		return err
	}
	if err != nil {
		r.logger.Warn("action failed", zap.String("kind", string(pa.Kind)), zap.Int64("query", id),
			zap.String("nonce", pa.Nonce), zap.Error(err))
		r.notify(event.LevelError, failureMessage(err, failure))
		return err
	}

	r.notify(event.LevelSuccess, success)
	if !peer {
		status := model.StatusRejected
		if approve {
			status = model.StatusApproved
		}
		r.decided(epoch, id, status)
	}
	r.addTimeline(epoch, entry)

	r.loadPending()
	r.loadMetrics()
	if onQueries {
		r.loadQueries()
	}
	return nil
}

// submit sends req, resending it with the same nonce while the failure is
// transient. API verdicts end the attempt immediately.
func (r *Reconciler) submit(ctx context.Context, call actionCall, req api.ActionRequest) (*api.ActionResult, error) {
	op := func() (*api.ActionResult, error) {
		res, err := call(ctx, req)
		if err != nil && !api.Transient(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInterval
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.ActionRetries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if r.metrics != nil {
				r.metrics.ActionRetry()
			}
			r.logger.Info("retrying action", zap.String("nonce", req.Nonce), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
}

func (r *Reconciler) track(pa PendingAction) {
	r.mu.Lock()
	r.inflight[pa.Nonce] = pa
	r.mu.Unlock()
	r.changed(event.SectionInFlight)
}

func (r *Reconciler) untrack(nonce string) {
	r.mu.Lock()
	delete(r.inflight, nonce)
	r.mu.Unlock()
	r.changed(event.SectionInFlight)
}

// failureMessage prefers the backend's own error text.
func failureMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// VoteStatus returns the vote tally for id. Tallies are cached briefly and
// dropped when a vote on the same query is pushed.
func (r *Reconciler) VoteStatus(ctx context.Context, id int64) (*model.VoteStatus, error) {
	key := voteKey(id)
	if v, ok := r.votes.Get(key); ok {
		vs := v.(model.VoteStatus)
		return &vs, nil
	}
	epoch := r.currentEpoch()
	vs, err := r.api.VoteStatus(ctx, id)
	if err != nil {
		r.notify(event.LevelError, "Failed to load vote status")
		return nil, err
	}
	r.mu.Lock()
	live := r.liveLocked(epoch)
	r.mu.Unlock()
	if live {
		r.votes.SetDefault(key, *vs)
	}
	return vs, nil
}

// CreateUser adds an operator account and reloads the user list.
func (r *Reconciler) CreateUser(ctx context.Context, username, password string, role model.Role) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	if role != model.RoleAdmin {
		role = model.RolePeer
	}
	if _, err := r.api.CreateUser(ctx, api.NewUser{Username: username, Password: password, Role: role}); err != nil {
		r.notify(event.LevelError, failureMessage(err, "Failed to create user"))
		return err
	}
	r.notify(event.LevelSuccess, fmt.Sprintf("User %q created", username))
	r.loadUsers()
	return nil
}

// DeleteUser removes an operator account. The signed-in user cannot delete
// their own account.
func (r *Reconciler) DeleteUser(ctx context.Context, id int64, username string) error {
	if me := r.session.User(); me != nil && me.Username == username {
		r.notify(event.LevelWarning, "Cannot delete yourself")
		return ErrDeleteSelf
	}
	if err := r.api.DeleteUser(ctx, id); err != nil {
		r.notify(event.LevelError, failureMessage(err, "Failed to delete user"))
		return err
	}
	r.notify(event.LevelSuccess, fmt.Sprintf("User %q deleted", username))
	r.loadUsers()
	return nil
}

// UpdateConfig submits a proxy configuration change and reloads the
// settings.
func (r *Reconciler) UpdateConfig(ctx context.Context, cfg model.ProxyConfig) error {
	res, err := r.api.UpdateConfig(ctx, cfg)
	if err != nil {
		r.notify(event.LevelError, failureMessage(err, "Failed to update configuration"))
		return err
	}
	msg := "Configuration updated"
	if res != nil && res.Message != "" {
		msg = res.Message
	}
	level := event.LevelSuccess
	if res != nil && !res.OK {
		level = event.LevelWarning
	}
	r.notify(level, msg)
	r.loadConfig()
	return nil
}
