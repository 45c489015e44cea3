package app

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gautamrajesh007/Interceptor/internal/api"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/reconcile"
	"github.com/gautamrajesh007/Interceptor/internal/views/dashboard"
)

// Console is the reconciler surface the TUI drives. Methods that talk to
// the backend are only ever called from commands, off the update loop.
type Console interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Navigate(page reconcile.Page)
	Refresh(ctx context.Context) error
	SearchAudit(text string)
	SetQueryFilter(filter string)
	Snapshot() reconcile.State
	Approve(ctx context.Context, id int64) error
	Reject(ctx context.Context, id int64) error
	VoteStatus(ctx context.Context, id int64) (*model.VoteStatus, error)
	CreateUser(ctx context.Context, username, password string, role model.Role) error
	DeleteUser(ctx context.Context, id int64, username string) error
	UpdateConfig(ctx context.Context, cfg model.ProxyConfig) error
}

const noticeTTL = 4 * time.Second

type (
	loginDoneMsg  struct{ err error }
	logoutDoneMsg struct{ err error }
	actionDoneMsg struct {
		id  int64
		err error
	}
	voteStatusMsg struct {
		id     int64
		status *model.VoteStatus
		err    error
	}
	userDoneMsg    struct{ err error }
	configDoneMsg  struct{ err error }
	refreshDoneMsg struct{ err error }
	frameMsg       struct{}
	noticeTimeout  struct{ seq int }
)

func loginCmd(ctx context.Context, c Console, username, password string) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{err: c.Login(ctx, username, password)}
	}
}

func logoutCmd(ctx context.Context, c Console) tea.Cmd {
	return func() tea.Msg {
		return logoutDoneMsg{err: c.Logout(ctx)}
	}
}

func decideCmd(ctx context.Context, c Console, id int64, approve bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if approve {
			err = c.Approve(ctx, id)
		} else {
			err = c.Reject(ctx, id)
		}
		return actionDoneMsg{id: id, err: err}
	}
}

func voteStatusCmd(ctx context.Context, c Console, id int64) tea.Cmd {
	return func() tea.Msg {
		vs, err := c.VoteStatus(ctx, id)
		return voteStatusMsg{id: id, status: vs, err: err}
	}
}

func createUserCmd(ctx context.Context, c Console, username, password string, role model.Role) tea.Cmd {
	return func() tea.Msg {
		return userDoneMsg{err: c.CreateUser(ctx, username, password, role)}
	}
}

func deleteUserCmd(ctx context.Context, c Console, u model.User) tea.Cmd {
	return func() tea.Msg {
		return userDoneMsg{err: c.DeleteUser(ctx, u.ID, u.Username)}
	}
}

func updateConfigCmd(ctx context.Context, c Console, cfg model.ProxyConfig) tea.Cmd {
	return func() tea.Msg {
		return configDoneMsg{err: c.UpdateConfig(ctx, cfg)}
	}
}

func refreshCmd(ctx context.Context, c Console) tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{err: c.Refresh(ctx)}
	}
}

func frameCmd() tea.Cmd {
	return tea.Tick(dashboard.FrameInterval, func(time.Time) tea.Msg { return frameMsg{} })
}

func noticeTimeoutCmd(seq int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeTimeout{seq: seq} })
}

// failureText prefers the backend's own error text.
func failureText(err error, fallback string) string {
	var apiErr *api.Error
	switch {
	case errors.Is(err, reconcile.ErrMissingCredentials):
		return "Username and password are required"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	}
	return fallback
}

// loginError turns a failed sign-in into the text shown under the form.
func loginError(err error) string {
	if api.IsUnauthorized(err) {
		return failureText(err, "Invalid credentials")
	}
	return failureText(err, "Cannot reach the server")
}
