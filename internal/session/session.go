// Package session keeps the per-browser component state: the selected
// symptoms, the advice panel, the chat transcript and its sending guard.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/diagportal/internal/portal"
)

// CookieName carries the session id.
const CookieName = "diagportal_session"

type State struct {
	ID        string           `json:"id"`
	Catalog   []string         `json:"catalog,omitempty"`
	Selection portal.Selection `json:"selection"`
	Panel     portal.Panel     `json:"panel"`
	Chat      portal.Chat      `json:"chat"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// New returns the state of a fresh page load.
func New(id string) *State {
	return &State{ID: id, Chat: portal.NewChat()}
}

// Store persists State. Update runs fn with exclusive access to the
// session; when fn returns an error nothing is written.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Update(ctx context.Context, id string, fn func(*State) error) (*State, error)
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores that need expired sessions removed
// explicitly.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// BeginChat is the idle→sending transition. The user's message is added to
// the transcript as part of the same update, before anything is sent
// upstream. It returns the turn id EndChat must present, and fails with
// portal.ErrBusy while another turn of the same session is in flight.
func BeginChat(ctx context.Context, s Store, id string, stale time.Duration, message string) (string, error) {
	turn := uuid.NewString()
	_, err := s.Update(ctx, id, func(st *State) error {
		if err := st.Chat.Begin(time.Now(), stale, turn); err != nil {
			return err
		}
		st.Chat.Append(portal.RoleUser, message)
		return nil
	})
	if err != nil {
		return "", err
	}
	return turn, nil
}

// EndChat is the sending→idle transition, applying fn to the chat first.
// A turn that no longer owns the chat (the page was reloaded, or a stale
// takeover happened) gets portal.ErrTurnSuperseded and changes nothing.
func EndChat(ctx context.Context, s Store, id, turn string, fn func(*portal.Chat)) (*State, error) {
	return s.Update(ctx, id, func(st *State) error {
		if !st.Chat.Owns(turn) {
			return portal.ErrTurnSuperseded
		}
		if fn != nil {
			fn(&st.Chat)
		}
		st.Chat.End()
		return nil
	})
}

func encode(st *State) ([]byte, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	return b, nil
}

func decode(id string, b []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	st.ID = id
	return &st, nil
}
