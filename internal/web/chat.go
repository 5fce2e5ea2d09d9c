package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/diagportal/internal/portal"
	"github.com/Skufu/diagportal/internal/session"
	"github.com/Skufu/diagportal/internal/upstream"
)

const (
	messageKey = "chat_message"
	turnKey    = "chat_turn"
)

type chatView struct {
	Messages    []portal.Message
	Suggestions []string
	OOB         bool
}

func newChatView(chat portal.Chat) chatView {
	return chatView{Messages: chat.Transcript, Suggestions: chat.Suggestions}
}

func (h *Handler) chatActions() []action {
	return []action{
		{trigger: trigger{http.MethodPost, "/ui/chat"}, guard: h.chatIdle, effect: h.sendChat},
		// a suggestion chip sends its text as the message, without review
		{trigger: trigger{http.MethodPost, "/ui/chat/suggestion"}, guard: h.chatIdle, effect: h.sendChat},
	}
}

// chatIdle claims the session's chat for this request and records the
// user's message. An overlapping submit is refused before anything is sent
// upstream.
func (h *Handler) chatIdle(c *gin.Context) error {
	msg := strings.TrimSpace(c.PostForm("message"))
	if msg == "" {
		msg = strings.TrimSpace(c.Query("text"))
	}
	if msg == "" {
		return errEmptyMessage
	}
	turn, err := session.BeginChat(c.Request.Context(), h.store, sessionID(c), h.chatStale, msg)
	if err != nil {
		return err
	}
	c.Set(messageKey, msg)
	c.Set(turnKey, turn)
	return nil
}

func (h *Handler) sendChat(c *gin.Context) {
	msg := c.GetString(messageKey)
	ctx := c.Request.Context()

	reply, callErr := h.backend.Chat(ctx, msg)
	if callErr != nil {
		if _, ok := upstream.IsServerError(callErr); !ok {
			h.logger.Error("chat turn", zap.String("session", sessionID(c)), zap.Error(callErr))
		}
	}

	var added []portal.Message
	// the guard must be released even when the client has gone away
	st, err := session.EndChat(context.WithoutCancel(ctx), h.store, sessionID(c), c.GetString(turnKey), func(chat *portal.Chat) {
		if callErr != nil {
			added = []portal.Message{chat.ApplyError(callErr)}
			return
		}
		added = chat.ApplyTurn(reply)
	})
	if errors.Is(err, portal.ErrTurnSuperseded) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.storeFailed(c, err)
		return
	}

	h.render(c, http.StatusOK, "chat-turn", chatView{
		Messages:    added,
		Suggestions: st.Chat.Suggestions,
		OOB:         true,
	})
}
