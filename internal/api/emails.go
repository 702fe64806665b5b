package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Martian-dev/brain-connectors/internal/access"
	"github.com/Martian-dev/brain-connectors/internal/auth"
	"github.com/Martian-dev/brain-connectors/internal/emails"
	"github.com/Martian-dev/brain-connectors/internal/models"
)

func (s *Server) listMailboxes(c *gin.Context) {
	ctx := c.Request.Context()
	user := auth.CurrentUser(c)

	var (
		mailboxes []*models.EmailMailbox
		err       error
	)
	if user.IsAdmin() {
		mailboxes, err = s.Store.ListMailboxes(ctx)
	} else {
		mailboxes, err = s.Store.ListMailboxesForUser(ctx, user.ID)
	}
	if err != nil {
		internalError(c, err)
		return
	}

	result := make([]models.EmailMailboxResponse, 0, len(mailboxes))
	for _, m := range mailboxes {
		resp, err := s.mailboxResponse(c, m)
		if err != nil {
			internalError(c, err)
			return
		}
		result = append(result, resp)
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) mailboxResponse(c *gin.Context, m *models.EmailMailbox) (models.EmailMailboxResponse, error) {
	resp := models.EmailMailboxResponse{EmailMailbox: *m}
	channel, err := s.Store.GetChannel(c.Request.Context(), m.ChannelID)
	if err != nil {
		return resp, err
	}
	if channel != nil {
		resp.ChannelName = &channel.Name
	}
	return resp, nil
}

func (s *Server) createMailbox(c *gin.Context) {
	var form models.EmailMailboxForm
	if err := c.ShouldBindJSON(&form); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	channel, err := s.Store.GetChannel(ctx, form.ChannelID)
	if err != nil {
		internalError(c, err)
		return
	}
	if channel == nil {
		abort(c, http.StatusNotFound, "Channel not found")
		return
	}

	existing, err := s.Store.GetMailboxByChannel(ctx, form.ChannelID)
	if err != nil {
		internalError(c, err)
		return
	}
	if existing != nil {
		abort(c, http.StatusBadRequest, "A mailbox already exists for this channel")
		return
	}

	mailbox, err := s.Store.InsertMailbox(ctx, auth.CurrentUser(c).ID, form)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, mailbox)
}

func (s *Server) loadMailbox(c *gin.Context, permission access.Permission) *models.EmailMailbox {
	mailbox, err := s.Store.GetMailbox(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return nil
	}
	if mailbox == nil {
		abort(c, http.StatusNotFound, errNotFound)
		return nil
	}
	if !s.authorize(c, mailbox.UserID, permission, mailbox.AccessControl) {
		return nil
	}
	return mailbox
}

func (s *Server) getMailbox(c *gin.Context) {
	mailbox := s.loadMailbox(c, access.Read)
	if mailbox == nil {
		return
	}
	resp, err := s.mailboxResponse(c, mailbox)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) updateMailbox(c *gin.Context) {
	var form models.EmailMailboxUpdateForm
	if err := c.ShouldBindJSON(&form); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	mailbox := s.loadMailbox(c, access.Write)
	if mailbox == nil {
		return
	}

	updated, err := s.Store.UpdateMailbox(c.Request.Context(), mailbox.ID, form)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) regenerateToken(c *gin.Context) {
	mailbox := s.loadMailbox(c, access.Write)
	if mailbox == nil {
		return
	}

	token, err := s.Store.RegenerateWebhookToken(c.Request.Context(), mailbox.ID)
	if err != nil || token == "" {
		if err != nil {
			log.Printf("[emails] failed to regenerate token for %s: %v", mailbox.ID, err)
		}
		abort(c, http.StatusBadRequest, "Failed to regenerate token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhook_token": token})
}

func (s *Server) deleteMailbox(c *gin.Context) {
	mailbox := s.loadMailbox(c, access.Write)
	if mailbox == nil {
		return
	}

	deleted, err := s.Store.DeleteMailbox(c.Request.Context(), mailbox.ID)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, deleted)
}

func (s *Server) listMailboxEmails(c *gin.Context) {
	ctx := c.Request.Context()
	user := auth.CurrentUser(c)

	mailbox, err := s.Store.GetMailbox(ctx, c.Param("id"))
	if err != nil {
		internalError(c, err)
		return
	}
	if mailbox == nil {
		abort(c, http.StatusNotFound, errNotFound)
		return
	}

	// non-owners need read access to the channel the mail is posted to
	if mailbox.UserID != user.ID && !user.IsAdmin() {
		channel, err := s.Store.GetChannel(ctx, mailbox.ChannelID)
		if err != nil {
			internalError(c, err)
			return
		}
		if channel == nil {
			abort(c, http.StatusForbidden, errUnauthorized)
			return
		}
		if !s.authorize(c, channel.UserID, access.Read, channel.AccessControl) {
			return
		}
	}

	skip, limit := pagination(c, 50)
	list, err := s.Store.ListEmailsByMailbox(ctx, mailbox.ID, skip, limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) webhookInfo(c *gin.Context) {
	mailbox := s.loadMailbox(c, access.Read)
	if mailbox == nil {
		return
	}
	c.JSON(http.StatusOK, emails.NewWebhookInfo(s.baseURL(c), mailbox))
}

// baseURL prefers the configured public URL over the request's host
func (s *Server) baseURL(c *gin.Context) string {
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

func (s *Server) receiveWebhook(c *gin.Context) {
	var in models.IncomingEmail
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.Emails.ReceiveWebhook(c.Request.Context(), c.Param("token"), &in)
	switch {
	case errors.Is(err, emails.ErrInvalidToken):
		abort(c, http.StatusNotFound, "Invalid webhook token or mailbox inactive")
	case errors.Is(err, emails.ErrChannelNotFound):
		abort(c, http.StatusNotFound, "Associated channel not found")
	case errors.Is(err, emails.ErrOwnerNotFound):
		abort(c, http.StatusNotFound, "Mailbox owner not found")
	case err != nil:
		internalError(c, err)
	default:
		c.JSON(http.StatusOK, result)
	}
}
