package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Martian-dev/brain-connectors/internal/access"
	"github.com/Martian-dev/brain-connectors/internal/auth"
	"github.com/Martian-dev/brain-connectors/internal/events"
	"github.com/Martian-dev/brain-connectors/internal/models"
)

type signUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type channelRequest struct {
	Name          string                `json:"name" binding:"required"`
	Description   string                `json:"description"`
	AccessControl *models.AccessControl `json:"access_control"`
}

type messageRequest struct {
	Content  string         `json:"content" binding:"required"`
	ParentID *string        `json:"parent_id"`
	Data     map[string]any `json:"data"`
	Meta     map[string]any `json:"meta"`
}

func (s *Server) signUp(c *gin.Context) {
	if s.Signer == nil {
		abort(c, http.StatusForbidden, "Local accounts are disabled")
		return
	}
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.Auth.CreateUser(c.Request.Context(), req.Email, req.Name, req.Password)
	if errors.Is(err, auth.ErrEmailTaken) {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	s.issueToken(c, http.StatusCreated, user)
}

func (s *Server) signIn(c *gin.Context) {
	if s.Signer == nil {
		abort(c, http.StatusForbidden, "Local accounts are disabled")
		return
	}
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.Auth.ValidateUser(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		abort(c, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	s.issueToken(c, http.StatusOK, user)
}

func (s *Server) issueToken(c *gin.Context, status int, user *models.User) {
	token, err := s.Signer.Issue(user)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(status, gin.H{"token": token, "token_type": "Bearer", "user": user})
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, auth.CurrentUser(c))
}

func (s *Server) createChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	channel, err := s.Store.InsertChannel(c.Request.Context(), auth.CurrentUser(c).ID, req.Name, req.Description, req.AccessControl)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, channel)
}

func (s *Server) loadChannel(c *gin.Context, permission access.Permission) *models.Channel {
	channel, err := s.Store.GetChannel(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return nil
	}
	if channel == nil {
		abort(c, http.StatusNotFound, errNotFound)
		return nil
	}
	if !s.authorize(c, channel.UserID, permission, channel.AccessControl) {
		return nil
	}
	return channel
}

func (s *Server) getChannel(c *gin.Context) {
	if channel := s.loadChannel(c, access.Read); channel != nil {
		c.JSON(http.StatusOK, channel)
	}
}

func (s *Server) listMessages(c *gin.Context) {
	channel := s.loadChannel(c, access.Read)
	if channel == nil {
		return
	}
	skip, limit := pagination(c, 50)
	messages, err := s.Store.ListMessages(c.Request.Context(), channel.ID, skip, limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	channel := s.loadChannel(c, access.Write)
	if channel == nil {
		return
	}
	ctx := c.Request.Context()
	user := auth.CurrentUser(c)

	msg, err := s.Store.InsertMessage(ctx, channel.ID, user.ID, models.MessageForm{
		Content:  req.Content,
		ParentID: req.ParentID,
		Data:     req.Data,
		Meta:     req.Meta,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	if err := s.Emitter.EmitMessage(ctx, events.TypeMessage, msg, user); err != nil {
		log.Printf("[api] failed to emit message %s: %v", msg.ID, err)
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) createKnowledge(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	k, err := s.Store.InsertKnowledge(c.Request.Context(), auth.CurrentUser(c).ID, req.Name, req.Description, req.AccessControl)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

func (s *Server) loadKnowledge(c *gin.Context) *models.Knowledge {
	k, err := s.Store.GetKnowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return nil
	}
	if k == nil {
		abort(c, http.StatusNotFound, errNotFound)
		return nil
	}
	if !s.authorize(c, k.UserID, access.Read, k.AccessControl) {
		return nil
	}
	return k
}

func (s *Server) getKnowledge(c *gin.Context) {
	if k := s.loadKnowledge(c); k != nil {
		c.JSON(http.StatusOK, k)
	}
}

func (s *Server) listKnowledgeSyncs(c *gin.Context) {
	k := s.loadKnowledge(c)
	if k == nil {
		return
	}
	syncs, err := s.Store.ListSyncsByKnowledge(c.Request.Context(), k.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncs)
}

func (s *Server) getFile(c *gin.Context) {
	file, err := s.Store.GetFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return
	}
	if file == nil {
		abort(c, http.StatusNotFound, errNotFound)
		return
	}
	user := auth.CurrentUser(c)
	if file.UserID != user.ID && !user.IsAdmin() {
		abort(c, http.StatusForbidden, errUnauthorized)
		return
	}
	c.JSON(http.StatusOK, file)
}
