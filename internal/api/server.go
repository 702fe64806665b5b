package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Martian-dev/brain-connectors/internal/access"
	"github.com/Martian-dev/brain-connectors/internal/auth"
	"github.com/Martian-dev/brain-connectors/internal/emails"
	"github.com/Martian-dev/brain-connectors/internal/events"
	"github.com/Martian-dev/brain-connectors/internal/models"
	"github.com/Martian-dev/brain-connectors/internal/sharepoint"
	"github.com/Martian-dev/brain-connectors/internal/store/sqlite"
	"github.com/Martian-dev/brain-connectors/internal/sync"
)

const (
	errNotFound     = "We could not find what you're looking for :/"
	errUnauthorized = "401 Unauthorized"
)

// Server holds the dependencies of the HTTP handlers
type Server struct {
	Store    *sqlite.Store
	Auth     *auth.AuthService
	Verifier auth.Verifier
	// Signer issues tokens on sign-in. Nil when tokens come from an
	// external provider, which disables local sign-in.
	Signer  *auth.HMACSigner
	Syncs   *sync.Manager
	Emails  *emails.Service
	Emitter *events.Emitter
	// Connect builds a document-store client for a caller's token
	Connect       func(accessToken string) *sharepoint.Client
	PublicBaseURL string
}

// Router builds the gin engine serving every route
func (s *Server) Router() *gin.Engine {
	if s.Connect == nil {
		s.Connect = func(accessToken string) *sharepoint.Client {
			return sharepoint.NewClient(accessToken)
		}
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": true})
	})

	v1 := r.Group("/api/v1")

	auths := v1.Group("/auths")
	auths.POST("/signup", s.signUp)
	auths.POST("/signin", s.signIn)

	// Power Automate posts here without a user token
	v1.POST("/emails/webhook/:token", s.receiveWebhook)

	authorized := v1.Group("/")
	authorized.Use(auth.Middleware(s.Verifier, s.Auth))

	authorized.GET("/auths", s.me)

	channels := authorized.Group("/channels")
	channels.POST("/create", s.createChannel)
	channels.GET("/:id", s.getChannel)
	channels.GET("/:id/messages", s.listMessages)
	channels.POST("/:id/messages/post", s.postMessage)

	knowledge := authorized.Group("/knowledge")
	knowledge.POST("/create", s.createKnowledge)
	knowledge.GET("/:id", s.getKnowledge)
	knowledge.GET("/:id/sharepoint", s.listKnowledgeSyncs)

	authorized.GET("/files/:id", s.getFile)

	sp := authorized.Group("/sharepoint")
	sp.GET("/", s.listSyncs)
	sp.POST("/create", s.createSync)
	sp.POST("/list-folder", s.listFolder)
	sp.POST("/resolve-folder", s.resolveFolder)
	sp.GET("/:id", s.getSync)
	sp.POST("/:id/update", s.updateSync)
	sp.POST("/:id/cancel", s.cancelSync)
	sp.DELETE("/:id", s.deleteSync)
	sp.POST("/:id/sync", s.executeSync)
	sp.GET("/:id/status", s.syncStatus)

	mail := authorized.Group("/emails")
	mail.GET("/", s.listMailboxes)
	mail.POST("/create", s.createMailbox)
	mail.GET("/:id", s.getMailbox)
	mail.POST("/:id/update", s.updateMailbox)
	mail.POST("/:id/regenerate-token", s.regenerateToken)
	mail.DELETE("/:id/delete", s.deleteMailbox)
	mail.GET("/:id/emails", s.listMailboxEmails)
	mail.GET("/:id/webhook-info", s.webhookInfo)

	return r
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func internalError(c *gin.Context, err error) {
	log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	abort(c, http.StatusInternalServerError, err.Error())
}

// canAccess checks owner, admin, then ac against the caller's groups
func (s *Server) canAccess(c *gin.Context, ownerID string, permission access.Permission, ac *models.AccessControl) (bool, error) {
	user := auth.CurrentUser(c)
	if user == nil {
		return false, nil
	}
	if user.ID == ownerID || user.IsAdmin() {
		return true, nil
	}
	groupIDs, err := s.Store.GroupIDsForUser(c.Request.Context(), user.ID)
	if err != nil {
		return false, err
	}
	return access.CanAccess(user, ownerID, permission, ac, groupIDs), nil
}

// authorize writes the error response and reports false when the caller
// lacks permission
func (s *Server) authorize(c *gin.Context, ownerID string, permission access.Permission, ac *models.AccessControl) bool {
	ok, err := s.canAccess(c, ownerID, permission, ac)
	if err != nil {
		internalError(c, err)
		return false
	}
	if !ok {
		abort(c, http.StatusForbidden, errUnauthorized)
		return false
	}
	return true
}

func pagination(c *gin.Context, defaultLimit int) (skip, limit int) {
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if skip < 0 {
		skip = 0
	}
	return skip, limit
}
