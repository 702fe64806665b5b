package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Martian-dev/brain-connectors/internal/access"
	"github.com/Martian-dev/brain-connectors/internal/auth"
	"github.com/Martian-dev/brain-connectors/internal/models"
)

const cancelledByUser = "Sync was cancelled by user"

type syncUpdateRequest struct {
	Name          *string               `json:"name"`
	AccessControl *models.AccessControl `json:"access_control"`
}

type syncExecuteRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

type folderRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
	Endpoint    string `json:"endpoint" binding:"required"`
	DriveID     string `json:"drive_id" binding:"required"`
	ItemID      string `json:"item_id" binding:"required"`
}

func (s *Server) listSyncs(c *gin.Context) {
	syncs, err := s.Store.ListSyncs(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	visible := make([]*models.SharePointSync, 0, len(syncs))
	for _, sync := range syncs {
		ok, err := s.canAccess(c, sync.UserID, access.Read, sync.AccessControl)
		if err != nil {
			internalError(c, err)
			return
		}
		if ok {
			visible = append(visible, sync)
		}
	}
	c.JSON(http.StatusOK, visible)
}

// loadSync fetches the :id sync and checks permission, writing the error
// response on failure
func (s *Server) loadSync(c *gin.Context, permission access.Permission) *models.SharePointSync {
	sync, err := s.Store.GetSync(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return nil
	}
	if sync == nil {
		abort(c, http.StatusNotFound, errNotFound)
		return nil
	}
	if !s.authorize(c, sync.UserID, permission, sync.AccessControl) {
		return nil
	}
	return sync
}

func (s *Server) getSync(c *gin.Context) {
	if sync := s.loadSync(c, access.Read); sync != nil {
		c.JSON(http.StatusOK, sync)
	}
}

func (s *Server) syncStatus(c *gin.Context) {
	if sync := s.loadSync(c, access.Read); sync != nil {
		c.JSON(http.StatusOK, sync)
	}
}

func (s *Server) createSync(c *gin.Context) {
	var form models.SharePointSyncForm
	if err := c.ShouldBindJSON(&form); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	user := auth.CurrentUser(c)

	knowledge, err := s.Store.GetKnowledge(ctx, form.KnowledgeID)
	if err != nil {
		internalError(c, err)
		return
	}
	if knowledge == nil {
		abort(c, http.StatusNotFound, "Knowledge base not found")
		return
	}
	if knowledge.UserID != user.ID && !user.IsAdmin() {
		abort(c, http.StatusForbidden, errUnauthorized)
		return
	}

	sync, err := s.Store.InsertSync(ctx, user.ID, form)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sync)
}

func (s *Server) updateSync(c *gin.Context) {
	var req syncUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	user := auth.CurrentUser(c)

	sync, err := s.Store.GetSync(ctx, c.Param("id"))
	if err != nil {
		internalError(c, err)
		return
	}
	if sync == nil {
		abort(c, http.StatusNotFound, errNotFound)
		return
	}
	// access control changes are reserved to the owner
	if sync.UserID != user.ID && !user.IsAdmin() {
		abort(c, http.StatusForbidden, errUnauthorized)
		return
	}

	updated, err := s.Store.UpdateSync(ctx, sync.ID, models.SharePointSyncUpdate{
		Name:          req.Name,
		AccessControl: req.AccessControl,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) cancelSync(c *gin.Context) {
	sync := s.loadSync(c, access.Write)
	if sync == nil {
		return
	}

	status, msg := models.SyncStatusCancelled, cancelledByUser
	cancelled, err := s.Store.UpdateSyncIfStatus(c.Request.Context(), sync.ID, models.SyncStatusSyncing,
		models.SharePointSyncUpdate{SyncStatus: &status, SyncError: &msg})
	if err != nil {
		internalError(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusOK, gin.H{"status": false, "message": "Sync is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": true, "message": "Sync cancelled"})
}

func (s *Server) deleteSync(c *gin.Context) {
	sync := s.loadSync(c, access.Write)
	if sync == nil {
		return
	}

	deleted, err := s.Store.DeleteSync(c.Request.Context(), sync.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	if !deleted {
		abort(c, http.StatusInternalServerError, "Failed to delete SharePoint sync")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": true})
}

func (s *Server) executeSync(c *gin.Context) {
	var req syncExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	sync := s.loadSync(c, access.Write)
	if sync == nil {
		return
	}

	started, err := s.Syncs.Trigger(c.Request.Context(), sync, auth.CurrentUser(c).ID, req.AccessToken)
	if err != nil {
		internalError(c, err)
		return
	}

	message, status := "Sync started in background", models.SyncStatusSyncing
	if !started {
		message = "Sync already in progress"
		current, err := s.Store.GetSync(c.Request.Context(), sync.ID)
		if err != nil {
			internalError(c, err)
			return
		}
		if current != nil {
			status = current.SyncStatus
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      true,
		"message":     message,
		"sync_status": status,
	})
}

func (s *Server) listFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	files, err := s.Connect(req.AccessToken).ListFolder(c.Request.Context(), req.Endpoint, req.DriveID, req.ItemID)
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

func (s *Server) resolveFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.Connect(req.AccessToken).ResolveFolder(c.Request.Context(), req.Endpoint, req.DriveID, req.ItemID)
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, info)
}
