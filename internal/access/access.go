package access

import (
	"slices"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// Permission is the kind of access being checked
type Permission string

const (
	Read  Permission = "read"
	Write Permission = "write"
)

// HasAccess reports whether userID, a member of groupIDs, holds permission
// under ac. A nil ac is public read and denies write.
func HasAccess(userID string, permission Permission, ac *models.AccessControl, groupIDs []string) bool {
	if ac == nil {
		return permission == Read
	}

	var grant *models.AccessGrant
	switch permission {
	case Read:
		grant = ac.Read
	case Write:
		grant = ac.Write
	}
	if grant == nil {
		return false
	}

	if slices.Contains(grant.UserIDs, userID) {
		return true
	}
	for _, g := range groupIDs {
		if slices.Contains(grant.GroupIDs, g) {
			return true
		}
	}
	return false
}

// CanAccess applies the owner and admin bypass before checking ac
func CanAccess(user *models.User, ownerID string, permission Permission, ac *models.AccessControl, groupIDs []string) bool {
	if user == nil {
		return false
	}
	if user.ID == ownerID || user.IsAdmin() {
		return true
	}
	return HasAccess(user.ID, permission, ac, groupIDs)
}
