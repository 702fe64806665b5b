package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

func TestHasAccess(t *testing.T) {
	ac := &models.AccessControl{
		Read:  &models.AccessGrant{GroupIDs: []string{"g-readers"}, UserIDs: []string{"u-reader"}},
		Write: &models.AccessGrant{UserIDs: []string{"u-writer"}},
	}

	tests := []struct {
		name       string
		userID     string
		permission Permission
		ac         *models.AccessControl
		groups     []string
		want       bool
	}{
		{"public read", "anyone", Read, nil, nil, true},
		{"public write denied", "anyone", Write, nil, nil, false},
		{"listed user reads", "u-reader", Read, ac, nil, true},
		{"group member reads", "u-other", Read, ac, []string{"x", "g-readers"}, true},
		{"reader cannot write", "u-reader", Write, ac, nil, false},
		{"listed writer writes", "u-writer", Write, ac, nil, true},
		{"stranger denied", "u-other", Read, ac, []string{"x"}, false},
		{"empty grants deny", "u-reader", Read, &models.AccessControl{}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAccess(tt.userID, tt.permission, tt.ac, tt.groups))
		})
	}
}

func TestCanAccessBypass(t *testing.T) {
	private := &models.AccessControl{}

	owner := &models.User{ID: "owner", Role: models.RoleUser}
	admin := &models.User{ID: "root", Role: models.RoleAdmin}
	other := &models.User{ID: "other", Role: models.RoleUser}

	assert.True(t, CanAccess(owner, "owner", Write, private, nil))
	assert.True(t, CanAccess(admin, "owner", Write, private, nil))
	assert.False(t, CanAccess(other, "owner", Read, private, nil))
	assert.False(t, CanAccess(nil, "owner", Read, nil, nil))
}
