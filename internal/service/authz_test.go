package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flicky/smart-inventory/internal/model"
)

func TestPolicy_Authorize(t *testing.T) {
	p := DefaultPolicy()

	assert.NoError(t, p.Authorize(model.RoleAdmin, OpProductCreate))
	assert.ErrorIs(t, p.Authorize(model.RoleUser, OpProductCreate), ErrForbidden)
	assert.ErrorIs(t, p.Authorize("", OpOrderDelete), ErrForbidden)
	assert.ErrorIs(t, p.Authorize(model.RoleUser, OpUserAssignRole), ErrForbidden)

	assert.NoError(t, p.Authorize(model.RoleUser, OpProfileView))
	assert.NoError(t, p.Authorize(model.RoleAdmin, OpProfileUpdate))
	assert.ErrorIs(t, p.Authorize("", OpProfileView), ErrForbidden)

	assert.NoError(t, p.Authorize("", Operation("catalog.browse")))
}
