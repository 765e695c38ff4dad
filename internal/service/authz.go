package service

import (
	"slices"

	"github.com/flicky/smart-inventory/internal/model"
)

type Operation string

const (
	OpCategoryCreate Operation = "category.create"
	OpCategoryUpdate Operation = "category.update"
	OpCategoryDelete Operation = "category.delete"
	OpProductCreate  Operation = "product.create"
	OpProductUpdate  Operation = "product.update"
	OpProductDelete  Operation = "product.delete"
	OpOrderList      Operation = "order.list"
	OpOrderUpdate    Operation = "order.update"
	OpOrderDelete    Operation = "order.delete"
	OpUserAssignRole Operation = "user.assign_role"
	OpProfileView    Operation = "profile.view"
	OpProfileUpdate  Operation = "profile.update"
)

// Policy lists, per operation, the roles allowed to perform it.
// Operations missing from the policy are open to everyone.
type Policy map[Operation][]string

func DefaultPolicy() Policy {
	admin := []string{model.RoleAdmin}
	member := []string{model.RoleAdmin, model.RoleUser}
	return Policy{
		OpCategoryCreate: admin,
		OpCategoryUpdate: admin,
		OpCategoryDelete: admin,
		OpProductCreate:  admin,
		OpProductUpdate:  admin,
		OpProductDelete:  admin,
		OpOrderList:      admin,
		OpOrderUpdate:    admin,
		OpOrderDelete:    admin,
		OpUserAssignRole: admin,
		OpProfileView:    member,
		OpProfileUpdate:  member,
	}
}

// Authorize checks role against the policy. An empty role means unauthenticated.
func (p Policy) Authorize(role string, op Operation) error {
	allowed, ok := p[op]
	if !ok {
		return nil
	}
	if !slices.Contains(allowed, role) {
		return &AuthorizationError{Operation: op, Role: role}
	}
	return nil
}
