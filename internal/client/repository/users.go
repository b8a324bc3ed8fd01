// Package repository собирает представления пользователей и групп из
// локального хранилища.
package repository

import (
	"log/slog"

	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/models"
)

// Users репозиторий пользователей
type Users struct {
	store  *datastore.Store
	logger *slog.Logger
}

// NewUsers создает репозиторий пользователей поверх хранилища
func NewUsers(store *datastore.Store, logger *slog.Logger) *Users {
	return &Users{store: store, logger: logger}
}

// User возвращает пользователя по ID
func (r *Users) User(id int) (*models.User, bool) {
	el, ok := r.store.Get(models.CollectionUser, id)
	if !ok {
		return nil, false
	}
	var user models.User
	if err := el.Decode(&user); err != nil {
		r.logger.Warn("Failed to decode user", "id", id, "error", err)
		return nil, false
	}
	return &user, true
}

// Group возвращает группу по ID
func (r *Users) Group(id int) (*models.Group, bool) {
	el, ok := r.store.Get(models.CollectionGroup, id)
	if !ok {
		return nil, false
	}
	var group models.Group
	if err := el.Decode(&group); err != nil {
		r.logger.Warn("Failed to decode group", "id", id, "error", err)
		return nil, false
	}
	return &group, true
}

// Groups возвращает найденные группы в порядке ids
func (r *Users) Groups(ids []int) []models.Group {
	elements := r.store.GetMany(models.CollectionGroup, ids)
	groups := make([]models.Group, 0, len(elements))
	for _, el := range elements {
		var group models.Group
		if err := el.Decode(&group); err != nil {
			r.logger.Warn("Failed to decode group", "id", el.ID, "error", err)
			continue
		}
		groups = append(groups, group)
	}
	return groups
}

// HasGroups проверяет, загружена ли хотя бы одна группа
func (r *Users) HasGroups() bool {
	return r.store.Count(models.CollectionGroup) > 0
}

// ViewUser возвращает пользователя вместе с его группами
func (r *Users) ViewUser(id int) (*models.ViewUser, bool) {
	user, ok := r.User(id)
	if !ok {
		return nil, false
	}
	return &models.ViewUser{
		User:     user,
		FullName: user.FullName(),
		Groups:   r.Groups(user.GroupsID),
	}, true
}

// All возвращает всех пользователей, отсортированных по ID
func (r *Users) All() []*models.User {
	elements := r.store.GetAll(models.CollectionUser)
	users := make([]*models.User, 0, len(elements))
	for _, el := range elements {
		var user models.User
		if err := el.Decode(&user); err != nil {
			continue
		}
		users = append(users, &user)
	}
	return users
}
