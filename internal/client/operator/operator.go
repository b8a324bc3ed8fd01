// Package operator хранит сведения о текущем пользователе клиента: ответ
// whoami, вычисленные права и членство в группах.
package operator

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/client/storage"
	"github.com/iudanet/meetsync/internal/event"
	"github.com/iudanet/meetsync/internal/models"
)

//go:generate moq -out whoami_mock.go . WhoAmIClient

// WhoAmIClient запрашивает whoami у сервера
type WhoAmIClient interface {
	WhoAmI(ctx context.Context) (*models.WhoAmI, error)
}

// OfflineReporter получает сигнал о неудачном whoami
type OfflineReporter interface {
	GoOfflineBecauseFailedWhoAmI()
}

// ViewUserRepository находит пользователя вместе с группами
type ViewUserRepository interface {
	ViewUser(id int) (*models.ViewUser, bool)
}

// Operator кеш текущего пользователя и его прав
type Operator struct {
	store   *datastore.Store
	client  WhoAmIClient
	kv      storage.KeyValueStorage
	offline OfflineReporter
	history storage.HistoryMode
	logger  *slog.Logger

	flight          singleflight.Group
	userSubject     *event.Subject[*models.User]
	viewUserSubject *event.Subject[*models.ViewUser]
	unsubscribe     event.Unsubscribe

	mu          sync.RWMutex
	current     *models.WhoAmI
	user        *models.User
	viewUser    *models.ViewUser
	repo        ViewUserRepository
	permissions []string
}

// New создает оператора и подписывает его на изменения хранилища
func New(store *datastore.Store, client WhoAmIClient, kv storage.KeyValueStorage,
	offline OfflineReporter, history storage.HistoryMode, logger *slog.Logger,
) *Operator {
	o := &Operator{
		store:           store,
		client:          client,
		kv:              kv,
		offline:         offline,
		history:         history,
		logger:          logger,
		userSubject:     event.NewSubject[*models.User](),
		viewUserSubject: event.NewSubject[*models.ViewUser](),
		current:         models.DefaultWhoAmI(),
		permissions:     []string{},
	}
	o.unsubscribe = store.OnModified(o.onStoreModified)
	return o
}

// Close отписывает оператора от хранилища
func (o *Operator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

// WhoAmIFromStorage загружает сохраненный ответ whoami. Если его нет,
// используется ответ анонимного пользователя.
func (o *Operator) WhoAmIFromStorage(ctx context.Context) *models.WhoAmI {
	whoami := models.DefaultWhoAmI()
	if o.kv != nil {
		stored := &models.WhoAmI{}
		found, err := storage.GetJSON(ctx, o.kv, storage.KeyWhoAmI, stored)
		switch {
		case err != nil:
			o.logger.Warn("Failed to read stored whoami, using default", "error", err)
		case found:
			whoami = stored
		}
	}

	o.update(ctx, whoami)
	return o.CurrentWhoAmI()
}

// WhoAmI запрашивает текущего пользователя у сервера. Одновременные
// вызовы объединяются в один запрос. При ошибке сети клиент переходит
// в offline режим и возвращается последний известный ответ с Offline=true.
func (o *Operator) WhoAmI(ctx context.Context) *models.WhoAmI {
	v, _, _ := o.flight.Do("whoami", func() (any, error) {
		whoami, err := o.client.WhoAmI(ctx)
		if err != nil || whoami == nil {
			o.logger.Warn("WhoAmI request failed", "error", err)
			if o.offline != nil {
				o.offline.GoOfflineBecauseFailedWhoAmI()
			}
			cached := o.CurrentWhoAmI()
			cached.Offline = true
			return cached, nil
		}

		o.update(ctx, whoami)
		return o.CurrentWhoAmI(), nil
	})
	return v.(*models.WhoAmI).Clone()
}

// SetWhoAmI устанавливает ответ whoami, например после логина.
// nil означает анонимного пользователя.
func (o *Operator) SetWhoAmI(ctx context.Context, whoami *models.WhoAmI) {
	if whoami == nil {
		whoami = models.DefaultWhoAmI()
	}
	o.update(ctx, whoami)
}

// AfterAppsLoaded подключает репозиторий пользователей. До этого
// ViewUser всегда nil.
func (o *Operator) AfterAppsLoaded(repo ViewUserRepository) {
	o.mu.Lock()
	o.repo = repo
	o.resolveViewUserLocked()
	viewUser := o.viewUser
	o.mu.Unlock()

	o.viewUserSubject.Publish(viewUser)
}

// Reset сбрасывает оператора в анонимное состояние без сохранения
func (o *Operator) Reset() {
	o.mu.Lock()
	o.current = models.DefaultWhoAmI()
	o.user = nil
	o.viewUser = nil
	o.permissions = []string{}
	o.mu.Unlock()

	o.userSubject.Publish(nil)
	o.viewUserSubject.Publish(nil)
}

func (o *Operator) update(ctx context.Context, whoami *models.WhoAmI) {
	o.mu.Lock()
	o.current = whoami.Clone()
	o.current.Offline = false
	o.user = o.current.User.Clone()
	if o.user == nil && !o.current.IsAnonymous() {
		// ответ без объекта пользователя: берем его из хранилища,
		// а если его там еще нет, оставляем только ID до прихода данных
		id := o.current.ID()
		if user, ok := o.userFromStore(id); ok {
			o.user = user
		} else {
			o.user = &models.User{ID: id}
		}
	}
	o.resolveViewUserLocked()
	o.mu.Unlock()

	o.updatePermissions(ctx)
}

func (o *Operator) resolveViewUserLocked() {
	o.viewUser = nil
	if o.user == nil || o.repo == nil {
		return
	}
	if vu, ok := o.repo.ViewUser(o.user.ID); ok {
		o.viewUser = vu
	}
}

// onStoreModified обновляет пользователя и права при изменениях в хранилище
func (o *Operator) onStoreModified(u datastore.Update) {
	o.mu.Lock()
	userChanged := false
	if o.user != nil && (u.Reset || slices.Contains(u.Changed[models.CollectionUser], o.user.ID)) {
		if user, ok := o.userFromStore(o.user.ID); ok {
			o.user = user
			o.current.User = user.Clone()
			id := user.ID
			o.current.UserID = &id
			userChanged = true
		}
	}
	groupsChanged := u.Reset || u.TouchesCollection(models.CollectionGroup)
	if groupsChanged && o.user == nil {
		// для анонимного важна только группа по умолчанию
		groupsChanged = u.Reset || u.Touches(models.CollectionGroup, models.GroupDefault)
	}
	if userChanged || groupsChanged {
		o.resolveViewUserLocked()
	}
	o.mu.Unlock()

	if userChanged || groupsChanged {
		o.updatePermissions(context.Background())
	}
}

func (o *Operator) userFromStore(id int) (*models.User, bool) {
	el, ok := o.store.Get(models.CollectionUser, id)
	if !ok {
		return nil, false
	}
	var user models.User
	if err := el.Decode(&user); err != nil {
		o.logger.Warn("Failed to decode operator user", "id", id, "error", err)
		return nil, false
	}
	return &user, true
}

// updatePermissions вычисляет права, сохраняет whoami и публикует пользователя
func (o *Operator) updatePermissions(ctx context.Context) {
	o.mu.Lock()
	permissions := o.computePermissionsLocked()
	o.permissions = permissions
	o.current.Permissions = slices.Clone(permissions)
	snapshot := o.current.Clone()
	user := o.user.Clone()
	viewUser := o.viewUser
	o.mu.Unlock()

	if o.kv != nil && (o.history == nil || !o.history.IsInHistoryMode()) {
		if err := storage.SetJSON(ctx, o.kv, storage.KeyWhoAmI, snapshot); err != nil {
			o.logger.Warn("Failed to persist whoami", "error", err)
		}
	}

	o.userSubject.Publish(user)
	o.viewUserSubject.Publish(viewUser)
}

func (o *Operator) computePermissionsLocked() []string {
	if o.store.Count(models.CollectionGroup) == 0 {
		// группы еще не загружены, берем права из ответа whoami
		return slices.Clone(o.current.Permissions)
	}

	var groupIDs []int
	if o.user == nil || len(o.user.GroupsID) == 0 {
		groupIDs = []int{models.GroupDefault}
	} else {
		groupIDs = o.user.GroupsID
	}

	permissions := []string{}
	for _, el := range o.store.GetMany(models.CollectionGroup, groupIDs) {
		var group models.Group
		if err := el.Decode(&group); err != nil {
			o.logger.Warn("Failed to decode group", "id", el.ID, "error", err)
			continue
		}
		for _, perm := range group.Permissions {
			if !slices.Contains(permissions, perm) {
				permissions = append(permissions, perm)
			}
		}
	}
	return permissions
}

// HasPerms проверяет, есть ли у оператора хотя бы одно из прав.
// Администратор имеет все права.
func (o *Operator) HasPerms(perms ...string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.user != nil && o.user.InGroup(models.GroupAdmin) {
		return true
	}
	for _, perm := range perms {
		if slices.Contains(o.permissions, perm) {
			return true
		}
	}
	return false
}

// IsInGroupIds проверяет членство хотя бы в одной из групп. Анонимный
// оператор состоит только в группе по умолчанию, администратор во всех.
func (o *Operator) IsInGroupIds(ids ...int) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.user == nil {
		return slices.Contains(ids, models.GroupDefault)
	}
	if o.user.InGroup(models.GroupAdmin) {
		return true
	}
	return slices.ContainsFunc(ids, o.user.InGroup)
}

// IsInGroup проверяет членство хотя бы в одной из групп
func (o *Operator) IsInGroup(groups ...models.Group) bool {
	ids := make([]int, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return o.IsInGroupIds(ids...)
}

// User возвращает копию текущего пользователя или nil для анонимного
func (o *Operator) User() *models.User {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.user.Clone()
}

// ViewUser возвращает представление текущего пользователя
func (o *Operator) ViewUser() *models.ViewUser {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.viewUser
}

// UserID возвращает ID пользователя, 0 для анонимного
func (o *Operator) UserID() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.user == nil {
		return 0
	}
	return o.user.ID
}

// IsAnonymous проверяет, что оператор не аутентифицирован
func (o *Operator) IsAnonymous() bool {
	return o.UserID() == 0
}

// GuestsEnabled проверяет, разрешен ли гостевой доступ
func (o *Operator) GuestsEnabled() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current.GuestEnabled
}

// Permissions возвращает копию вычисленных прав
func (o *Operator) Permissions() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.permissions)
}

// CurrentWhoAmI возвращает копию текущего ответа whoami
func (o *Operator) CurrentWhoAmI() *models.WhoAmI {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current.Clone()
}

// OnUserChange подписывает fn на изменение пользователя
func (o *Operator) OnUserChange(fn func(*models.User)) event.Unsubscribe {
	return o.userSubject.Subscribe(fn)
}

// OnViewUserChange подписывает fn на изменение представления пользователя
func (o *Operator) OnViewUserChange(fn func(*models.ViewUser)) event.Unsubscribe {
	return o.viewUserSubject.Subscribe(fn)
}
