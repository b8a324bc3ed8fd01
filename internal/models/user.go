package models

import (
	"slices"
	"strings"
	"time"
)

// Коллекции, которые ядро синхронизации знает по имени
const (
	CollectionUser  = "users/user"
	CollectionGroup = "users/group"
)

// Группы со специальной семантикой
const (
	GroupDefault = 1 // группа по умолчанию, в ней неявно состоит анонимный оператор
	GroupAdmin   = 2 // группа администраторов, даёт все права
)

// PermSuperadmin право, которое сервер выдает членам группы администраторов
const PermSuperadmin = "superadmin"

// User представляет пользователя из коллекции users/user
type User struct {
	Username  string `json:"username"`        // уникальный username
	FirstName string `json:"first_name"`      // имя
	LastName  string `json:"last_name"`       // фамилия
	Title     string `json:"title,omitempty"` // титул
	GroupsID  []int  `json:"groups_id"`       // ID групп пользователя
	ID        int    `json:"id"`              // ID пользователя
	IsActive  bool   `json:"is_active"`       // активен ли пользователь
	IsPresent bool   `json:"is_present"`      // присутствует ли на собрании
}

// FullName возвращает отображаемое имя пользователя
func (u *User) FullName() string {
	name := strings.TrimSpace(strings.Join([]string{u.Title, u.FirstName, u.LastName}, " "))
	if name == "" {
		return u.Username
	}
	return strings.Join(strings.Fields(name), " ")
}

// InGroup проверяет членство пользователя в группе
func (u *User) InGroup(groupID int) bool {
	return slices.Contains(u.GroupsID, groupID)
}

// Clone создает глубокую копию пользователя
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.GroupsID = slices.Clone(u.GroupsID)
	return &clone
}

// Group представляет группу из коллекции users/group
type Group struct {
	Name        string   `json:"name"`        // название группы
	Permissions []string `json:"permissions"` // права группы
	ID          int      `json:"id"`          // ID группы
}

// ViewUser пользователь вместе с разрешенными группами
type ViewUser struct {
	User     *User   // исходный объект
	FullName string  // отображаемое имя
	Groups   []Group // группы, найденные в хранилище
}

// WhoAmI представляет ответ сервера о текущем пользователе
type WhoAmI struct {
	UserID       *int     `json:"user_id"`             // ID пользователя, nil для анонимного
	User         *User    `json:"user"`                // объект пользователя, nil для анонимного
	AuthType     string   `json:"auth_type,omitempty"` // тип аутентификации
	Permissions  []string `json:"permissions"`         // права, вычисленные сервером
	GuestEnabled bool     `json:"guest_enabled"`       // разрешен ли гостевой доступ
	Offline      bool     `json:"-"`                   // ответ взят из кеша из-за ошибки сети
}

// DefaultWhoAmI возвращает ответ для анонимного пользователя без гостевого доступа
func DefaultWhoAmI() *WhoAmI {
	return &WhoAmI{
		Permissions: []string{},
	}
}

// IsAnonymous проверяет, что пользователь не аутентифицирован
func (w *WhoAmI) IsAnonymous() bool {
	return w == nil || w.UserID == nil || *w.UserID == 0
}

// ID возвращает ID пользователя или 0 для анонимного
func (w *WhoAmI) ID() int {
	if w.IsAnonymous() {
		return 0
	}
	return *w.UserID
}

// Clone создает глубокую копию ответа
func (w *WhoAmI) Clone() *WhoAmI {
	if w == nil {
		return nil
	}
	clone := *w
	if w.UserID != nil {
		id := *w.UserID
		clone.UserID = &id
	}
	clone.User = w.User.Clone()
	clone.Permissions = slices.Clone(w.Permissions)
	if clone.Permissions == nil {
		clone.Permissions = []string{}
	}
	return &clone
}

// Account представляет учетную запись на сервере
type Account struct {
	CreatedAt    time.Time `json:"created_at"`    // время создания
	Username     string    `json:"username"`      // уникальный username
	PasswordHash string    `json:"password_hash"` // argon2id хеш пароля
	UserID       int       `json:"user_id"`       // ID элемента users/user
}

// Session представляет серверную сессию, выданную при логине
type Session struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	ID        string    `json:"id"`         // UUID сессии (jti токена)
	UserID    int       `json:"user_id"`    // ID пользователя
}
