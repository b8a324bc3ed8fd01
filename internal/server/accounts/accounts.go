// Package accounts отвечает за учетные записи dev-сервера:
// проверку паролей, вычисление прав и начальное наполнение базы
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/iudanet/meetsync/internal/crypto"
	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/storage"
)

// AuthTypeDefault тип аутентификации по логину и паролю
const AuthTypeDefault = "default"

// ErrInvalidCredentials неверный логин или пароль
var ErrInvalidCredentials = errors.New("invalid credentials")

// defaultPermissions права группы Default после первого запуска
var defaultPermissions = []string{
	"agenda.can_see",
	"motions.can_see",
	"users.can_see",
}

// Service управляет учетными записями
type Service struct {
	logger   *slog.Logger
	accounts storage.AccountStorage
	elements storage.ElementStorage
	params   crypto.Params
}

// New создает сервис учетных записей
func New(logger *slog.Logger, accounts storage.AccountStorage, elements storage.ElementStorage, params crypto.Params) *Service {
	return &Service{
		logger:   logger,
		accounts: accounts,
		elements: elements,
		params:   params,
	}
}

// Authenticate проверяет пароль и возвращает учетную запись
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.Account, error) {
	account, err := s.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := crypto.VerifyPassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, crypto.ErrMismatchedPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	return account, nil
}

// WhoAmI собирает ответ для аутентифицированного пользователя.
// Права объединяются по всем группам, члены Admin получают superadmin.
func (s *Service) WhoAmI(ctx context.Context, userID int) (*models.WhoAmI, error) {
	whoami := &models.WhoAmI{
		UserID:      &userID,
		AuthType:    AuthTypeDefault,
		Permissions: []string{},
	}

	element, err := s.elements.GetElement(ctx, models.CollectionUser, userID)
	if err != nil {
		if errors.Is(err, storage.ErrElementNotFound) {
			return whoami, nil
		}
		return nil, err
	}
	var user models.User
	if err := element.Decode(&user); err != nil {
		return nil, err
	}
	whoami.User = &user

	groupIDs := slices.Clone(user.GroupsID)
	if !slices.Contains(groupIDs, models.GroupDefault) {
		groupIDs = append(groupIDs, models.GroupDefault)
	}
	permissions, err := s.groupPermissions(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	if user.InGroup(models.GroupAdmin) {
		permissions = append(permissions, models.PermSuperadmin)
	}
	whoami.Permissions = permissions
	return whoami, nil
}

// Anonymous собирает ответ для анонимного пользователя: права группы Default
func (s *Service) Anonymous(ctx context.Context, guestEnabled bool) (*models.WhoAmI, error) {
	whoami := models.DefaultWhoAmI()
	whoami.GuestEnabled = guestEnabled
	if !guestEnabled {
		return whoami, nil
	}
	permissions, err := s.groupPermissions(ctx, []int{models.GroupDefault})
	if err != nil {
		return nil, err
	}
	whoami.Permissions = permissions
	return whoami, nil
}

// IsSuperadmin проверяет членство пользователя в группе Admin
func (s *Service) IsSuperadmin(ctx context.Context, userID int) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	element, err := s.elements.GetElement(ctx, models.CollectionUser, userID)
	if err != nil {
		if errors.Is(err, storage.ErrElementNotFound) {
			return false, nil
		}
		return false, err
	}
	var user models.User
	if err := element.Decode(&user); err != nil {
		return false, err
	}
	return user.InGroup(models.GroupAdmin), nil
}

func (s *Service) groupPermissions(ctx context.Context, groupIDs []int) ([]string, error) {
	groups, err := s.elements.GetElements(ctx, models.CollectionGroup, groupIDs)
	if err != nil {
		return nil, err
	}
	permissions := []string{}
	for _, element := range groups {
		var group models.Group
		if err := element.Decode(&group); err != nil {
			return nil, err
		}
		for _, p := range group.Permissions {
			if !slices.Contains(permissions, p) {
				permissions = append(permissions, p)
			}
		}
	}
	slices.Sort(permissions)
	return permissions, nil
}

// NewUser параметры нового пользователя
type NewUser struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	GroupsID  []int
	// Information запись для журнала истории, по умолчанию "User created"
	Information []string
}

// CreateUser создает учетную запись и элемент users/user с тем же ID
func (s *Service) CreateUser(ctx context.Context, u NewUser, extra ...models.Element) (*models.User, int64, error) {
	hash, err := crypto.HashPassword(u.Password, s.params)
	if err != nil {
		return nil, 0, err
	}
	account := &models.Account{Username: u.Username, PasswordHash: hash}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, 0, err
	}

	user := &models.User{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		GroupsID:  u.GroupsID,
		ID:        account.UserID,
		IsActive:  true,
	}
	if user.GroupsID == nil {
		user.GroupsID = []int{models.GroupDefault}
	}
	information := u.Information
	if len(information) == 0 {
		information = []string{"User created"}
	}
	change := &storage.Change{
		Information: information,
		Changed:     append(extra, models.MustElement(models.CollectionUser, user)),
	}
	changeID, err := s.elements.WriteChange(ctx, change)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to write user element: %w", err)
	}

	s.logger.InfoContext(ctx, "user created",
		slog.String("username", user.Username),
		slog.Int("user_id", user.ID))
	return user, changeID, nil
}

// Seed при пустой базе создает группы Default и Admin и учетную запись admin.
// Пустой adminPassword заменяется случайным, он попадает в лог.
func (s *Service) Seed(ctx context.Context, adminPassword string) error {
	n, err := s.accounts.CountAccounts(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if adminPassword == "" {
		adminPassword = uuid.NewString()
		s.logger.WarnContext(ctx, "admin password is not configured, generated a random one",
			slog.String("password", adminPassword))
	}

	groups := []models.Element{
		models.MustElement(models.CollectionGroup, models.Group{
			ID: models.GroupDefault, Name: "Default", Permissions: defaultPermissions,
		}),
		models.MustElement(models.CollectionGroup, models.Group{
			ID: models.GroupAdmin, Name: "Admin", Permissions: []string{},
		}),
	}
	_, _, err = s.CreateUser(ctx, NewUser{
		Username:    "admin",
		Password:    adminPassword,
		FirstName:   "Administrator",
		GroupsID:    []int{models.GroupAdmin},
		Information: []string{"Initial data"},
	}, groups...)
	if err != nil {
		return fmt.Errorf("failed to seed initial data: %w", err)
	}

	s.logger.InfoContext(ctx, "initial data created")
	return nil
}
