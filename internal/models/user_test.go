package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{name: "first and last", user: User{FirstName: "Ada", LastName: "Lovelace"}, want: "Ada Lovelace"},
		{name: "with title", user: User{Title: "Dr.", FirstName: "Ada", LastName: "Lovelace"}, want: "Dr. Ada Lovelace"},
		{name: "only username", user: User{Username: "ada"}, want: "ada"},
		{name: "only last name", user: User{LastName: "Lovelace"}, want: "Lovelace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.FullName())
		})
	}
}

func TestUser_Clone(t *testing.T) {
	u := &User{ID: 1, GroupsID: []int{1, 3}}
	c := u.Clone()
	c.GroupsID[0] = 2

	assert.Equal(t, []int{1, 3}, u.GroupsID)
	assert.True(t, c.InGroup(2))
	assert.Nil(t, (*User)(nil).Clone())
}

func TestWhoAmI_ID(t *testing.T) {
	id := 42
	zero := 0

	assert.Equal(t, 42, (&WhoAmI{UserID: &id}).ID())
	assert.Equal(t, 0, (&WhoAmI{UserID: &zero}).ID())
	assert.True(t, (&WhoAmI{}).IsAnonymous())
	assert.True(t, (*WhoAmI)(nil).IsAnonymous())
	assert.False(t, DefaultWhoAmI().GuestEnabled)
	assert.NotNil(t, DefaultWhoAmI().Permissions)
}
