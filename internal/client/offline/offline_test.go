package offline

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService_OfflineOnline(t *testing.T) {
	s := NewService(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	var states []State
	var notices []Notice
	s.OnChange(func(st State) { states = append(states, st) })
	s.OnNotice(func(n Notice) { notices = append(notices, n) })

	s.GoOfflineBecauseConnectionLost()
	// повторный переход не публикует ничего
	s.GoOfflineBecauseFailedWhoAmI()

	assert.True(t, s.IsOffline())
	assert.Equal(t, ReasonConnectionLost, s.State().Reason)

	s.GoOnline()
	s.GoOnline()
	assert.False(t, s.IsOffline())

	assert.Equal(t, []State{{Offline: true, Reason: ReasonConnectionLost}, {}}, states)
	if assert.Len(t, notices, 2) {
		assert.Equal(t, NoticeOffline, notices[0].Kind)
		assert.False(t, notices[0].Dismiss)
		assert.True(t, notices[1].Dismiss)
	}
}

func TestService_ShowNotice(t *testing.T) {
	s := NewService(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	var got Notice
	s.OnNotice(func(n Notice) { got = n })
	s.ShowNotice(Notice{Kind: NoticeTooLittleStorage, Message: "too little local storage"})

	assert.Equal(t, NoticeTooLittleStorage, got.Kind)
	assert.False(t, s.IsOffline())
}
