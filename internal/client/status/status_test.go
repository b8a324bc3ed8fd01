package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/meetsync/internal/models"
)

func TestService_HistoryMode(t *testing.T) {
	s := NewService()

	var changes []bool
	s.OnHistoryModeChange(func(active bool) { changes = append(changes, active) })

	assert.False(t, s.IsInHistoryMode())
	assert.Nil(t, s.CurrentHistory())

	s.EnterHistoryMode(models.History{Timestamp: 100, Information: "motion created"})
	assert.True(t, s.IsInHistoryMode())
	assert.Equal(t, int64(100), s.CurrentHistory().Timestamp)

	s.LeaveHistoryMode()
	s.LeaveHistoryMode()
	assert.False(t, s.IsInHistoryMode())

	assert.Equal(t, []bool{true, false}, changes)
}
