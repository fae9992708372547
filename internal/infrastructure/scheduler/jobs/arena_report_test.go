package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

type stubBuilder struct {
	report *arena.Report
	err    error
	calls  int
}

func (b *stubBuilder) Build(ctx context.Context) (*arena.Report, error) {
	b.calls++
	return b.report, b.err
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[int64]string
	fail map[int64]error
}

func (s *recordingSender) SendHTML(ctx context.Context, chatID int64, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[chatID]; err != nil {
		return err
	}
	if s.sent == nil {
		s.sent = make(map[int64]string)
	}
	s.sent[chatID] = html
	return nil
}

func report() *arena.Report {
	return &arena.Report{
		ID:          "r-1",
		SeasonLabel: "Week 3 Monday 09:00",
		Players:     100,
		Unresolved:  2,
		Distributions: []arena.RankDistribution{{
			Cutoff:       50,
			TotalPlayers: 50,
			Healer:       arena.CategoryStats{Role: arena.RoleHealer},
			DPS:          arena.CategoryStats{Role: arena.RoleDPS},
		}},
	}
}

func TestArenaReportJob_DeliversToEveryChat(t *testing.T) {
	sender := &recordingSender{}
	job := NewArenaReportJob(&stubBuilder{report: report()}, sender, nil, logger.Nop(),
		ArenaReportConfig{ChatIDs: []int64{10, 20}})

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[10], "Week 3 Monday 09:00")
	assert.Equal(t, sender.sent[10], sender.sent[20])

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, "r-1", stats.ReportID)
	assert.Equal(t, 2, stats.Delivered)
	assert.Equal(t, 2, stats.Unresolved)
	assert.Empty(t, stats.FailedChats)
}

func TestArenaReportJob_OneChatFails(t *testing.T) {
	blocked := errors.New("bot was blocked by the user")
	sender := &recordingSender{fail: map[int64]error{10: blocked}}
	job := NewArenaReportJob(&stubBuilder{report: report()}, sender, nil, logger.Nop(),
		ArenaReportConfig{ChatIDs: []int64{10, 20}, SendTimeout: time.Second})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, blocked)
	assert.Contains(t, err.Error(), "chat 10")

	assert.Contains(t, sender.sent, int64(20), "later chats still receive the report")
	assert.Equal(t, []int64{10}, job.LastStats().FailedChats)
	assert.Equal(t, 1, job.LastStats().Delivered)
}

func TestArenaReportJob_BuildFailure(t *testing.T) {
	sender := &recordingSender{}
	boom := arena.NewStageError(arena.StageRanking, arena.ErrUpstream, "ranking unavailable", nil)
	job := NewArenaReportJob(&stubBuilder{err: boom}, sender, nil, logger.Nop(),
		ArenaReportConfig{ChatIDs: []int64{10}})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, arena.ErrUpstream)
	assert.Empty(t, sender.sent)
	assert.NotNil(t, job.LastStats())
}

func TestArenaReportJob_NoChats(t *testing.T) {
	b := &stubBuilder{report: report()}
	job := NewArenaReportJob(b, nil, nil, logger.Nop(), DefaultArenaReportConfig())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, "arena_report", job.Name())
}

func TestParseChatIDs(t *testing.T) {
	ids, err := ParseChatIDs([]string{"-100123", "", "42"})
	require.NoError(t, err)
	assert.Equal(t, []int64{-100123, 42}, ids)

	_, err = ParseChatIDs([]string{"abc"})
	assert.Error(t, err)
}
