package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppexec/internal/domain"
)

func TestScheduler_Add(t *testing.T) {
	fx := newFixture(t)
	s := NewScheduler(NewExecutor(fx.reg, WithLogger(discardLogger())), discardLogger())

	tests := []struct {
		name    string
		sc      Schedule
		wantErr bool
	}{
		{name: "valid", sc: Schedule{Name: "nightly", Cron: "0 2 * * *", Pipeline: "nightly.json"}},
		{name: "name defaults to pipeline", sc: Schedule{Cron: "*/5 * * * *", Pipeline: "every5.yaml"}},
		{name: "invalid cron", sc: Schedule{Name: "bad", Cron: "not a cron", Pipeline: "x.json"}, wantErr: true},
		{name: "duplicate", sc: Schedule{Name: "nightly", Cron: "0 3 * * *", Pipeline: "other.json"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Add(tc.sc)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.Equal(t, []string{"every5.yaml", "nightly"}, s.Entries())

	s.Start()
	s.Stop()
}

func TestScheduler_Fire(t *testing.T) {
	fx := newFixture(t)
	j := newMemJournal()
	s := NewScheduler(NewExecutor(fx.reg, WithJournal(j), WithLogger(discardLogger())), discardLogger())

	s.load = func(string) ([]domain.Step, error) { return []domain.Step{step("make")}, nil }
	s.fire(context.Background(), "test", "ignored.json")
	assert.Equal(t, 1, fx.calls["make"])
	require.Len(t, j.runs, 1)
	for _, r := range j.runs {
		assert.Equal(t, domain.TriggerScheduled, r.Trigger)
		assert.Equal(t, domain.RunStatusSuccess, r.Status)
	}

	s.load = func(string) ([]domain.Step, error) { return nil, errors.New("gone") }
	s.fire(context.Background(), "test", "ignored.json")
	assert.Equal(t, 1, fx.calls["make"])
	assert.Len(t, j.runs, 1)
}
