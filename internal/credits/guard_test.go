package credits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

type stubSource struct {
	remaining []int
	err       error
	calls     int
	keys      []string
}

func (s *stubSource) RemainingCredits(_ context.Context, apiKey string) (int, error) {
	s.keys = append(s.keys, apiKey)
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	v := s.remaining[0]
	if len(s.remaining) > 1 {
		s.remaining = s.remaining[1:]
	}
	return v, nil
}

func TestEnsureBudget(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		min       int
		wantErr   bool
	}{
		{name: "enough", remaining: 3, min: 1},
		{name: "exact", remaining: 2, min: 2},
		{name: "zero left", remaining: 0, min: 1, wantErr: true},
		{name: "below min", remaining: 1, min: 2, wantErr: true},
		{name: "min defaults to one", remaining: 0, min: 0, wantErr: true},
		{name: "negative remaining", remaining: -4, min: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubSource{remaining: []int{tt.remaining}}
			g := NewGuard(src, "tok", nil)

			err := g.EnsureBudget(context.Background(), tt.min)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsType(err, domain.ErrorTypeInsufficientCredits))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"tok"}, src.keys)
		})
	}
}

func TestEnsureBudget_RequeriesEveryCall(t *testing.T) {
	src := &stubSource{remaining: []int{1, 0}}
	g := NewGuard(src, "tok", nil)

	require.NoError(t, g.EnsureBudget(context.Background(), 1))
	err := g.EnsureBudget(context.Background(), 1)
	assert.True(t, domain.IsType(err, domain.ErrorTypeInsufficientCredits))
	assert.Equal(t, 2, src.calls)
}

func TestEnsureBudget_PropagatesSourceError(t *testing.T) {
	boom := domain.BackendUnavailableError("usage endpoint down", errors.New("dial tcp"))
	g := NewGuard(&stubSource{err: boom}, "tok", nil)

	err := g.EnsureBudget(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.False(t, domain.IsType(err, domain.ErrorTypeInsufficientCredits))
}
