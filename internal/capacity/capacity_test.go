package capacity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) DistinctCapacities(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func TestResolve(t *testing.T) {
	r := NewStaticResolver(6, 2, 4, 4, 0)
	assert.Equal(t, []int{2, 4, 6}, r.Tiers())
	assert.Equal(t, 6, r.Max())

	tests := []struct {
		persons int
		want    int
	}{
		{1, 2},
		{2, 2},
		{3, 4},
		{5, 6},
		{6, 6},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.persons)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "persons=%d", tt.persons)
	}

	_, err := r.Resolve(7)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Contains(t, err.Error(), "at most 6")
}

func TestResolveEmpty(t *testing.T) {
	r := NewStaticResolver()
	_, err := r.Resolve(1)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 0, r.Max())
}

func TestUpgrade(t *testing.T) {
	r := NewStaticResolver(2, 4, 8)

	next, ok := r.Upgrade(2)
	assert.True(t, ok)
	assert.Equal(t, 4, next)

	next, ok = r.Upgrade(4)
	assert.True(t, ok)
	assert.Equal(t, 8, next)

	_, ok = r.Upgrade(8)
	assert.False(t, ok)
}

func TestRefresh(t *testing.T) {
	src := new(mockSource)
	src.On("DistinctCapacities", mock.Anything).Return([]int{4, 2}, nil).Once()
	src.On("DistinctCapacities", mock.Anything).Return(nil, errors.New("db down")).Once()

	r := NewResolver(src)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []int{2, 4}, r.Tiers())

	err := r.Refresh(context.Background())
	assert.ErrorContains(t, err, "db down")
	// the previous tiers survive a failed refresh
	assert.Equal(t, []int{2, 4}, r.Tiers())

	src.AssertExpectations(t)
}
