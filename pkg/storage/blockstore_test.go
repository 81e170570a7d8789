package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yacbft/irohad-go/pkg/model"
)

func Test_Store_InsertFetchRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	block := &model.Block{Height: 5, CreatedTime: time.UnixMilli(7).UTC()}
	require.NoError(t, s.Insert(5, block))

	got, ok, err := s.Fetch(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Height, got.Height)
	require.True(t, block.CreatedTime.Equal(got.CreatedTime))
}

func Test_Store_FetchMissingReturnsFalse(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Fetch(99)
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Store_InsertDuplicateHeightFails(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	block := &model.Block{Height: 1, CreatedTime: time.UnixMilli(1).UTC()}
	require.NoError(t, s.Insert(1, block))
	require.ErrorIs(t, s.Insert(1, block), ErrAlreadyExists)
}

func Test_Store_ForEachVisitsInAscendingHeightOrder(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, h := range []uint64{3, 1, 2} {
		require.NoError(t, s.Insert(h, &model.Block{Height: h, CreatedTime: time.UnixMilli(1).UTC()}))
	}

	var visited []uint64
	require.NoError(t, s.ForEach(func(height uint64, block *model.Block) error {
		visited = append(visited, height)
		return nil
	}))
	require.Equal(t, []uint64{1, 2, 3}, visited)
}

func Test_Store_SizeAndClear(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, h := range []uint64{1, 2, 3} {
		require.NoError(t, s.Insert(h, &model.Block{Height: h, CreatedTime: time.UnixMilli(1).UTC()}))
	}
	size, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, 3, size)

	require.NoError(t, s.Clear())
	size, err = s.Size()
	require.NoError(t, err)
	require.Equal(t, 0, size)
}
