package storagewrappers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/bimview/xray/internal/mocks"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/storage"
)

func TestBoundedConcurrencyModelReader(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockModelReader(ctrl)

	var current, peak atomic.Int32
	inner.EXPECT().GeometryOf(gomock.Any(), gomock.Any()).Times(6).DoAndReturn(
		func(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.MeshData, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return map[storage.ItemKey][]geometry.MeshData{}, nil
		})

	r := NewBoundedConcurrencyModelReader(inner, 2)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GeometryOf(context.Background(), []storage.ItemKey{1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestBoundedConcurrencyModelReaderCancelledWhileWaiting(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockModelReader(ctrl)

	r := NewBoundedConcurrencyModelReader(inner, 1)
	r.limiter <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.GeometryOf(ctx, []storage.ItemKey{1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBoundedConcurrencyModelReaderPassesStructureThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockModelReader(ctrl)
	inner.EXPECT().ChildrenOf(gomock.Any(), storage.GroupKey(3)).Return([]storage.ItemKey{7}, nil)

	r := NewBoundedConcurrencyModelReader(inner, 1)
	children, err := r.ChildrenOf(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, []storage.ItemKey{7}, children)
}
