package xray

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/bimview/xray/internal/mocks"
	"github.com/bimview/xray/pkg/geomcache"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/scene"
	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/storage/memory"
	storagetest "github.com/bimview/xray/pkg/storage/test"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// manualScheduler queues callbacks until the test runs them.
type manualScheduler struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
}

func (s *manualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.queue = append(s.queue, fn)
	}
}

func (s *manualScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queue = nil
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunNext runs the oldest callback and reports whether there was one.
func (s *manualScheduler) RunNext() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	fn()
	return true
}

func (s *manualScheduler) Drain() int {
	n := 0
	for s.RunNext() {
		n++
	}
	return n
}

// scenarioModel has storey 1 with two items, storey 2 with none and storey 3
// with three.
func scenarioModel() *storage.Model {
	item := func(id storage.ItemKey, x float64) storage.Item {
		return storage.Item{ID: id, Meshes: []geometry.MeshData{storagetest.QuadMesh(x)}}
	}
	return &storage.Model{
		Name:           "scenario",
		WorldTransform: geometry.Identity,
		Storeys: []storage.StoreyContent{
			{Storey: storage.Storey{ID: 1, Name: "a"}, Items: []storage.Item{item(10, 0), item(11, 2)}},
			{Storey: storage.Storey{ID: 2, Name: "b", Elevation: 3}},
			{Storey: storage.Storey{ID: 3, Name: "c", Elevation: 6}, Items: []storage.Item{item(30, 0), item(31, 2), item(32, 4)}},
		},
	}
}

func groupsOf(model *storage.Model) []GroupChildren {
	groups := make([]GroupChildren, 0, len(model.Storeys))
	for _, s := range model.Storeys {
		g := GroupChildren{Group: s.ID}
		for _, it := range s.Items {
			g.Children = append(g.Children, it.ID)
		}
		groups = append(groups, g)
	}
	return groups
}

type fixture struct {
	pipeline *Pipeline
	root     *scene.Group
	sched    *manualScheduler
	store    *memory.MemoryBackend
	renders  *atomic.Int32
}

func newFixture(t *testing.T, model *storage.Model, opts ...Option) *fixture {
	t.Helper()

	store, err := memory.NewWithModel(model)
	require.NoError(t, err)

	cache := geomcache.New(geomcache.NewReaderExtractor(store, logger.NewNoopLogger()))
	t.Cleanup(cache.Close)

	f := &fixture{
		root:    scene.NewGroup("scene"),
		sched:   &manualScheduler{},
		store:   store,
		renders: &atomic.Int32{},
	}
	base := []Option{
		WithScheduler(f.sched),
		WithModelReader(store),
		WithRender(func() { f.renders.Add(1) }),
	}
	f.pipeline = New(cache, f.root, append(base, opts...)...)
	t.Cleanup(f.pipeline.Dispose)
	return f
}

func (f *fixture) wireframe(t *testing.T, group storage.GroupKey) *scene.LineSegments {
	t.Helper()
	obj, ok := f.root.FindByName(WireframeName(group))
	require.True(t, ok, "group %d has no wireframe in the scene", group)
	return obj.(*scene.LineSegments)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestScenarioSkipsEmptyGroup(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)

	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))

	status := f.pipeline.Status()
	require.Equal(t, Status{Completed: 0, Total: 2, IsProcessing: true, Progress: 0}, status)
	require.Equal(t, 2, f.pipeline.GroupCount())
	require.Empty(t, f.root.Children(), "placeholders are not attached")
	require.False(t, closed(f.pipeline.Done()))

	require.Equal(t, 5, f.sched.Drain(), "one callback per unit")

	status = f.pipeline.Status()
	require.Equal(t, Status{Completed: 2, Total: 2, IsProcessing: false, Progress: 1}, status)
	require.True(t, f.pipeline.IsGroupReady(1))
	require.False(t, f.pipeline.IsGroupReady(2))
	require.True(t, f.pipeline.IsGroupReady(3))
	require.True(t, closed(f.pipeline.Done()))

	_, known := f.pipeline.GroupState(2)
	require.False(t, known)

	require.Len(t, f.root.Children(), 2)
	for _, g := range []storage.GroupKey{1, 3} {
		w := f.wireframe(t, g)
		require.False(t, w.Visible())
		require.Positive(t, w.SegmentCount())
		require.Equal(t, uint32(WireframeColor), w.Material.Color)
		require.False(t, w.Material.DepthTest())
		require.False(t, w.Material.DepthWrite())
		require.True(t, w.Material.ToneMapped)
	}
	require.Zero(t, f.renders.Load(), "nothing is shown while disabled")
}

func TestGroupReadyAtItsLastUnit(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))

	require.True(t, f.sched.RunNext())
	require.False(t, f.pipeline.IsGroupReady(1))
	require.True(t, f.sched.RunNext())
	require.True(t, f.pipeline.IsGroupReady(1))
	require.Equal(t, 1, f.pipeline.Status().Completed)

	require.True(t, f.sched.RunNext())
	require.True(t, f.sched.RunNext())
	require.False(t, f.pipeline.IsGroupReady(3))
	require.True(t, f.sched.RunNext())
	require.True(t, f.pipeline.IsGroupReady(3))
	require.False(t, f.sched.RunNext())
}

func TestWorldTransformIsCopiedOntoWireframes(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	model.WorldTransform = geometry.Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		5, 6, 7, 1,
	}

	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	f.sched.Drain()
	require.Equal(t, model.WorldTransform, f.wireframe(t, 1).Matrix())

	override := geometry.Identity
	g := newFixture(t, model, WithWorldTransform(override))
	require.NoError(t, g.pipeline.Initialize(ctx, groupsOf(model)))
	g.sched.Drain()
	require.Equal(t, override, g.wireframe(t, 3).Matrix())
}

func TestToggleTwiceRestoresVisibility(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	f.sched.Drain()

	w1, w3 := f.wireframe(t, 1), f.wireframe(t, 3)
	require.False(t, f.pipeline.Enabled())

	require.True(t, f.pipeline.Toggle())
	require.True(t, w1.Visible())
	require.True(t, w3.Visible())
	require.True(t, w1.Material.NeedsUpdate())

	require.False(t, f.pipeline.Toggle())
	require.False(t, w1.Visible())
	require.False(t, w3.Visible())
	require.Equal(t, int32(2), f.renders.Load())
}

func TestWireframeShownWhenReadyWhileEnabled(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	require.True(t, f.pipeline.Toggle())
	renders := f.renders.Load()

	f.sched.Drain()

	require.True(t, f.wireframe(t, 1).Visible())
	require.True(t, f.wireframe(t, 3).Visible())
	require.Equal(t, renders+2, f.renders.Load())
}

func TestSetFocusPrioritizesPendingGroup(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	require.True(t, f.pipeline.Toggle())

	require.NoError(t, f.pipeline.SetFocus(ctx, 3))
	require.True(t, f.pipeline.IsGroupReady(3), "ready before SetFocus returns")
	require.False(t, f.pipeline.IsGroupReady(1))
	require.True(t, f.wireframe(t, 3).Visible())
	focus, ok := f.pipeline.Focus()
	require.True(t, ok)
	require.Equal(t, storage.GroupKey(3), focus)

	f.sched.Drain()
	require.Len(t, f.root.Children(), 2, "the drain does not add a second wireframe")
	require.False(t, f.wireframe(t, 1).Visible(), "focus hides other groups")
	require.True(t, f.wireframe(t, 3).Visible())

	f.pipeline.ResetFocus()
	require.True(t, f.wireframe(t, 1).Visible())
	require.True(t, f.wireframe(t, 3).Visible())
	_, ok = f.pipeline.Focus()
	require.False(t, ok)
}

func TestSetFocusWhileDisabledDoesNothing(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))

	require.NoError(t, f.pipeline.SetFocus(ctx, 3))
	require.False(t, f.pipeline.IsGroupReady(3))
	_, ok := f.pipeline.Focus()
	require.False(t, ok)
	require.Zero(t, f.renders.Load())
}

func TestToggleRespectsFocus(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	f.sched.Drain()

	require.True(t, f.pipeline.Toggle())
	require.NoError(t, f.pipeline.SetFocus(ctx, 1))
	require.False(t, f.pipeline.Toggle())
	require.True(t, f.pipeline.Toggle())

	require.True(t, f.wireframe(t, 1).Visible())
	require.False(t, f.wireframe(t, 3).Visible())
}

func TestPlanViewForcesWireframes(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))

	require.NoError(t, f.pipeline.EnterPlanView(ctx, 1))
	require.True(t, f.pipeline.Enabled())
	require.True(t, f.pipeline.IsGroupReady(1))
	require.True(t, f.wireframe(t, 1).Visible())

	require.True(t, f.pipeline.Toggle(), "toggle is ignored in plan view")

	require.NoError(t, f.pipeline.EnterPlanView(ctx, 3))
	require.False(t, f.wireframe(t, 1).Visible())
	require.True(t, f.wireframe(t, 3).Visible())

	f.pipeline.ExitPlanView()
	require.False(t, f.pipeline.Enabled(), "previous state restored")
	require.False(t, f.wireframe(t, 3).Visible())
	_, ok := f.pipeline.Focus()
	require.False(t, ok)

	require.True(t, f.pipeline.Toggle())
	require.NoError(t, f.pipeline.EnterPlanView(ctx, 1))
	f.pipeline.ExitPlanView()
	require.True(t, f.pipeline.Enabled())
	require.True(t, f.wireframe(t, 1).Visible())
	require.True(t, f.wireframe(t, 3).Visible())
}

func TestDisposeMidRun(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))

	require.True(t, f.sched.RunNext())
	require.NoError(t, f.pipeline.EnterPlanView(ctx, 3))
	require.True(t, f.pipeline.IsGroupReady(3))
	w3 := f.wireframe(t, 3)
	require.True(t, w3.Visible())

	f.pipeline.Dispose()

	require.Empty(t, f.root.Children())
	require.Nil(t, w3.Parent())
	require.True(t, w3.Geometry.Released())
	require.True(t, w3.Material.Released())
	require.Zero(t, f.pipeline.GroupCount())
	require.False(t, f.pipeline.Enabled())
	require.True(t, closed(f.pipeline.Done()))

	// the next unit was already scheduled and fires late
	require.Equal(t, 1, f.sched.Drain())
	require.Empty(t, f.root.Children())
	require.Zero(t, f.pipeline.GroupCount())
	require.Equal(t, Status{}, f.pipeline.Status())

	f.pipeline.Dispose()
	require.False(t, f.pipeline.Toggle())
	require.NoError(t, f.pipeline.SetFocus(ctx, 3))
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	require.Zero(t, f.pipeline.GroupCount())
	require.Zero(t, f.sched.Pending())
}

func TestDisposeBeforeInitialize(t *testing.T) {
	p := New(geomcache.New(geomcache.NewReaderExtractor(memory.New(), logger.NewNoopLogger())), scene.NewGroup("scene"))
	p.Dispose()
	p.Dispose()
	require.True(t, closed(p.Done()))
	require.Equal(t, Status{}, p.Status())
}

func TestDisposeWithSlowGeometryReader(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	store, err := memory.NewWithModel(model)
	require.NoError(t, err)

	slow := mocks.NewMockSlowModelReader(store, time.Second)
	cache := geomcache.New(geomcache.NewReaderExtractor(slow, logger.NewNoopLogger()))
	defer cache.Close()

	root := scene.NewGroup("scene")
	p := New(cache, root, WithModelReader(slow))
	require.NoError(t, p.InitializeFromModel(ctx))

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	p.Dispose()

	require.Less(t, time.Since(start), time.Second, "dispose does not wait for the slow read")
	require.Empty(t, root.Children())
	require.Zero(t, p.GroupCount())
	require.True(t, closed(p.Done()))
}

func TestDisposeDoesNotWaitForStuckExtraction(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	cache := geomcache.New(geomcache.ExtractorFunc(func(_ context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.Extracted, error) {
		once.Do(func() { close(entered) })
		<-release
		e, err := geometry.FromMeshData(storagetest.QuadMesh(0))
		if err != nil {
			return nil, err
		}
		return map[storage.ItemKey][]geometry.Extracted{items[0]: {e}}, nil
	}))
	defer cache.Close()

	root := scene.NewGroup("scene")
	p := New(cache, root)
	require.NoError(t, p.Initialize(context.Background(), []GroupChildren{
		{Group: 1, Children: []storage.ItemKey{10}},
	}))
	<-entered

	disposed := make(chan struct{})
	go func() {
		p.Dispose()
		close(disposed)
	}()

	select {
	case <-disposed:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("dispose waited for the stuck extraction")
	}

	require.Zero(t, p.GroupCount())
	require.True(t, closed(p.Done()))

	close(release)
	require.Eventually(t, func() bool { return cache.IsCached(10) }, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, root.Children(), "late unit completion attaches nothing")
}

func TestDeferredDrain(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	store, err := memory.NewWithModel(model)
	require.NoError(t, err)

	cache := geomcache.New(geomcache.NewReaderExtractor(store, logger.NewNoopLogger()))
	defer cache.Close()

	p := New(cache, scene.NewGroup("scene"), WithModelReader(store))
	defer p.Dispose()
	require.NoError(t, p.InitializeFromModel(ctx))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	require.Equal(t, Status{Completed: 2, Total: 2, Progress: 1}, p.Status())
}

func TestUnitFailuresDoNotStallTheRun(t *testing.T) {
	ctx := context.Background()
	l, logs := logger.NewObserverLogger("debug")

	quad := func() []geometry.Extracted {
		e, err := geometry.FromMeshData(storagetest.QuadMesh(0))
		require.NoError(t, err)
		return []geometry.Extracted{e}
	}
	cache := geomcache.New(geomcache.ExtractorFunc(func(_ context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.Extracted, error) {
		switch items[0] {
		case 10:
			return nil, errors.New("engine failure")
		case 30:
			panic("corrupt item")
		}
		return map[storage.ItemKey][]geometry.Extracted{items[0]: quad()}, nil
	}))
	defer cache.Close()

	sched := &manualScheduler{}
	p := New(cache, scene.NewGroup("scene"), WithScheduler(sched), WithLogger(l))
	defer p.Dispose()

	require.NoError(t, p.Initialize(ctx, []GroupChildren{
		{Group: 1, Children: []storage.ItemKey{10, 11}},
		{Group: 2, Children: []storage.ItemKey{10}},
		{Group: 3, Children: []storage.ItemKey{30, 31}},
	}))
	require.Equal(t, 5, sched.Drain())

	require.True(t, p.IsGroupReady(1))
	require.False(t, p.IsGroupReady(2), "no geometry at all")
	require.True(t, p.IsGroupReady(3))

	state, ok := p.GroupState(2)
	require.True(t, ok)
	require.Equal(t, Pending, state)

	status := p.Status()
	require.Equal(t, 2, status.Completed)
	require.Equal(t, 3, status.Total)
	require.True(t, status.IsProcessing, "a group without geometry stays pending")
	require.True(t, closed(p.Done()))

	require.Equal(t, 2, logs.FilterMessage("failed to extract unit geometry").Len())
	require.Equal(t, 1, logs.FilterMessage("panic while processing unit").Len())
	require.Equal(t, 1, logs.FilterMessage("group has no geometry, leaving it pending").Len())
}

func TestInitializeReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)

	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	first := f.pipeline.Done()
	f.sched.Drain()
	w1 := f.wireframe(t, 1)
	require.True(t, f.pipeline.Toggle())

	require.NoError(t, f.pipeline.Initialize(ctx, []GroupChildren{{Group: 3, Children: []storage.ItemKey{30}}}))
	require.True(t, closed(first))
	require.True(t, w1.Geometry.Released())
	require.Empty(t, f.root.Children())
	require.False(t, f.pipeline.Enabled())
	require.Equal(t, Status{Total: 1, IsProcessing: true}, f.pipeline.Status())

	f.sched.Drain()
	require.True(t, f.pipeline.IsGroupReady(3))
	require.False(t, f.pipeline.IsGroupReady(1))
}

func TestInitializeCancelsQueuedUnitsOfPreviousRun(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)

	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	require.NoError(t, f.pipeline.Initialize(ctx, []GroupChildren{{Group: 1, Children: []storage.ItemKey{10, 11}}}))

	require.Equal(t, 3, f.sched.Drain(), "the stale unit of the first run is a no-op")
	require.Len(t, f.root.Children(), 1)
	require.Equal(t, Status{Completed: 1, Total: 1, Progress: 1}, f.pipeline.Status())
}

func TestInitializeRejectsDuplicateGroups(t *testing.T) {
	f := newFixture(t, scenarioModel())
	err := f.pipeline.Initialize(context.Background(), []GroupChildren{
		{Group: 1, Children: []storage.ItemKey{10}},
		{Group: 1, Children: []storage.ItemKey{11}},
	})
	require.ErrorIs(t, err, ErrDuplicateGroup)
	require.Zero(t, f.pipeline.GroupCount())
	require.Zero(t, f.sched.Pending())
}

func TestInitializeWithNoQualifyingGroups(t *testing.T) {
	f := newFixture(t, scenarioModel())
	require.NoError(t, f.pipeline.Initialize(context.Background(), []GroupChildren{{Group: 2}}))
	require.Equal(t, Status{}, f.pipeline.Status())
	require.True(t, closed(f.pipeline.Done()))
	require.Zero(t, f.sched.Pending())
}

func TestInitializeFromModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, storagetest.SampleModel())

	require.NoError(t, f.pipeline.InitializeFromModel(ctx))
	require.Equal(t, 2, f.pipeline.Status().Total)
	f.sched.Drain()

	require.True(t, f.pipeline.IsGroupReady(1))
	require.True(t, f.pipeline.IsGroupReady(2))
	require.False(t, f.pipeline.IsGroupReady(3))
}

func TestInitializeFromModelErrors(t *testing.T) {
	ctx := context.Background()
	cache := geomcache.New(geomcache.NewReaderExtractor(memory.New(), logger.NewNoopLogger()))
	defer cache.Close()

	p := New(cache, scene.NewGroup("scene"), WithScheduler(&manualScheduler{}))
	defer p.Dispose()
	require.ErrorIs(t, p.InitializeFromModel(ctx), ErrNoModelReader)

	ctrl := gomock.NewController(t)
	reader := mocks.NewMockModelReader(ctrl)
	boom := errors.New("boom")

	reader.EXPECT().Storeys(gomock.Any()).Return(nil, boom)
	p = New(cache, scene.NewGroup("scene"), WithScheduler(&manualScheduler{}), WithModelReader(reader))
	require.ErrorIs(t, p.InitializeFromModel(ctx), boom)

	reader.EXPECT().Storeys(gomock.Any()).Return([]storage.Storey{{ID: 1}}, nil)
	reader.EXPECT().ChildrenOf(gomock.Any(), storage.GroupKey(1)).Return(nil, boom)
	require.ErrorIs(t, p.InitializeFromModel(ctx), boom)

	reader.EXPECT().Storeys(gomock.Any()).Return([]storage.Storey{{ID: 1}}, nil)
	reader.EXPECT().ChildrenOf(gomock.Any(), storage.GroupKey(1)).Return([]storage.ItemKey{10}, nil)
	reader.EXPECT().WorldTransform(gomock.Any()).Return(geometry.Identity, boom)
	require.NoError(t, p.InitializeFromModel(ctx), "a missing transform falls back to identity")
	require.Equal(t, 1, p.GroupCount())
}

func TestMarkReadyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	f.sched.Drain()

	late := scene.NewLineSegments(WireframeName(1), nil, scene.NewLineMaterial(WireframeColor))
	f.pipeline.mu.Lock()
	gen := f.pipeline.generation
	f.pipeline.mu.Unlock()

	require.False(t, f.pipeline.markReady(gen, 1, late))
	require.True(t, late.Material.Released())
	require.Nil(t, late.Parent())
	require.Len(t, f.root.Children(), 2)

	stale := scene.NewLineSegments(WireframeName(9), nil, scene.NewLineMaterial(WireframeColor))
	require.False(t, f.pipeline.markReady(gen-1, 1, stale))
	require.True(t, stale.Material.Released())
}

func TestConcurrentFocusAndDrain(t *testing.T) {
	ctx := context.Background()
	model := scenarioModel()
	f := newFixture(t, model)
	require.NoError(t, f.pipeline.Initialize(ctx, groupsOf(model)))
	require.True(t, f.pipeline.Toggle())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.pipeline.SetFocus(ctx, 3)
		}()
	}
	f.sched.Drain()
	wg.Wait()

	require.True(t, f.pipeline.IsGroupReady(1))
	require.True(t, f.pipeline.IsGroupReady(3))
	require.Len(t, f.root.Children(), 2, "one wireframe per group")
	require.Equal(t, 2, f.pipeline.ReadyCount())
}
