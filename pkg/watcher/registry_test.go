package watcher

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDomain = "test_domain"

func testEvent(name string) *types.Event {
	return &types.Event{
		Domain: testDomain,
		Name:   name,
		Type:   types.EventTypeFault,
		Time:   time.UnixMilli(1700000000000),
		Params: map[string]types.Value{"key_int": types.NumberValue(100)},
	}
}

func rowSize(t *testing.T, ev *types.Event) int {
	t.Helper()
	row, err := ev.Row()
	require.NoError(t, err)
	return len(row)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(10 * time.Millisecond)
	t.Cleanup(r.Close)
	return r
}

type trigger struct {
	row, size int
	pkg       *Package
	again     *Package
}

func TestRegistry_AddValidation(t *testing.T) {
	tests := []struct {
		name     string
		spec     Spec
		wantKind errcode.Kind
	}{
		{"valid", Spec{Name: "watcher"}, errcode.OK},
		{"max length name", Spec{Name: "a" + fmt.Sprintf("%031d", 0)}, errcode.OK},
		{"empty name", Spec{Name: ""}, errcode.InvalidWatcherName},
		{"leading underscore", Spec{Name: "_watcher"}, errcode.InvalidWatcherName},
		{"trailing underscore", Spec{Name: "watcher_"}, errcode.InvalidWatcherName},
		{"leading digit", Spec{Name: "123watcher"}, errcode.InvalidWatcherName},
		{"too long", Spec{Name: "a" + fmt.Sprintf("%032d", 0)}, errcode.InvalidWatcherName},
		{"negative row", Spec{Name: "w", Condition: Condition{Row: -1}}, errcode.InvalidCondRow},
		{"negative size", Spec{Name: "w", Condition: Condition{Size: -100}}, errcode.InvalidCondSize},
		{"negative timeout", Spec{Name: "w", Condition: Condition{Timeout: -1}}, errcode.InvalidCondTimeout},
		{"bad filter domain", Spec{Name: "w", Filters: []Filter{{Domain: "123test"}}}, errcode.InvalidFilterDomain},
		{"empty filter domain", Spec{Name: "w", Filters: []Filter{{Domain: ""}}}, errcode.InvalidFilterDomain},
		{"bad event type", Spec{Name: "w", Filters: []Filter{{Domain: "d", EventTypes: []types.EventType{10}}}}, errcode.InvalidArgType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			holder, err := r.Add(tt.spec)
			assert.Equal(t, tt.wantKind, errcode.KindOf(err))
			if tt.wantKind == errcode.OK {
				assert.NotNil(t, holder)
			} else {
				assert.Nil(t, holder)
				assert.Zero(t, r.Len())
			}
		})
	}
}

func TestRegistry_RowTrigger(t *testing.T) {
	r := newTestRegistry(t)
	got := make(chan trigger, 4)

	_, err := r.Add(Spec{
		Name:      "watcher_row",
		Filters:   []Filter{{Domain: testDomain}},
		Condition: Condition{Row: 1},
		OnTrigger: func(curRow, curSize int, holder *Holder) {
			got <- trigger{row: curRow, size: curSize, pkg: holder.TakeNext(), again: holder.TakeNext()}
		},
	})
	require.NoError(t, err)

	r.Dispatch(testEvent("event1"))
	r.Wait()

	require.Len(t, got, 1)
	tr := <-got
	assert.Equal(t, 1, tr.row)
	assert.Greater(t, tr.size, 0)
	require.NotNil(t, tr.pkg)
	assert.Equal(t, 0, tr.pkg.PackageID)
	assert.Equal(t, 1, tr.pkg.Row)
	assert.Equal(t, tr.size, tr.pkg.Size)
	require.Len(t, tr.pkg.Data, 1)
	assert.NotEmpty(t, tr.pkg.Data[0])
	assert.Nil(t, tr.again)
}

func TestRegistry_SizeTrigger(t *testing.T) {
	r := newTestRegistry(t)
	got := make(chan trigger, 4)
	size := rowSize(t, testEvent("event1"))

	_, err := r.Add(Spec{
		Name:      "watcher_size",
		Filters:   []Filter{{Domain: testDomain}},
		Condition: Condition{Row: 10, Size: size + 1},
		OnTrigger: func(curRow, curSize int, holder *Holder) {
			_ = holder.SetSize(curSize)
			got <- trigger{row: curRow, size: curSize, pkg: holder.TakeNext()}
		},
	})
	require.NoError(t, err)

	r.Dispatch(testEvent("event1"))
	r.Dispatch(testEvent("event1"))
	r.Wait()

	require.Len(t, got, 1)
	tr := <-got
	assert.Equal(t, 2, tr.row)
	assert.Equal(t, 2*size, tr.size)
	require.NotNil(t, tr.pkg)
	assert.Equal(t, 0, tr.pkg.PackageID)
	assert.Equal(t, 2, tr.pkg.Row)
	assert.Len(t, tr.pkg.Data, 2)
}

func TestRegistry_TimeoutTrigger(t *testing.T) {
	r := newTestRegistry(t)
	got := make(chan trigger, 4)

	_, err := r.Add(Spec{
		Name:      "watcher_timeout",
		Condition: Condition{Timeout: 2},
		OnTrigger: func(curRow, curSize int, holder *Holder) {
			got <- trigger{row: curRow, size: curSize, pkg: holder.TakeNext()}
		},
	})
	require.NoError(t, err)

	r.Dispatch(testEvent("event1"))

	select {
	case tr := <-got:
		assert.Equal(t, 1, tr.row)
		assert.Greater(t, tr.size, 0)
		require.NotNil(t, tr.pkg)
		assert.Equal(t, 1, tr.pkg.Row)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout trigger did not fire")
	}

	// Nothing undelivered, so the timer stays idle.
	select {
	case <-got:
		t.Fatal("timeout fired without new rows")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestRegistry_RemoveCancelsTimeout(t *testing.T) {
	r := newTestRegistry(t)
	fired := make(chan struct{}, 1)

	_, err := r.Add(Spec{
		Name:      "watcher_cancel",
		Condition: Condition{Timeout: 3},
		OnTrigger: func(int, int, *Holder) { fired <- struct{}{} },
	})
	require.NoError(t, err)

	r.Dispatch(testEvent("event1"))
	r.Remove("watcher_cancel")
	r.Remove("watcher_cancel")

	select {
	case <-fired:
		t.Fatal("removed watcher was triggered")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, r.Names())
}

func TestRegistry_ReAddResetsBuffer(t *testing.T) {
	r := newTestRegistry(t)

	old, err := r.Add(Spec{Name: "watcher"})
	require.NoError(t, err)
	r.Dispatch(testEvent("event1"), testEvent("event2"))

	r.Remove("watcher")
	holder, err := r.Add(Spec{Name: "watcher"})
	require.NoError(t, err)

	assert.Nil(t, holder.TakeNext())
	assert.Nil(t, old.TakeNext())

	r.Dispatch(testEvent("event3"))
	pkg := holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 0, pkg.PackageID)
	assert.Equal(t, "event3", pkg.Events[0].Name)
}

func TestRegistry_ReplaceWithoutRemove(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Add(Spec{Name: "watcher"})
	require.NoError(t, err)
	r.Dispatch(testEvent("event1"))

	holder, err := r.Add(Spec{Name: "watcher"})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Nil(t, holder.TakeNext())
}

func TestRegistry_LookupHolder(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Add(Spec{Name: "watcher"})
	require.NoError(t, err)
	r.Dispatch(testEvent("event1"))

	pkg := r.Lookup("watcher").TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 1, pkg.Row)
	assert.Contains(t, pkg.Data[0], `"key_int":100`)

	assert.Nil(t, r.Lookup("missing").TakeNext())
}

func TestRegistry_ClearResetsPackageIDs(t *testing.T) {
	r := newTestRegistry(t)

	holder, err := r.Add(Spec{Name: "watcher"})
	require.NoError(t, err)
	r.Dispatch(testEvent("a"), testEvent("b"), testEvent("c"))

	require.Equal(t, 0, holder.TakeNext().PackageID)
	require.Equal(t, 1, holder.TakeNext().PackageID)

	r.Clear()
	r.Clear()
	assert.Nil(t, holder.TakeNext())

	r.Dispatch(testEvent("d"))
	pkg := holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 0, pkg.PackageID)
	assert.Equal(t, "d", pkg.Events[0].Name)
}

func TestRegistry_ClearThenSetRow(t *testing.T) {
	r := newTestRegistry(t)
	got := make(chan *Package, 2)
	const testRow = 5

	_, err := r.Add(Spec{
		Name:      "watcher",
		Condition: Condition{Row: testRow},
		OnTrigger: func(curRow, curSize int, holder *Holder) {
			_ = holder.SetRow(testRow)
			got <- holder.TakeNext()
		},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		r.Dispatch(testEvent("before"))
	}
	r.Clear()
	for i := 0; i < testRow; i++ {
		r.Dispatch(testEvent("after"))
	}
	r.Wait()

	require.Len(t, got, 1)
	pkg := <-got
	require.NotNil(t, pkg)
	assert.Len(t, pkg.Data, testRow)
	for _, ev := range pkg.Events {
		assert.Equal(t, "after", ev.Name)
	}
}

func TestHolder_SetSizeAndRow(t *testing.T) {
	r := newTestRegistry(t)
	holder, err := r.Add(Spec{Name: "watcher"})
	require.NoError(t, err)

	for _, n := range []int{0, -1, -100} {
		assert.Equal(t, errcode.InvalidSize, errcode.KindOf(holder.SetSize(n)))
		assert.Equal(t, errcode.InvalidSize, errcode.KindOf(holder.SetRow(n)))
	}

	size := rowSize(t, testEvent("e"))
	r.Dispatch(testEvent("e"), testEvent("e"), testEvent("e"))

	require.NoError(t, holder.SetSize(size-1))
	assert.Nil(t, holder.TakeNext(), "no row fits")

	require.NoError(t, holder.SetSize(2*size))
	pkg := holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 2, pkg.Row)

	// SetRow takes precedence over SetSize once called.
	require.NoError(t, holder.SetRow(5))
	pkg = holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 1, pkg.Row)
	assert.Equal(t, 1, pkg.PackageID)
}

func TestRegistry_OnReceiveOrderAndGrouping(t *testing.T) {
	r := newTestRegistry(t)

	var mu sync.Mutex
	var seen []string
	_, err := r.Add(Spec{
		Name:    "watcher_receive",
		Filters: []Filter{{Domain: testDomain}},
		OnReceive: func(domain string, groups []EventGroup) {
			mu.Lock()
			defer mu.Unlock()
			for _, g := range groups {
				for range g.Events {
					seen = append(seen, domain+"."+g.Name)
				}
			}
		},
	})
	require.NoError(t, err)

	holder := r.Lookup("watcher_receive")
	for i := 0; i < 20; i++ {
		r.Dispatch(testEvent(fmt.Sprintf("event_%d", i%2)))
	}
	r.Dispatch(testEvent("x"), testEvent("y"), testEvent("x"))
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 23)
	for i := 0; i < 20; i++ {
		assert.Equal(t, fmt.Sprintf("%s.event_%d", testDomain, i%2), seen[i])
	}
	assert.Equal(t, []string{testDomain + ".x", testDomain + ".x", testDomain + ".y"}, seen[20:])
	assert.Nil(t, holder.TakeNext(), "real-time watchers do not buffer")
}

func TestRegistry_OnReceiveRemovesItself(t *testing.T) {
	r := newTestRegistry(t)
	calls := make(chan string, 4)

	_, err := r.Add(Spec{
		Name: "watcher_self",
		OnReceive: func(domain string, groups []EventGroup) {
			calls <- groups[0].Name
			r.Remove("watcher_self")
		},
	})
	require.NoError(t, err)

	r.Dispatch(testEvent("first"))
	r.Dispatch(testEvent("second"))

	select {
	case name := <-calls:
		assert.Equal(t, "first", name)
	case <-time.After(2 * time.Second):
		t.Fatal("onReceive not called")
	}
	r.Wait()
	assert.LessOrEqual(t, len(calls), 1)
	assert.Zero(t, r.Len())

	// Dispatch after removal is a no-op.
	r.Dispatch(testEvent("third"))
}

func TestRegistry_TriggerRemovesItself(t *testing.T) {
	r := newTestRegistry(t)
	done := make(chan struct{})

	_, err := r.Add(Spec{
		Name:      "watcher_self",
		Condition: Condition{Row: 1},
		OnTrigger: func(curRow, curSize int, holder *Holder) {
			holder.TakeNext()
			r.Remove("watcher_self")
			assert.Nil(t, holder.TakeNext())
			close(done)
		},
	})
	require.NoError(t, err)

	r.Dispatch(testEvent("e"), testEvent("e"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onTrigger not called")
	}
}

func TestRegistry_ConcurrentDispatchCountsExactly(t *testing.T) {
	r := newTestRegistry(t)

	const writers, perWriter = 8, 50
	var triggered sync.WaitGroup
	var mu sync.Mutex
	totalRows := 0

	triggered.Add(writers * perWriter / 10)
	_, err := r.Add(Spec{
		Name:      "watcher",
		Condition: Condition{Row: 10},
		OnTrigger: func(curRow, curSize int, holder *Holder) {
			mu.Lock()
			totalRows += curRow
			mu.Unlock()
			triggered.Done()
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r.Dispatch(testEvent("e"))
			}
		}()
	}
	wg.Wait()
	triggered.Wait()

	mu.Lock()
	assert.Equal(t, writers*perWriter, totalRows)
	mu.Unlock()

	holder := r.Lookup("watcher")
	require.NoError(t, holder.SetRow(writers*perWriter))
	pkg := holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, writers*perWriter, pkg.Row)
}

func TestSpec_Match(t *testing.T) {
	ev := testEvent("click")

	tests := []struct {
		name    string
		filters []Filter
		want    bool
	}{
		{"no filters", nil, true},
		{"domain only", []Filter{{Domain: testDomain}}, true},
		{"other domain", []Filter{{Domain: "other"}}, false},
		{"type matches", []Filter{{Domain: testDomain, EventTypes: []types.EventType{types.EventTypeFault}}}, true},
		{"type differs", []Filter{{Domain: testDomain, EventTypes: []types.EventType{types.EventTypeBehavior}}}, false},
		{"name matches", []Filter{{Domain: testDomain, Names: []string{"view", "click"}}}, true},
		{"name differs", []Filter{{Domain: testDomain, Names: []string{"view"}}}, false},
		{"any filter", []Filter{{Domain: "other"}, {Domain: testDomain}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Spec{Name: "w", Filters: tt.filters}.Match(ev))
		})
	}
}
