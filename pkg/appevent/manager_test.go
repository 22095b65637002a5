package appevent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/appevent/pkg/config"
	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDomain = "test_domain"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(Options{DataDir: t.TempDir(), TimeoutUnit: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func testEvent(name string, params map[string]types.Value) *types.Event {
	return &types.Event{
		Domain: testDomain,
		Name:   name,
		Type:   types.EventTypeBehavior,
		Params: params,
	}
}

func manyParams(n int) map[string]any {
	params := make(map[string]any, n)
	for i := 0; i < n; i++ {
		params[fmt.Sprintf("key%d", i)] = i
	}
	return params
}

func TestWrite_StoresStampedEvent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	ev := testEvent("click", map[string]types.Value{"x": types.NumberValue(1)})
	require.NoError(t, m.Write(ctx, ev))
	assert.Empty(t, ev.RunningID, "caller's event must not be modified")

	evs, err := m.Events()
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, testDomain, evs[0].Domain)
	assert.Equal(t, "click", evs[0].Name)
	assert.Equal(t, m.RunningID(), evs[0].RunningID)
	assert.False(t, evs[0].Time.IsZero())
	assert.Equal(t, 1.0, evs[0].Params["x"].Number)
}

func TestWriteParams_ValidationCodes(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		event    string
		params   map[string]any
		wantCode string
	}{
		{"valid", testDomain, "event", map[string]any{"k": "v"}, ""},
		{"domain of 32 chars", "a" + strings.Repeat("b", 31), "event", nil, ""},
		{"domain of 33 chars", "a" + strings.Repeat("b", 32), "event", nil, errcode.CodeInvalidDomain},
		{"domain leading digit", "1domain", "event", nil, errcode.CodeInvalidDomain},
		{"domain trailing underscore", "domain_", "event", nil, errcode.CodeInvalidDomain},
		{"empty domain", "", "event", nil, errcode.CodeInvalidDomain},
		{"bad name", testDomain, "1event", nil, errcode.CodeInvalidName},
		{"name of 49 chars", testDomain, "e" + strings.Repeat("v", 48), nil, errcode.CodeInvalidName},
		{"too many params", testDomain, "event", manyParams(33), errcode.CodeInvalidParamNum},
		{"32 params", testDomain, "event", manyParams(32), ""},
		{"bad key", testDomain, "event", map[string]any{"_k": 1}, errcode.CodeInvalidKey},
		{"long string", testDomain, "event", map[string]any{"k": strings.Repeat("a", 8*1024+1)}, errcode.CodeInvalidStrLen},
		{"long array", testDomain, "event", map[string]any{"k": make([]string, 101)}, errcode.CodeInvalidArrLen},
		{"mixed array", testDomain, "event", map[string]any{"k": []any{1, "a"}}, errcode.CodeParam},
		{"nested object", testDomain, "event", map[string]any{"k": map[string]any{}}, errcode.CodeParam},
		{"NaN", testDomain, "event", map[string]any{"v": math.NaN()}, errcode.CodeParam},
		{"infinity", testDomain, "event", map[string]any{"v": math.Inf(1)}, errcode.CodeParam},
		{"NaN in array", testDomain, "event", map[string]any{"v": []any{1.0, math.NaN()}}, errcode.CodeParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)

			err := m.WriteParams(context.Background(), tt.domain, tt.event, types.EventTypeFault, tt.params)
			assert.Equal(t, tt.wantCode, errcode.CodeOf(err))

			n, err := m.CountEvents()
			require.NoError(t, err)
			if tt.wantCode == "" {
				assert.Equal(t, 1, n)
			} else {
				assert.Zero(t, n, "rejected writes must not be stored")
			}
		})
	}
}

func TestWriteParams_NonFiniteNumbersKeepEngineReady(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, v := range []any{math.NaN(), math.Inf(1), math.Inf(-1), []any{1.0, math.NaN()}} {
		err := m.WriteParams(ctx, testDomain, "event", types.EventTypeFault, map[string]any{"v": v})
		assert.Equal(t, errcode.InvalidParamValueType, errcode.KindOf(err), "%v", v)
		assert.Equal(t, 3, errcode.LegacyOf(err))
	}
	assert.Equal(t, 3, m.WriteLegacy(ctx, "event", types.EventTypeFault, map[string]any{"v": math.NaN()}))

	err := m.Write(ctx, testEvent("event", map[string]types.Value{"v": types.NumberValue(math.Inf(-1))}))
	assert.Equal(t, errcode.InvalidParamValueType, errcode.KindOf(err))

	n, err := m.CountEvents()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "ready", metrics.GetReadiness().Status)
}

func TestWriteLegacy(t *testing.T) {
	tests := []struct {
		name      string
		eventName any
		eventType any
		params    any
		want      int
	}{
		{"success", "event", types.EventTypeFault, map[string]any{"k": true}, 0},
		{"numeric type", "event", 4, map[string]any{}, 0},
		{"name not a string", 1, 1, map[string]any{}, errcode.LegacyInvalidArgType},
		{"type not a number", "event", "FAULT", map[string]any{}, errcode.LegacyInvalidArgType},
		{"unknown type", "event", 9, map[string]any{}, errcode.LegacyInvalidArgType},
		{"missing params", "event", 1, nil, errcode.LegacyInvalidArgCount},
		{"params not a map", "event", 1, "k=v", errcode.LegacyInvalidArgType},
		{"bad name", "123event", 1, map[string]any{}, errcode.LegacyInvalidEventName},
		{"bad key", "event", 1, map[string]any{"_k": 1}, errcode.LegacyInvalidParamName},
		{"bad value", "event", 1, map[string]any{"k": map[string]any{}}, errcode.LegacyInvalidValueType},
		{"long string", "event", 1, map[string]any{"k": strings.Repeat("a", 8*1024+1)}, errcode.LegacyInvalidValueLength},
		{"too many params", "event", 1, manyParams(33), errcode.LegacyInvalidParamNum},
		{"long array", "event", 1, map[string]any{"k": make([]float64, 101)}, errcode.LegacyInvalidListSize},
		{"mixed array", "event", 1, map[string]any{"k": []any{true, 1}}, errcode.LegacyInvalidListType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			got := m.WriteLegacy(context.Background(), tt.eventName, tt.eventType, tt.params)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteLegacy_UsesLegacyDomain(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, 0, m.WriteLegacy(context.Background(), "event", 1, map[string]any{}))

	evs, err := m.Events()
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, LegacyDomain, evs[0].Domain)
}

func TestWrite_Disabled(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.ConfigureOptions(map[string]any{"disable": true}))

	err := m.Write(ctx, testEvent("event", nil))
	assert.Equal(t, errcode.CodeDisabled, errcode.CodeOf(err))
	assert.Equal(t, errcode.LegacyDisabled, m.WriteLegacy(ctx, "event", 1, map[string]any{}))

	// disabled wins over validation errors
	err = m.WriteParams(ctx, "1bad", "event", types.EventTypeFault, nil)
	assert.Equal(t, errcode.CodeDisabled, errcode.CodeOf(err))

	require.True(t, m.ConfigureLegacy(map[string]any{"disable": "false"}))
	assert.NoError(t, m.Write(ctx, testEvent("event", nil)))
}

func TestWrite_ContextAndClose(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Write(ctx, testEvent("event", nil)), context.Canceled)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.Write(context.Background(), testEvent("event", nil))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, errcode.Internal, errcode.KindOf(err))
}

func TestWrite_TriggersWatcher(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		rows  []int
		pkgID []int
	)
	_, err := m.AddWatcher(watcher.Spec{
		Name:      "row_watcher",
		Condition: watcher.Condition{Row: 2},
		Filters:   []watcher.Filter{{Domain: testDomain}},
		OnTrigger: func(curRow, curSize int, holder *watcher.Holder) {
			assert.NoError(t, holder.SetSize(curSize))
			pkg := holder.TakeNext()
			mu.Lock()
			defer mu.Unlock()
			rows = append(rows, curRow)
			if pkg != nil {
				pkgID = append(pkgID, pkg.PackageID)
			}
		},
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.Write(ctx, testEvent("event", nil)))
	}
	// other domains do not count
	require.NoError(t, m.WriteParams(ctx, "other", "event", types.EventTypeFault, nil))
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 2}, rows)
	assert.Equal(t, []int{0, 1}, pkgID)
}

func TestWrite_RealtimeOrderAndSelfRemoval(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		names []string
	)
	_, err := m.AddWatcher(watcher.Spec{
		Name: "ordered",
		OnReceive: func(domain string, groups []watcher.EventGroup) {
			mu.Lock()
			defer mu.Unlock()
			for _, g := range groups {
				names = append(names, g.Name)
			}
		},
	})
	require.NoError(t, err)

	calls := 0
	_, err = m.AddWatcher(watcher.Spec{
		Name: "once",
		OnReceive: func(string, []watcher.EventGroup) {
			mu.Lock()
			calls++
			mu.Unlock()
			m.RemoveWatcher("once")
		},
	})
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Write(ctx, testEvent(name, nil)))
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "d"}, names)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"ordered"}, m.Watchers())
}

func TestAddWatcherOptions(t *testing.T) {
	m := newTestManager(t)

	holder, err := m.AddWatcherOptions(map[string]any{
		"name":             "opts",
		"triggerCondition": map[string]any{"row": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "opts", holder.Name())

	_, err = m.AddWatcherOptions(map[string]any{"name": 1})
	assert.Equal(t, errcode.CodeParam, errcode.CodeOf(err))

	_, err = m.AddWatcherOptions(map[string]any{"name": "bad_"})
	assert.Equal(t, errcode.CodeInvalidWatcherName, errcode.CodeOf(err))
}

func TestClearData(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddWatcher(watcher.Spec{Name: "buffered"})
	require.NoError(t, err)
	holder := m.NewPackageHolder("buffered")

	require.NoError(t, m.SetUserID("uid", "user"))
	require.NoError(t, m.SetUserProperty("prop", "value"))
	require.NoError(t, m.SetEventParam(ctx, map[string]any{"c": "v"}, testDomain, ""))
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Write(ctx, testEvent("event", nil)))
	}

	pkg := holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 0, pkg.PackageID)
	pkg = holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 1, pkg.PackageID)

	require.NoError(t, m.ClearData())

	assert.Nil(t, holder.TakeNext())
	n, err := m.CountEvents()
	require.NoError(t, err)
	assert.Zero(t, n)

	uid, err := m.GetUserID("uid")
	require.NoError(t, err)
	assert.Empty(t, uid)
	prop, err := m.GetUserProperty("prop")
	require.NoError(t, err)
	assert.Empty(t, prop)

	require.NoError(t, m.Write(ctx, testEvent("event", nil)))
	pkg = holder.TakeNext()
	require.NotNil(t, pkg)
	assert.Equal(t, 0, pkg.PackageID, "package ids restart after clear")
	assert.NotContains(t, pkg.Data[0], `"c":`, "custom params are cleared")
	assert.Equal(t, []string{"buffered"}, m.Watchers(), "registrations survive clear")
}

func TestClearData_Twice(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, testEvent("event", nil)))
	require.NoError(t, m.ClearData())
	require.NoError(t, m.ClearData())

	n, err := m.CountEvents()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, m.Write(ctx, testEvent("event", nil)))
	n, err = m.CountEvents()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWrite_ConcurrentClearAndDisable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddWatcher(watcher.Spec{Name: "all"})
	require.NoError(t, err)

	const (
		writers   = 6
		perWriter = 25
	)

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results []error
	)
	stop := make(chan struct{})

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				params := map[string]types.Value{"writer": types.NumberValue(float64(w))}
				err := m.Write(ctx, testEvent("event", params))
				resMu.Lock()
				results = append(results, err)
				resMu.Unlock()
			}
		}(w)
	}

	var side sync.WaitGroup
	side.Add(2)
	go func() {
		defer side.Done()
		for {
			select {
			case <-stop:
				return
			default:
				assert.NoError(t, m.ClearData())
			}
		}
	}()
	go func() {
		defer side.Done()
		disable := false
		for {
			select {
			case <-stop:
				return
			default:
				disable = !disable
				d := disable
				assert.NoError(t, m.Configure(config.Options{Disable: &d}))
			}
		}
	}()

	wg.Wait()
	close(stop)
	side.Wait()

	enable := false
	require.NoError(t, m.Configure(config.Options{Disable: &enable}))
	m.Wait()

	require.Len(t, results, writers*perWriter)
	for _, err := range results {
		if err != nil {
			assert.Equal(t, errcode.CodeDisabled, errcode.CodeOf(err))
		}
	}

	// Every stored event is buffered for the watcher and nothing else is.
	stored, err := m.CountEvents()
	require.NoError(t, err)

	holder := m.NewPackageHolder("all")
	require.NoError(t, holder.SetRow(writers*perWriter+1))
	buffered := 0
	if pkg := holder.TakeNext(); pkg != nil {
		buffered = pkg.Row
		assert.Equal(t, 0, pkg.PackageID)
	}
	assert.Equal(t, stored, buffered)
	assert.Nil(t, holder.TakeNext())
}

func TestProcessors(t *testing.T) {
	m := newTestManager(t)

	first, err := m.AddProcessor(types.Processor{Name: "proc", ConfigID: 7})
	require.NoError(t, err)
	again, err := m.AddProcessor(types.Processor{Name: "proc", ConfigID: 7, BatchReport: 10})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	a, err := m.AddProcessor(types.Processor{Name: "plain"})
	require.NoError(t, err)
	b, err := m.AddProcessor(types.Processor{Name: "plain"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	fromOpts, err := m.AddProcessorOptions(map[string]any{"name": "bag", "batchReport": 5})
	require.NoError(t, err)
	assert.Positive(t, fromOpts)

	fromConfig, err := m.AddProcessorFromConfig(context.Background(), "cfg", "")
	require.NoError(t, err)
	assert.Positive(t, fromConfig)

	_, err = m.AddProcessorFromConfig(context.Background(), "cfg", "no_such_bundle")
	assert.Equal(t, errcode.CodeInvalidProcessor, errcode.CodeOf(err))

	assert.Equal(t, 5, m.ProcessorCount())
	require.NoError(t, m.RemoveProcessor(a))
	require.NoError(t, m.RemoveProcessor(a))
	assert.Equal(t, 4, m.ProcessorCount())
	assert.Len(t, m.Processors(), 4)
}

func TestSetEventParam(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetEventParam(ctx, map[string]any{"shared": "domain", "tag": "domain"}, testDomain, ""))
	require.NoError(t, m.SetEventParam(ctx, map[string]any{"tag": "named", "list": []string{"a"}}, testDomain, "event"))

	ev := testEvent("event", map[string]types.Value{"list": types.StringsValue([]string{"own"})})
	require.NoError(t, m.Write(ctx, ev))
	require.NoError(t, m.Write(ctx, testEvent("other", nil)))

	evs, err := m.Events()
	require.NoError(t, err)
	require.Len(t, evs, 2)

	assert.Equal(t, "domain", evs[0].Params["shared"].String)
	assert.Equal(t, "named", evs[0].Params["tag"].String)
	assert.Equal(t, []string{"own"}, evs[0].Params["list"].Strings, "event params win")

	assert.Equal(t, "domain", evs[1].Params["tag"].String)
	assert.NotContains(t, evs[1].Params, "list")
}

func TestSetEventParam_Errors(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		params   map[string]any
		domain   string
		event    string
		wantCode string
	}{
		{"nil params", nil, testDomain, "", errcode.CodeParam},
		{"bad domain", map[string]any{"k": 1}, "1domain", "", errcode.CodeInvalidDomain},
		{"bad name", map[string]any{"k": 1}, testDomain, "event_", errcode.CodeInvalidName},
		{"bad key", map[string]any{"k_": 1}, testDomain, "", errcode.CodeInvalidKey},
		{"number array", map[string]any{"k": []int{1}}, testDomain, "", errcode.CodeParam},
		{"over the key limit", manyParams(65), testDomain, "", errcode.CodeInvalidCustomNum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.SetEventParam(ctx, tt.params, tt.domain, tt.event)
			assert.Equal(t, tt.wantCode, errcode.CodeOf(err))
		})
	}
}

func TestSetEventParam_KeyLimitAcrossCalls(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetEventParam(ctx, manyParams(64), testDomain, "event"))
	// overwriting existing keys stays within the limit
	require.NoError(t, m.SetEventParam(ctx, map[string]any{"key0": "again"}, testDomain, "event"))

	err := m.SetEventParam(ctx, map[string]any{"extra": 1}, testDomain, "event")
	assert.Equal(t, errcode.CodeInvalidCustomNum, errcode.CodeOf(err))

	// the limit is per (domain, name)
	assert.NoError(t, m.SetEventParam(ctx, map[string]any{"extra": 1}, testDomain, "other"))
}

func TestEventConfigAndPolicy(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	code, err := m.SetEventConfig(ctx, "MAIN_THREAD_JANK", map[string]any{"log_type": "0"})
	require.NoError(t, err)
	assert.Zero(t, code)

	_, err = m.SetEventConfig(ctx, "UNKNOWN_EVENT", map[string]any{"log_type": "0"})
	assert.Equal(t, errcode.InvalidEventConfig, errcode.KindOf(err))

	err = m.ConfigEventPolicy(ctx, map[string]any{
		"appCrashPolicy":       map[string]any{"pageSwitchLogEnable": true},
		"mainThreadJankPolicy": map[string]any{"logType": 5},
	})
	assert.Equal(t, errcode.InvalidEventPolicy, errcode.KindOf(err))
	_, applied := m.Config().Policy("appCrashPolicy")
	assert.False(t, applied, "a rejected policy applies no block")

	require.NoError(t, m.ConfigEventPolicy(ctx, map[string]any{
		"appCrashPolicy": map[string]any{"pageSwitchLogEnable": true},
	}))
	policy, ok := m.Config().Policy("appCrashPolicy")
	require.True(t, ok)
	assert.Equal(t, true, policy["pageSwitchLogEnable"])
}

func TestConfigure_Quota(t *testing.T) {
	m := newTestManager(t)

	err := m.ConfigureOptions(map[string]any{"maxStorage": "ten"})
	assert.Equal(t, errcode.CodeInvalidMaxStorage, errcode.CodeOf(err))

	require.NoError(t, m.ConfigureOptions(map[string]any{"max_storage": "10M"}))
	assert.Equal(t, int64(10*1024*1024), m.Config().Quota())

	_, err = New(Options{DataDir: t.TempDir(), MaxStorage: "ten"})
	assert.Error(t, err)
}
