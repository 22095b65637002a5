package watcher

import (
	"sync"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/cuemby/appevent/pkg/types"
)

// Default take settings of a new holder.
const (
	DefaultTakeRow  = 1
	DefaultTakeSize = 512 * 1024
)

// Holder takes packages from one watcher's buffer. By default TakeNext
// returns one row at a time. After SetSize, and as long as SetRow has not
// been called, it returns as many rows as fit in the size instead.
type Holder struct {
	name string
	e    *entry

	mu       sync.Mutex
	takeRow  int
	takeSize int
	hasRow   bool
	hasSize  bool
}

func newHolder(name string, e *entry) *Holder {
	return &Holder{
		name:     name,
		e:        e,
		takeRow:  DefaultTakeRow,
		takeSize: DefaultTakeSize,
	}
}

// Name returns the watcher name the holder was created for
func (h *Holder) Name() string {
	return h.name
}

// SetRow sets the number of rows the next TakeNext returns.
func (h *Holder) SetRow(row int) error {
	if row <= 0 {
		return errcode.New(errcode.InvalidSize)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.takeRow = row
	h.hasRow = true
	return nil
}

// SetSize sets the byte budget the next TakeNext fills. Passing the curSize
// reported to OnTrigger takes exactly the rows of that trigger.
func (h *Holder) SetSize(size int) error {
	if size <= 0 {
		return errcode.New(errcode.InvalidSize)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.takeSize = size
	h.hasSize = true
	return nil
}

// TakeNext removes the oldest rows from the buffer and returns them as a
// package, or nil when nothing is buffered, nothing fits, or the watcher is
// gone.
func (h *Holder) TakeNext() *Package {
	if h.e == nil {
		return nil
	}

	h.mu.Lock()
	bySize := h.hasSize && !h.hasRow
	row, size := h.takeRow, h.takeSize
	h.mu.Unlock()

	e := h.e
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || len(e.rows) == 0 {
		return nil
	}

	n, total := 0, 0
	for _, r := range e.rows {
		if bySize && total+len(r.data) > size {
			break
		}
		if !bySize && n >= row {
			break
		}
		total += len(r.data)
		n++
	}
	if n == 0 {
		e.logger.Debug().Int("takeSize", size).Msg("Next row exceeds take size")
		return nil
	}

	pkg := &Package{
		PackageID: e.packageID,
		Row:       n,
		Size:      total,
		Data:      make([]string, n),
		Events:    make([]*types.Event, n),
	}
	for i, r := range e.rows[:n] {
		pkg.Data[i] = r.data
		pkg.Events[i] = r.event
	}
	e.rows = append(e.rows[:0:0], e.rows[n:]...)
	e.packageID++

	metrics.PackagesTaken.WithLabelValues(e.spec.Name).Inc()
	return pkg
}
