package watcher

import (
	"slices"

	"github.com/cuemby/appevent/pkg/errcode"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/validate"
)

// Condition sets when buffered rows are reported through OnTrigger. Zero
// fields never fire. Timeout is counted in the registry's timeout unit.
type Condition struct {
	Row     int `json:"row,omitempty" yaml:"row,omitempty"`
	Size    int `json:"size,omitempty" yaml:"size,omitempty"`
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// reached returns the trigger reason for the given totals, or "" if neither
// threshold is met.
func (c Condition) reached(row, size int) string {
	switch {
	case c.Row > 0 && row >= c.Row:
		return "row"
	case c.Size > 0 && size >= c.Size:
		return "size"
	}
	return ""
}

// Filter selects events by domain and, optionally, by type and name
type Filter struct {
	Domain     string            `json:"domain" yaml:"domain"`
	EventTypes []types.EventType `json:"eventTypes,omitempty" yaml:"eventTypes,omitempty"`
	Names      []string          `json:"names,omitempty" yaml:"names,omitempty"`
}

// Match reports whether ev passes the filter
func (f Filter) Match(ev *types.Event) bool {
	if ev.Domain != f.Domain {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, ev.Type) {
		return false
	}
	if len(f.Names) > 0 && !slices.Contains(f.Names, ev.Name) {
		return false
	}
	return true
}

// TriggerFunc receives the row count and byte size accumulated since the
// previous trigger, and the watcher's holder to take packages from.
type TriggerFunc func(curRow, curSize int, holder *Holder)

// EventGroup is the events of one name delivered in a single OnReceive call
type EventGroup struct {
	Name   string
	Events []*types.Event
}

// ReceiveFunc receives matching events as they are written, one call per
// domain per write.
type ReceiveFunc func(domain string, groups []EventGroup)

// Spec describes a watcher registration
type Spec struct {
	Name      string
	Condition Condition
	Filters   []Filter
	OnTrigger TriggerFunc
	OnReceive ReceiveFunc
}

// Validate checks name, condition and filters in that order.
func (s Spec) Validate() error {
	if err := validate.WatcherName(s.Name); err != nil {
		return err
	}
	if s.Condition.Row < 0 {
		return errcode.New(errcode.InvalidCondRow)
	}
	if s.Condition.Size < 0 {
		return errcode.New(errcode.InvalidCondSize)
	}
	if s.Condition.Timeout < 0 {
		return errcode.New(errcode.InvalidCondTimeout)
	}
	for _, f := range s.Filters {
		if err := validate.FilterDomain(f.Domain); err != nil {
			return err
		}
		for _, t := range f.EventTypes {
			if !t.Valid() {
				return errcode.Param("eventTypes", "EventType[]")
			}
		}
	}
	return nil
}

// Match reports whether ev passes any filter of s. A Spec without
// filters matches everything.
func (s Spec) Match(ev *types.Event) bool {
	if len(s.Filters) == 0 {
		return true
	}
	for _, f := range s.Filters {
		if f.Match(ev) {
			return true
		}
	}
	return false
}

// Package is a numbered batch of rows taken from a watcher's buffer
type Package struct {
	PackageID int            `json:"packageId"`
	Row       int            `json:"row"`
	Size      int            `json:"size"`
	Data      []string       `json:"data"`
	Events    []*types.Event `json:"-"`
}

// groupByDomain splits events into per-domain batches, each grouped by name.
// Domains and names keep the order of their first event.
func groupByDomain(evs []*types.Event) ([]string, map[string][]EventGroup) {
	var domains []string
	groups := make(map[string][]EventGroup)
	for _, ev := range evs {
		gs, seen := groups[ev.Domain]
		if !seen {
			domains = append(domains, ev.Domain)
		}
		i := slices.IndexFunc(gs, func(g EventGroup) bool { return g.Name == ev.Name })
		if i < 0 {
			gs = append(gs, EventGroup{Name: ev.Name})
			i = len(gs) - 1
		}
		gs[i].Events = append(gs[i].Events, ev)
		groups[ev.Domain] = gs
	}
	return domains, groups
}
