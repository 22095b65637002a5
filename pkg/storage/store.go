package storage

import (
	"errors"

	"github.com/cuemby/appevent/pkg/types"
)

var (
	// ErrTooManyCustomParams is returned when a custom parameter update would
	// leave more distinct keys on one (running id, domain, name) than allowed.
	ErrTooManyCustomParams = errors.New("too many custom parameters")
)

// Store defines the persistence contract of the event engine
type Store interface {
	// Events
	AppendEvent(ev *types.Event) (id int64, evicted int, err error)
	ListEvents() ([]*types.Event, error)
	CountEvents() (int, error)
	ClearEvents() error
	SetQuota(bytes int64) (evicted int, err error)

	// User info
	SetUserID(name, value string) error
	GetUserID(name string) (string, error)
	DeleteUserID(name string) error
	ListUserIDs() (map[string]string, error)
	SetUserProperty(name, value string) error
	GetUserProperty(name string) (string, error)
	DeleteUserProperty(name string) error
	ListUserProperties() (map[string]string, error)
	ClearUserInfo() error

	// Processors
	NextProcessorID() (int64, error)
	SaveProcessor(rec *types.ProcessorRecord) error
	DeleteProcessor(id int64) error
	ListProcessors() ([]*types.ProcessorRecord, error)

	// Custom event parameters
	UpdateCustomParams(runningID, domain, name string, params map[string]types.Value, limit int) error
	GetCustomParams(runningID, domain, name string) (map[string]types.Value, error)
	ClearCustomParams() error

	// Utility
	Close() error
}
