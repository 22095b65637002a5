package types

// EventConfig selects which events a processor reports
type EventConfig struct {
	Domain     string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	IsRealTime bool   `json:"isRealTime,omitempty" yaml:"isRealTime,omitempty"`
}

// Processor describes how and when buffered events are handed to a
// reporting sink. Reporting itself happens outside this module.
type Processor struct {
	Name               string            `json:"name" yaml:"name"`
	DebugMode          bool              `json:"debugMode,omitempty" yaml:"debugMode,omitempty"`
	RouteInfo          string            `json:"routeInfo,omitempty" yaml:"routeInfo,omitempty"`
	AppID              string            `json:"appId,omitempty" yaml:"appId,omitempty"`
	OnStartReport      bool              `json:"onStartReport,omitempty" yaml:"onStartReport,omitempty"`
	OnBackgroundReport bool              `json:"onBackgroundReport,omitempty" yaml:"onBackgroundReport,omitempty"`
	PeriodReport       int               `json:"periodReport,omitempty" yaml:"periodReport,omitempty"` // seconds
	BatchReport        int               `json:"batchReport,omitempty" yaml:"batchReport,omitempty"`   // rows
	UserIDs            []string          `json:"userIds,omitempty" yaml:"userIds,omitempty"`
	UserProperties     []string          `json:"userProperties,omitempty" yaml:"userProperties,omitempty"`
	EventConfigs       []EventConfig     `json:"eventConfigs,omitempty" yaml:"eventConfigs,omitempty"`
	ConfigID           int               `json:"configId,omitempty" yaml:"configId,omitempty"`
	CustomConfigs      map[string]string `json:"customConfigs,omitempty" yaml:"customConfigs,omitempty"`
	ConfigName         string            `json:"configName,omitempty" yaml:"configName,omitempty"`
}

// ProcessorRecord is a registered processor as persisted by the store.
type ProcessorRecord struct {
	ID        int64     `json:"id"`
	Inert     bool      `json:"inert,omitempty"` // registered with an invalid name
	Processor Processor `json:"processor"`
}
