package errcode

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind is the canonical result of a validation or API check. Both the legacy
// numeric surface and the structured string surface are rendered from it.
type Kind int

const (
	OK Kind = iota
	InvalidEventName
	InvalidArgType
	InvalidArgCount
	InvalidDomain
	Disabled
	InvalidParamName
	InvalidParamValueType
	InvalidStringLength
	InvalidParamNum
	InvalidArrayLength
	InvalidArrayType
	InvalidCustomParamNum
	InvalidWatcherName
	InvalidFilterDomain
	InvalidCondRow
	InvalidCondSize
	InvalidCondTimeout
	InvalidMaxStorage
	InvalidSize
	InvalidProcessorName
	InvalidEventConfig
	InvalidEventPolicy
	Internal
)

// Legacy result codes.
const (
	LegacySuccess            = 0
	LegacyInvalidEventName   = -1
	LegacyInvalidArgType     = -2
	LegacyInvalidArgCount    = -3
	LegacyInvalidDomain      = -4
	LegacyDisabled           = -99
	LegacyUnknown            = -100
	LegacyInvalidParamName   = 1
	LegacyInvalidKeyType     = 2 // reserved, unreachable with string keys
	LegacyInvalidValueType   = 3
	LegacyInvalidValueLength = 4
	LegacyInvalidParamNum    = 5
	LegacyInvalidListSize    = 6
	LegacyInvalidListType    = 7
	LegacyInvalidCustomNum   = 9
)

// Structured error codes.
const (
	CodeParam               = "401"
	CodeInternal            = "11100000"
	CodeDisabled            = "11100001"
	CodeInvalidDomain       = "11101001"
	CodeInvalidName         = "11101002"
	CodeInvalidParamNum     = "11101003"
	CodeInvalidStrLen       = "11101004"
	CodeInvalidKey          = "11101005"
	CodeInvalidArrLen       = "11101006"
	CodeInvalidCustomNum    = "11101007"
	CodeInvalidWatcherName  = "11102001"
	CodeInvalidFilterDomain = "11102002"
	CodeInvalidCondRow      = "11102003"
	CodeInvalidCondSize     = "11102004"
	CodeInvalidCondTimeout  = "11102005"
	CodeInvalidMaxStorage   = "11103001"
	CodeInvalidSize         = "11104001"
	CodeInvalidProcessor    = "11105001"
)

type rendering struct {
	legacy  int
	code    string
	message string
}

var renderings = map[Kind]rendering{
	OK:                    {LegacySuccess, "", "Success."},
	InvalidEventName:      {LegacyInvalidEventName, CodeInvalidName, "Invalid event name. Possible causes: 1. Contain invalid characters; 2. Length is invalid."},
	InvalidArgType:        {LegacyInvalidArgType, CodeParam, "Parameter error. Possible causes: 1. Mandatory parameters are left unspecified; 2. Incorrect parameter types; 3.Parameter verification failed."},
	InvalidArgCount:       {LegacyInvalidArgCount, CodeParam, "Parameter error. Possible causes: 1. Mandatory parameters are left unspecified; 2. Incorrect parameter types; 3.Parameter verification failed."},
	InvalidDomain:         {LegacyInvalidDomain, CodeInvalidDomain, "Invalid event domain. Possible causes: 1. Contain invalid characters; 2. Length is invalid."},
	Disabled:              {LegacyDisabled, CodeDisabled, "Function disabled. Possible caused by the param disable in ConfigOption is true."},
	InvalidParamName:      {LegacyInvalidParamName, CodeInvalidKey, "Invalid event parameter name. Possible causes: 1. Contain invalid characters; 2. Length is invalid."},
	InvalidParamValueType: {LegacyInvalidValueType, CodeParam, "Parameter error. The type of param value must be boolean|number|string|array[boolean|number|string]."},
	InvalidStringLength:   {LegacyInvalidValueLength, CodeInvalidStrLen, "Invalid string length of the event parameter."},
	InvalidParamNum:       {LegacyInvalidParamNum, CodeInvalidParamNum, "Invalid number of event parameters. Possible caused by the number of parameters is over 32."},
	InvalidArrayLength:    {LegacyInvalidListSize, CodeInvalidArrLen, "Invalid array length of the event parameter."},
	InvalidArrayType:      {LegacyInvalidListType, CodeParam, "Parameter error. The type of param value must be boolean|number|string|array[boolean|number|string]."},
	InvalidCustomParamNum: {LegacyInvalidCustomNum, CodeInvalidCustomNum, "The number of parameter keys exceeds the limit."},
	InvalidWatcherName:    {LegacyUnknown, CodeInvalidWatcherName, "Invalid watcher name. Possible causes: 1. Contain invalid characters; 2. Length is invalid."},
	InvalidFilterDomain:   {LegacyUnknown, CodeInvalidFilterDomain, "Invalid filtering event domain. Possible causes: 1. Contain invalid characters; 2. Length is invalid."},
	InvalidCondRow:        {LegacyUnknown, CodeInvalidCondRow, "Invalid row value. Possible caused by the row value is less than zero."},
	InvalidCondSize:       {LegacyUnknown, CodeInvalidCondSize, "Invalid size value. Possible caused by the size value is less than zero."},
	InvalidCondTimeout:    {LegacyUnknown, CodeInvalidCondTimeout, "Invalid timeout value. Possible caused by the timeout value is less than zero."},
	InvalidMaxStorage:     {LegacyUnknown, CodeInvalidMaxStorage, "Invalid max storage quota value. Possible caused by incorrectly formatted."},
	InvalidSize:           {LegacyUnknown, CodeInvalidSize, "Invalid size value. Possible caused by the size value is less than or equal to zero."},
	InvalidProcessorName:  {LegacyUnknown, CodeInvalidProcessor, "Invalid processor name."},
	InvalidEventConfig:    {LegacyUnknown, CodeParam, "Invalid param value for event config."},
	InvalidEventPolicy:    {LegacyUnknown, CodeParam, "Invalid param value type for event policy."},
	Internal:              {LegacyUnknown, CodeInternal, "Internal error."},
}

// Error is a structured API error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the structured string code, e.g. "11101001".
func (e *Error) Code() string {
	return renderings[e.Kind].code
}

// Legacy returns the numeric result code of the older API.
func (e *Error) Legacy() int {
	return Legacy(e.Kind)
}

// Is matches two errors of the same kind so callers can compare against
// New(kind) with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New returns an error of the given kind with its default message.
func New(kind Kind) *Error {
	return &Error{Kind: kind, Message: renderings[kind].message}
}

// Wrap returns an error of the given kind carrying cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: renderings[kind].message, Err: cause}
}

// Param builds a "401" error naming the offending parameter and its type.
func Param(name, wantType string) *Error {
	return &Error{
		Kind:    InvalidArgType,
		Message: "Parameter error. The type of " + name + " must be " + wantType + ".",
	}
}

// Mandatory builds a "401" error for a missing required parameter.
func Mandatory(name string) *Error {
	return &Error{
		Kind:    InvalidArgCount,
		Message: "Parameter error. The " + name + " parameter is mandatory.",
	}
}

// Invalid builds a "401" error for a parameter whose value failed validation.
func Invalid(name string) *Error {
	return &Error{
		Kind:    InvalidArgType,
		Message: "Parameter error. The " + name + " parameter is invalid.",
	}
}

// Legacy returns the numeric code for kind.
func Legacy(kind Kind) int {
	r, ok := renderings[kind]
	if !ok {
		return LegacyUnknown
	}
	return r.legacy
}

// KindOf extracts the Kind from err. A nil error is OK; foreign errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// LegacyOf returns the numeric code for any error.
func LegacyOf(err error) int {
	return Legacy(KindOf(err))
}

// CodeOf returns the structured code for any error, "" for nil. Foreign
// errors render as CodeInternal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return CodeInternal
}

// CodeNumber returns the structured code as an integer, for callers that
// report codes numerically.
func CodeNumber(err error) int {
	n, _ := strconv.Atoi(CodeOf(err))
	return n
}
