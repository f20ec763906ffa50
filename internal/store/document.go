package store

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// numbers decode as json.Number so large integers survive a round trip
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Scope types a document can be attached to
const (
	ScopeGlobal = "global"
	ScopeRoute  = "route"
	ScopePage   = "page"
)

// ValidScope reports whether t is a known scope type
func ValidScope(t string) bool {
	switch t {
	case ScopeGlobal, ScopeRoute, ScopePage:
		return true
	}
	return false
}

// Document is one immutable version of a component configuration for a
// single scope.
type Document struct {
	Tenant       string `json:"tenant"`
	Env          string `json:"env"`
	ComponentKey string `json:"componentKey"`
	ScopeType    string `json:"scopeType"`
	ScopeKey     string `json:"scopeKey"`
	Version      int    `json:"version"`
	// Value is a JSON object for documents written by this service. Older
	// store files may hold arrays or scalars, which replace when merged.
	Value interface{} `json:"value"`
	// CreatedAt is unix seconds with fractional part
	CreatedAt float64 `json:"createdAt"`
	CreatedBy string  `json:"createdBy"`
}

// Created returns CreatedAt as a time
func (d Document) Created() time.Time {
	sec := int64(d.CreatedAt)
	nsec := int64((d.CreatedAt - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Timestamp converts t to the CreatedAt representation
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Filter selects documents. Empty fields match everything.
type Filter struct {
	Tenant       string
	Env          string
	ComponentKey string
	ScopeType    string
	ScopeKey     string
}

// Match reports whether d is selected by f
func (f Filter) Match(d *Document) bool {
	return (f.Tenant == "" || f.Tenant == d.Tenant) &&
		(f.Env == "" || f.Env == d.Env) &&
		(f.ComponentKey == "" || f.ComponentKey == d.ComponentKey) &&
		(f.ScopeType == "" || f.ScopeType == d.ScopeType) &&
		(f.ScopeKey == "" || f.ScopeKey == d.ScopeKey)
}
