package core

import (
	"context"
	"io"
	"strings"
	"time"
)

// EntityKind identifies a level of the taxonomy hierarchy.
type EntityKind string

const (
	KindMake    EntityKind = "make"
	KindModel   EntityKind = "model"
	KindVariant EntityKind = "variant"
)

// Label returns the lower-case display word used in user messages.
func (k EntityKind) Label() string {
	return string(k)
}

// Child returns the kind one level below k, or "" for variants.
func (k EntityKind) Child() EntityKind {
	switch k {
	case KindMake:
		return KindModel
	case KindModel:
		return KindVariant
	default:
		return ""
	}
}

// Scope is the parent chain of an entity. Makes have an empty scope,
// models carry their make and variants carry both make and model.
//
// Variant ids are only unique below a model, and model ids below a make,
// so the whole chain is part of every key.
type Scope struct {
	MakeID  string
	ModelID string
}

// RootScope is the scope of all makes.
var RootScope = Scope{}

// ParentID returns the id of the immediate parent, or "" for makes.
func (s Scope) ParentID() string {
	if s.ModelID != "" {
		return s.ModelID
	}
	return s.MakeID
}

// ChildScope returns the scope for children of the entity id of kind k
// living in s.
func (s Scope) ChildScope(k EntityKind, id string) Scope {
	switch k {
	case KindMake:
		return Scope{MakeID: id}
	case KindModel:
		return Scope{MakeID: s.MakeID, ModelID: id}
	default:
		return s
	}
}

// EntityKey uniquely identifies a stored entity. The import pipeline also
// uses it as its deduplication key.
type EntityKey struct {
	Kind  EntityKind
	ID    string
	Scope Scope
}

// FuelCategory is the coarse fuel grouping stored on variants.
type FuelCategory string

const (
	FuelPetrol               FuelCategory = "Petrol"
	FuelElectricHybridDiesel FuelCategory = "ElectricHybridDiesel"
	FuelOther                FuelCategory = "Other"
)

var fuelCategories = []FuelCategory{FuelPetrol, FuelElectricHybridDiesel, FuelOther}

// ParseFuelCategory matches s case-insensitively against the known
// categories. Unrecognised text maps to FuelOther.
func ParseFuelCategory(s string) FuelCategory {
	s = strings.TrimSpace(s)
	for _, fc := range fuelCategories {
		if strings.EqualFold(s, string(fc)) {
			return fc
		}
	}
	return FuelOther
}

// VariantData holds the attributes only variants carry.
type VariantData struct {
	FuelCategory   FuelCategory
	EngineSizeInCC *int
}

// Entity is a persisted make, model or variant.
type Entity struct {
	Kind       EntityKind
	ID         string
	Scope      Scope
	Name       string
	CreateDate time.Time

	// Variant is set for KindVariant only.
	Variant *VariantData
}

// Key returns the entity's unique key.
func (e Entity) Key() EntityKey {
	return EntityKey{Kind: e.Kind, ID: e.ID, Scope: e.Scope}
}

// ImportMode selects whether an import writes to the store.
type ImportMode int

const (
	// ImportModeRun validates and persists new entities.
	ImportModeRun ImportMode = iota
	// ImportModeValidate performs every check but writes nothing.
	ImportModeValidate
)

func (m ImportMode) String() string {
	if m == ImportModeValidate {
		return "validate"
	}
	return "run"
}

// JobStatus is the lifecycle state of an import run.
type JobStatus string

const (
	StatusInitializing JobStatus = "Initializing"
	StatusRunning      JobStatus = "Running"
	StatusFinished     JobStatus = "Finished"
	StatusFailed       JobStatus = "Failed"
)

// Clock supplies the current time for CreateDate stamping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c).UTC() }

// FileSource supplies the CSV to import. The stream is read once, front to
// back, and is never assumed to be seekable.
type FileSource interface {
	// RequestID is an opaque identifier used to correlate logs and history.
	RequestID() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Policy holds the taxonomy rules applied by the row mapper and validator.
type Policy struct {
	AcceptedBodyType     string
	MakeNameMaxLength    int
	ModelNameMaxLength   int
	VariantNameMaxLength int
	EngineSizeCeilingCC  int
}

// DefaultPolicy returns the reference limits.
func DefaultPolicy() Policy {
	return Policy{
		AcceptedBodyType:     "Cars",
		MakeNameMaxLength:    50,
		ModelNameMaxLength:   50,
		VariantNameMaxLength: 100,
		EngineSizeCeilingCC:  50000,
	}
}

// nameMaxLength returns the configured name limit for kind.
func (p Policy) nameMaxLength(kind EntityKind) int {
	switch kind {
	case KindMake:
		return p.MakeNameMaxLength
	case KindModel:
		return p.ModelNameMaxLength
	default:
		return p.VariantNameMaxLength
	}
}
