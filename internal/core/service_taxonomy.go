package core

// service_taxonomy.go holds the make/model/variant commands and queries.
//
// Add commands check, in order: basic property rules, that the name yields
// an id, that the parent exists, and that the id is free in its scope.
// Failures come back as validation errors in the response; only store
// failures are returned as Go errors.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	propertyName      = "Name"
	propertyMakeID    = "MakeId"
	propertyModelID   = "ModelId"
	propertyVariantID = "VariantId"

	MsgMakeNotExist    = "Make does not exist."
	MsgModelNotExist   = "Model does not exist."
	MsgMakeNotFound    = "Make could not be found."
	MsgModelNotFound   = "Model could not be found."
	MsgVariantNotFound = "Variant could not be found."
)

// Make is the public view of a make.
type Make struct {
	MakeID string `json:"MakeId"`
	Name   string `json:"Name"`
}

// Model is the public view of a model.
type Model struct {
	ModelID string `json:"ModelId"`
	Name    string `json:"Name"`
}

// Variant is the public view of a variant.
type Variant struct {
	VariantID      string       `json:"VariantId"`
	Name           string       `json:"Name"`
	FuelCategory   FuelCategory `json:"FuelCategory,omitempty"`
	EngineSizeInCC *int         `json:"EngineSizeInCC"`
}

// AddEntityResult carries the id generated for a new entity.
type AddEntityResult struct {
	ID string `json:"Id"`
}

// NewVariant is the input to AddVariant.
type NewVariant struct {
	MakeID         string
	ModelID        string
	Name           string
	FuelCategory   FuelCategory
	EngineSizeInCC *int
}

// ---------------------------------------------------------------------------
// Makes
// ---------------------------------------------------------------------------

func (s *Service) AddMake(ctx context.Context, name string) (CommandResponse[AddEntityResult], error) {
	return s.addEntity(ctx, &rules{}, KindMake, RootScope, name, nil)
}

func (s *Service) IsMakeUnique(ctx context.Context, name string) (CommandResponse[bool], error) {
	return s.isUnique(ctx, &rules{}, KindMake, RootScope, name)
}

func (s *Service) ListMakes(ctx context.Context) (CommandResponse[[]Make], error) {
	entities, err := s.store.List(ctx, KindMake, RootScope)
	if err != nil {
		return CommandResponse[[]Make]{}, fmt.Errorf("list makes: %w", err)
	}

	makes := make([]Make, 0, len(entities))
	for _, e := range entities {
		makes = append(makes, Make{MakeID: e.ID, Name: e.Name})
	}
	return Success(makes), nil
}

// DeleteMake removes a make along with its models and variants.
func (s *Service) DeleteMake(ctx context.Context, makeID string) (CommandResponse[struct{}], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	return s.deleteEntity(ctx, &r, KindMake, makeID, RootScope, propertyMakeID, MsgMakeNotFound)
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

func (s *Service) AddModel(ctx context.Context, makeID, name string) (CommandResponse[AddEntityResult], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	return s.addEntity(ctx, &r, KindModel, Scope{MakeID: makeID}, name, nil)
}

func (s *Service) IsModelUnique(ctx context.Context, makeID, name string) (CommandResponse[bool], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	return s.isUnique(ctx, &r, KindModel, Scope{MakeID: makeID}, name)
}

// ListModels returns the models of a make. An unknown make has no models.
func (s *Service) ListModels(ctx context.Context, makeID string) (CommandResponse[[]Model], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	if !r.valid() {
		return Invalid[[]Model](r.errs...), nil
	}

	entities, err := s.store.List(ctx, KindModel, Scope{MakeID: makeID})
	if err != nil {
		return CommandResponse[[]Model]{}, fmt.Errorf("list models of %s: %w", makeID, err)
	}

	models := make([]Model, 0, len(entities))
	for _, e := range entities {
		models = append(models, Model{ModelID: e.ID, Name: e.Name})
	}
	return Success(models), nil
}

// DeleteModel removes a model along with its variants.
func (s *Service) DeleteModel(ctx context.Context, makeID, modelID string) (CommandResponse[struct{}], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	r.requiredID(propertyModelID, modelID)
	return s.deleteEntity(ctx, &r, KindModel, modelID, Scope{MakeID: makeID}, propertyModelID, MsgModelNotFound)
}

// ---------------------------------------------------------------------------
// Variants
// ---------------------------------------------------------------------------

func (s *Service) AddVariant(ctx context.Context, v NewVariant) (CommandResponse[AddEntityResult], error) {
	var r rules
	r.requiredID(propertyMakeID, v.MakeID)
	r.requiredID(propertyModelID, v.ModelID)
	r.notNegative(propertyEngineSizeInCC, v.EngineSizeInCC)
	r.lessThan(propertyEngineSizeInCC, v.EngineSizeInCC, s.policy.EngineSizeCeilingCC)

	fuel := v.FuelCategory
	if fuel == "" {
		fuel = FuelOther
	}
	data := &VariantData{FuelCategory: fuel, EngineSizeInCC: v.EngineSizeInCC}
	if data.EngineSizeInCC != nil && *data.EngineSizeInCC == 0 {
		data.EngineSizeInCC = nil
	}

	scope := Scope{MakeID: v.MakeID, ModelID: v.ModelID}
	return s.addEntity(ctx, &r, KindVariant, scope, v.Name, data)
}

func (s *Service) IsVariantUnique(ctx context.Context, makeID, modelID, name string) (CommandResponse[bool], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	r.requiredID(propertyModelID, modelID)
	return s.isUnique(ctx, &r, KindVariant, Scope{MakeID: makeID, ModelID: modelID}, name)
}

func (s *Service) ListVariants(ctx context.Context, makeID, modelID string) (CommandResponse[[]Variant], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	r.requiredID(propertyModelID, modelID)
	if !r.valid() {
		return Invalid[[]Variant](r.errs...), nil
	}

	entities, err := s.store.List(ctx, KindVariant, Scope{MakeID: makeID, ModelID: modelID})
	if err != nil {
		return CommandResponse[[]Variant]{}, fmt.Errorf("list variants of %s/%s: %w", makeID, modelID, err)
	}

	variants := make([]Variant, 0, len(entities))
	for _, e := range entities {
		view := Variant{VariantID: e.ID, Name: e.Name}
		if e.Variant != nil {
			view.FuelCategory = e.Variant.FuelCategory
			view.EngineSizeInCC = e.Variant.EngineSizeInCC
		}
		variants = append(variants, view)
	}
	return Success(variants), nil
}

func (s *Service) DeleteVariant(ctx context.Context, makeID, modelID, variantID string) (CommandResponse[struct{}], error) {
	var r rules
	r.requiredID(propertyMakeID, makeID)
	r.requiredID(propertyModelID, modelID)
	r.requiredID(propertyVariantID, variantID)
	scope := Scope{MakeID: makeID, ModelID: modelID}
	return s.deleteEntity(ctx, &r, KindVariant, variantID, scope, propertyVariantID, MsgVariantNotFound)
}

// ---------------------------------------------------------------------------
// Shared steps
// ---------------------------------------------------------------------------

func (s *Service) addEntity(ctx context.Context, r *rules, kind EntityKind, scope Scope, name string, data *VariantData) (CommandResponse[AddEntityResult], error) {
	name = strings.TrimSpace(name)
	r.requiredName(propertyName, name, s.policy.nameMaxLength(kind))
	if !r.valid() {
		return Invalid[AddEntityResult](r.errs...), nil
	}

	id, problem, err := s.checkNewID(ctx, kind, scope, name)
	if err != nil {
		return CommandResponse[AddEntityResult]{}, err
	}
	if problem != nil {
		return Invalid[AddEntityResult](*problem), nil
	}

	entity := Entity{
		Kind:       kind,
		ID:         id,
		Scope:      scope,
		Name:       name,
		CreateDate: s.clock.Now(),
		Variant:    data,
	}
	if err := s.store.Create(ctx, entity); err != nil {
		return CommandResponse[AddEntityResult]{}, fmt.Errorf("create %s %q: %w", kind, id, err)
	}
	return Success(AddEntityResult{ID: id}), nil
}

func (s *Service) isUnique(ctx context.Context, r *rules, kind EntityKind, scope Scope, name string) (CommandResponse[bool], error) {
	name = strings.TrimSpace(name)
	r.requiredName(propertyName, name, s.policy.nameMaxLength(kind))
	if !r.valid() {
		return Invalid[bool](r.errs...), nil
	}

	_, problem, err := s.checkNewID(ctx, kind, scope, name)
	if err != nil {
		return CommandResponse[bool]{}, err
	}
	if problem == nil {
		return Success(true), nil
	}
	if problem.Property == propertyName && problem.Message == MsgNameNotUnique(kind) {
		return Success(false), nil
	}
	return Invalid[bool](*problem), nil
}

// checkNewID formats name into an id and checks that the parent exists and
// that the id is free. A non-nil problem means the name cannot be used.
func (s *Service) checkNewID(ctx context.Context, kind EntityKind, scope Scope, name string) (string, *ValidationError, error) {
	id := FormatID(name)
	if id == "" {
		return "", &ValidationError{Property: propertyName, Message: MsgNameCannotFormatID}, nil
	}

	if problem, err := s.checkParent(ctx, kind, scope); err != nil || problem != nil {
		return "", problem, err
	}

	exists, err := s.store.Exists(ctx, kind, id, scope)
	if err != nil {
		return "", nil, fmt.Errorf("check %s %q: %w", kind, id, err)
	}
	if exists {
		return "", &ValidationError{Property: propertyName, Message: MsgNameNotUnique(kind)}, nil
	}
	return id, nil, nil
}

func (s *Service) checkParent(ctx context.Context, kind EntityKind, scope Scope) (*ValidationError, error) {
	var (
		parentKind  EntityKind
		parentScope Scope
		property    string
		message     string
	)
	switch kind {
	case KindModel:
		parentKind, parentScope, property, message = KindMake, RootScope, propertyMakeID, MsgMakeNotExist
	case KindVariant:
		parentKind, parentScope, property, message = KindModel, Scope{MakeID: scope.MakeID}, propertyModelID, MsgModelNotExist
	default:
		return nil, nil
	}

	exists, err := s.store.Exists(ctx, parentKind, scope.ParentID(), parentScope)
	if err != nil {
		return nil, fmt.Errorf("check parent %s %q: %w", parentKind, scope.ParentID(), err)
	}
	if !exists {
		return &ValidationError{Property: property, Message: message}, nil
	}
	return nil, nil
}

func (s *Service) deleteEntity(ctx context.Context, r *rules, kind EntityKind, id string, scope Scope, property, notFound string) (CommandResponse[struct{}], error) {
	if !r.valid() {
		return Invalid[struct{}](r.errs...), nil
	}

	err := s.store.Delete(ctx, kind, id, scope)
	if errors.Is(err, ErrNotFound) {
		return InvalidProperty[struct{}](property, notFound), nil
	}
	if err != nil {
		return CommandResponse[struct{}]{}, fmt.Errorf("delete %s %q: %w", kind, id, err)
	}
	return Success(struct{}{}), nil
}
