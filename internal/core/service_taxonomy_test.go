package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustAdd wraps an Add* call and returns the new id, failing the test on
// an error or a validation failure.
func mustAdd(t *testing.T) func(CommandResponse[AddEntityResult], error) string {
	return func(resp CommandResponse[AddEntityResult], err error) string {
		t.Helper()
		require.NoError(t, err)
		require.True(t, resp.IsValid, "validation errors: %v", resp.ValidationErrors)
		return resp.Result.ID
	}
}

func TestService_AddMake(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	id := mustAdd(t)(svc.AddMake(ctx, "  Alfa Romeo "))
	assert.Equal(t, "alfa-romeo", id)

	stored, err := store.Get(ctx, KindMake, "alfa-romeo", RootScope)
	require.NoError(t, err)
	assert.Equal(t, "Alfa Romeo", stored.Name)
	assert.Equal(t, testNow, stored.CreateDate)

	tests := []struct {
		name string
		in   string
		want ValidationError
	}{
		{"empty", "  ", ValidationError{Property: "Name", Message: "'Name' must not be empty."}},
		{"too long", strings.Repeat("a", 51), ValidationError{Property: "Name", Message: "The length of 'Name' must be 50 characters or fewer"}},
		{"no id characters", "!!!", ValidationError{Property: "Name", Message: MsgNameCannotFormatID}},
		{"duplicate id", "ALFA-ROMEO", ValidationError{Property: "Name", Message: MsgNameNotUnique(KindMake)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.AddMake(ctx, tt.in)
			require.NoError(t, err)
			assert.False(t, resp.IsValid)
			assert.Equal(t, []ValidationError{tt.want}, resp.ValidationErrors)
		})
	}
}

func TestService_AddModelChecksParent(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	resp, err := svc.AddModel(ctx, "abarth", "124 Spider")
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{{Property: "MakeId", Message: MsgMakeNotExist}}, resp.ValidationErrors)

	resp, err = svc.AddModel(ctx, "Abarth", "")
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{
		{Property: "MakeId", Message: MsgSlugID},
		{Property: "Name", Message: "'Name' must not be empty."},
	}, resp.ValidationErrors)

	mustAdd(t)(svc.AddMake(ctx, "Abarth"))
	assert.Equal(t, "124-spider", mustAdd(t)(svc.AddModel(ctx, "abarth", "124 Spider")))

	// The same model name is free under another make.
	mustAdd(t)(svc.AddMake(ctx, "Fiat"))
	assert.Equal(t, "124-spider", mustAdd(t)(svc.AddModel(ctx, "fiat", "124 Spider")))
}

func TestService_AddVariant(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	mustAdd(t)(svc.AddMake(ctx, "Abarth"))
	mustAdd(t)(svc.AddModel(ctx, "abarth", "595"))

	resp, err := svc.AddVariant(ctx, NewVariant{MakeID: "abarth", ModelID: "500", Name: "Turismo"})
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{{Property: "ModelId", Message: MsgModelNotExist}}, resp.ValidationErrors)

	tooBig := 50000
	resp, err = svc.AddVariant(ctx, NewVariant{MakeID: "abarth", ModelID: "595", Name: "Turismo", EngineSizeInCC: &tooBig})
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{{
		Property: "EngineSizeInCC",
		Message:  "'Engine Size In CC' must be less than '50000'.",
	}}, resp.ValidationErrors)

	negative := -1
	resp, err = svc.AddVariant(ctx, NewVariant{MakeID: "abarth", ModelID: "595", Name: "Turismo", EngineSizeInCC: &negative})
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{{
		Property: "EngineSizeInCC",
		Message:  "'Engine Size In CC' must be greater than or equal to '0'.",
	}}, resp.ValidationErrors)

	zero := 0
	id := mustAdd(t)(svc.AddVariant(ctx, NewVariant{MakeID: "abarth", ModelID: "595", Name: "Turismo 1.4", EngineSizeInCC: &zero}))
	assert.Equal(t, "turismo-1-4", id)

	stored, err := store.Get(ctx, KindVariant, id, Scope{MakeID: "abarth", ModelID: "595"})
	require.NoError(t, err)
	assert.Equal(t, FuelOther, stored.Variant.FuelCategory)
	assert.Nil(t, stored.Variant.EngineSizeInCC)

	list, err := svc.ListVariants(ctx, "abarth", "595")
	require.NoError(t, err)
	require.True(t, list.IsValid)
	assert.Equal(t, []Variant{{VariantID: "turismo-1-4", Name: "Turismo 1.4", FuelCategory: FuelOther}}, list.Result)
}

func TestService_IsUnique(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()
	mustAdd(t)(svc.AddMake(ctx, "BMW"))
	mustAdd(t)(svc.AddModel(ctx, "bmw", "3 Series"))

	resp, err := svc.IsMakeUnique(ctx, "b.m.w")
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.True(t, resp.Result, "b.m.w formats to b-m-w")

	resp, err = svc.IsMakeUnique(ctx, " bmw ")
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.False(t, resp.Result)

	resp, err = svc.IsModelUnique(ctx, "bmw", "3-series")
	require.NoError(t, err)
	assert.False(t, resp.Result)

	resp, err = svc.IsModelUnique(ctx, "audi", "A3")
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, []ValidationError{{Property: "MakeId", Message: MsgMakeNotExist}}, resp.ValidationErrors)

	resp, err = svc.IsVariantUnique(ctx, "bmw", "3-series", "320d M Sport")
	require.NoError(t, err)
	assert.True(t, resp.Result)
}

func TestService_ListAndDelete(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()
	for _, name := range []string{"Volkswagen", "audi", "BMW"} {
		mustAdd(t)(svc.AddMake(ctx, name))
	}
	mustAdd(t)(svc.AddModel(ctx, "volkswagen", "Polo"))
	mustAdd(t)(svc.AddModel(ctx, "volkswagen", "Golf"))
	mustAdd(t)(svc.AddVariant(ctx, NewVariant{MakeID: "volkswagen", ModelID: "golf", Name: "GTI", FuelCategory: FuelPetrol}))

	makes, err := svc.ListMakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Make{
		{MakeID: "audi", Name: "audi"},
		{MakeID: "bmw", Name: "BMW"},
		{MakeID: "volkswagen", Name: "Volkswagen"},
	}, makes.Result)

	models, err := svc.ListModels(ctx, "volkswagen")
	require.NoError(t, err)
	assert.Equal(t, []Model{{ModelID: "golf", Name: "Golf"}, {ModelID: "polo", Name: "Polo"}}, models.Result)

	none, err := svc.ListModels(ctx, "seat")
	require.NoError(t, err)
	assert.True(t, none.IsValid)
	assert.Empty(t, none.Result)

	del, err := svc.DeleteVariant(ctx, "volkswagen", "polo", "gti")
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{{Property: "VariantId", Message: MsgVariantNotFound}}, del.ValidationErrors)

	del, err = svc.DeleteModel(ctx, "volkswagen", "polo")
	require.NoError(t, err)
	assert.True(t, del.IsValid)

	del, err = svc.DeleteMake(ctx, "volkswagen")
	require.NoError(t, err)
	assert.True(t, del.IsValid)

	variants, err := svc.ListVariants(ctx, "volkswagen", "golf")
	require.NoError(t, err)
	assert.Empty(t, variants.Result, "deleting a make removes its variants")

	del, err = svc.DeleteMake(ctx, "volkswagen")
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{{Property: "MakeId", Message: MsgMakeNotFound}}, del.ValidationErrors)

	del, err = svc.DeleteModel(ctx, "", "golf")
	require.NoError(t, err)
	assert.Equal(t, []ValidationError{{Property: "MakeId", Message: "'Make Id' must not be empty."}}, del.ValidationErrors)
}
