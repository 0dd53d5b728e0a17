package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Messages shared by the import validator and the CRUD commands.
const (
	MsgSlugID               = "Ids should contain only lowercase letters (a-z), numbers or dashes"
	MsgNameCannotFormatID   = "Name does not contain any characters that can be used to create an identifier (letters or numbers)"
	MsgEngineSizeNotANumber = "'Engine Size In CC' must be a whole number."
)

const propertyEngineSizeInCC = "EngineSizeInCC"

// MsgNameNotUnique returns the uniqueness failure message for an entity.
func MsgNameNotUnique(kind EntityKind) string {
	return fmt.Sprintf("A %s with this name already exists. The uniqueness check is based only on letters and numbers.", kind.Label())
}

// rules accumulates validation errors in the order checks are applied.
type rules struct {
	errs []ValidationError
}

func (r *rules) add(property, message string) {
	r.errs = append(r.errs, ValidationError{Property: property, Message: message})
}

func (r *rules) notEmpty(property, value string) bool {
	if strings.TrimSpace(value) == "" {
		r.add(property, fmt.Sprintf("'%s' must not be empty.", displayName(property)))
		return false
	}
	return true
}

func (r *rules) maxLength(property, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		r.add(property, fmt.Sprintf("The length of '%s' must be %d characters or fewer", displayName(property), max))
	}
}

// slugID passes for empty values; pair it with notEmpty.
func (r *rules) slugID(property, value string) {
	if strings.TrimSpace(value) != "" && !IsSlug(value) {
		r.add(property, MsgSlugID)
	}
}

func (r *rules) notNegative(property string, value *int) {
	if value != nil && *value < 0 {
		r.add(property, fmt.Sprintf("'%s' must be greater than or equal to '0'.", displayName(property)))
	}
}

func (r *rules) lessThan(property string, value *int, ceiling int) {
	if value != nil && *value >= ceiling {
		r.add(property, fmt.Sprintf("'%s' must be less than '%d'.", displayName(property), ceiling))
	}
}

func (r *rules) requiredID(property, value string) {
	if r.notEmpty(property, value) {
		r.slugID(property, value)
	}
}

func (r *rules) requiredName(property, value string, max int) {
	if r.notEmpty(property, value) {
		r.maxLength(property, value, max)
	}
}

func (r *rules) valid() bool {
	return len(r.errs) == 0
}

// displayName splits a Go-style property into words:
// "MakeId" -> "Make Id", "EngineSizeInCC" -> "Engine Size In CC".
func displayName(property string) string {
	rs := []rune(property)
	var b strings.Builder
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RowValidator applies the structural rules to mapped rows. It performs no
// store lookups.
type RowValidator struct {
	policy Policy
}

// NewRowValidator creates a validator for policy.
func NewRowValidator(policy Policy) *RowValidator {
	return &RowValidator{policy: policy}
}

// Validate returns every rule violation for row, or nil when the row is
// valid. Ids are never longer than their names, so only names are
// length-checked.
func (v *RowValidator) Validate(row TaxonomyCsvRow) []ValidationError {
	var r rules

	r.requiredID("MakeId", row.MakeID)
	r.requiredName("MakeName", row.MakeName, v.policy.MakeNameMaxLength)

	r.requiredID("ModelId", row.ModelID)
	r.requiredName("ModelName", row.ModelName, v.policy.ModelNameMaxLength)

	r.requiredID("VariantId", row.VariantID)
	r.requiredName("VariantName", row.VariantName, v.policy.VariantNameMaxLength)

	if row.engineSizeText != "" {
		r.add(propertyEngineSizeInCC, MsgEngineSizeNotANumber)
	}
	r.notNegative(propertyEngineSizeInCC, row.EngineSizeInCC)
	r.lessThan(propertyEngineSizeInCC, row.EngineSizeInCC, v.policy.EngineSizeCeilingCC)

	return r.errs
}
