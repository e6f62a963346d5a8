package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/everstacklabs/modelwatch/internal/dataset"
)

// HasMaterialChange decides whether a freshly validated candidate differs
// from the currently published record in any observable field. Pure and
// deterministic.
//
// No existing record always counts as a change (first publish). When both
// records carry the same source hash the raw payload is byte-identical and
// the candidate is unchanged. When hashes differ, the field-level diff has
// the final word: a hash mismatch with no observable field difference is
// formatting-only noise and reported as unchanged.
func HasMaterialChange(existing, candidate *dataset.ModelRecord) bool {
	if existing == nil {
		return true
	}
	if existing.SourceHash != "" && existing.SourceHash == candidate.SourceHash {
		return false
	}
	return len(FieldChanges(existing, candidate)) > 0
}

// FieldChanges computes the observable field differences between an existing
// record and a candidate. Used for change detection, run reporting, and the
// publish body.
func FieldChanges(existing, candidate *dataset.ModelRecord) []dataset.FieldChange {
	var changes []dataset.FieldChange

	// First publish: every candidate field is a change against the empty
	// record.
	if existing == nil {
		existing = &dataset.ModelRecord{}
	}

	if existing.DisplayName != candidate.DisplayName {
		changes = append(changes, dataset.FieldChange{Field: "display_name", OldValue: existing.DisplayName, NewValue: candidate.DisplayName})
	}
	if existing.Version != candidate.Version {
		changes = append(changes, dataset.FieldChange{Field: "version", OldValue: existing.Version, NewValue: candidate.Version})
	}
	if existing.ContextWindowTokens != candidate.ContextWindowTokens {
		changes = append(changes, dataset.FieldChange{Field: "context_window_tokens", OldValue: existing.ContextWindowTokens, NewValue: candidate.ContextWindowTokens})
	}
	if existing.DocsURL != candidate.DocsURL {
		changes = append(changes, dataset.FieldChange{Field: "docs_url", OldValue: existing.DocsURL, NewValue: candidate.DocsURL})
	}

	changes = append(changes, pricingChanges(existing.Pricing, candidate.Pricing)...)

	return changes
}

// pricingChanges compares pricing maps per usage class: changed values,
// added classes, and removed classes all count.
func pricingChanges(existing, candidate map[string]dataset.Price) []dataset.FieldChange {
	var changes []dataset.FieldChange

	classes := make(map[string]bool, len(existing)+len(candidate))
	for class := range existing {
		classes[class] = true
	}
	for class := range candidate {
		classes[class] = true
	}

	ordered := make([]string, 0, len(classes))
	for class := range classes {
		ordered = append(ordered, class)
	}
	sort.Strings(ordered)

	for _, class := range ordered {
		oldPrice, hadOld := existing[class]
		newPrice, hasNew := candidate[class]

		field := "pricing." + class
		switch {
		case hadOld && !hasNew:
			changes = append(changes, dataset.FieldChange{Field: field, OldValue: oldPrice.String(), NewValue: nil})
		case !hadOld && hasNew:
			changes = append(changes, dataset.FieldChange{Field: field, OldValue: nil, NewValue: newPrice.String()})
		case !oldPrice.Equal(newPrice.Decimal):
			changes = append(changes, dataset.FieldChange{Field: field, OldValue: oldPrice.String(), NewValue: newPrice.String()})
		}
	}

	return changes
}

// RenderChanges formats field changes for logs and publish bodies.
func RenderChanges(modelID string, changes []dataset.FieldChange) string {
	if len(changes) == 0 {
		return fmt.Sprintf("%s: no changes", modelID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", modelID)
	for _, c := range changes {
		fmt.Fprintf(&b, "  %s: %v -> %v\n", c.Field, renderValue(c.OldValue), renderValue(c.NewValue))
	}
	return b.String()
}

func renderValue(v any) any {
	if v == nil {
		return "(none)"
	}
	return v
}
