package plans

import (
	"github.com/casebridge/dispatch-migrate/internal/migration"
)

// Comment parent types. dispatch_comment points at its parent through
// django_content_type, so the target keeps one nullable column per parent kind.
const (
	ParentOrder   = "order"
	ParentPatient = "patient"
)

const dispatchAppLabel = "dispatch"

// Comments migrates dispatch_comment. The parent is resolved by content-type model;
// comments on other models are skipped.
func Comments() *migration.Plan {
	return &migration.Plan{
		Name:        "comments",
		Description: "dispatch_comment to comments, resolving the content-type parent",
		Source: migration.SourceSpec{
			Query: `SELECT c.id, c.user_id, c.content_type_id, c.object_id, c.body, c.created_at,
				ct.app_label, ct.model
				FROM dispatch_comment c
				LEFT JOIN django_content_type ct ON ct.id = c.content_type_id`,
			KeyColumn: "id",
		},
		Lookups:   []migration.LookupSpec{profilesLookup, ordersLookup, patientsLookup},
		Target:    target("comments", "legacy_id"),
		Transform: transformComment,
		DependsOn: []string{"profiles", "orders", "patients"},
	}
}

func transformComment(row migration.SourceRow, lookups *migration.Lookups) (migration.Record, error) {
	id := legacyID(row)
	contentTypeID, _ := row.Int64("content_type_id")
	if row.IsNull("model") {
		return nil, migration.Skip("comment %d has unknown content type %d", id, contentTypeID)
	}
	if app := row.String("app_label"); app != dispatchAppLabel {
		return nil, migration.Skip("comment %d is attached to %s.%s", id, app, row.String("model"))
	}

	objectID, ok := row.Int64("object_id")
	if !ok {
		return nil, migration.Skip("comment %d has no parent object", id)
	}

	var orderID, patientID *string
	parent := row.String("model")
	switch parent {
	case ParentOrder:
		resolved, err := lookups.Resolve(LookupOrders, objectID)
		if err != nil {
			return nil, err
		}
		orderID = &resolved
	case ParentPatient:
		resolved, err := lookups.Resolve(LookupPatients, objectID)
		if err != nil {
			return nil, err
		}
		patientID = &resolved
	default:
		return nil, migration.Skip("comment %d is attached to unsupported model %s", id, parent)
	}

	userID, ok := row.Int64("user_id")
	if !ok {
		return nil, migration.Skip("comment %d has no author", id)
	}
	authorID, err := lookups.Resolve(LookupProfiles, userID)
	if err != nil {
		return nil, err
	}

	body := row.TrimmedString("body")
	if body == nil {
		return nil, migration.Skip("comment %d has an empty body", id)
	}
	created, err := createdAt(row, "comment", "created_at")
	if err != nil {
		return nil, err
	}

	return migration.Record{
		"id":          migration.StableID("comments", id).String(),
		"legacy_id":   id,
		"author_id":   authorID,
		"parent_type": parent,
		"order_id":    orderID,
		"patient_id":  patientID,
		"body":        *body,
		"created_at":  created,
		"metadata": migration.Metadata(map[string]any{
			"legacy_content_type_id": contentTypeID,
			"legacy_object_id":       objectID,
		}),
	}, nil
}
