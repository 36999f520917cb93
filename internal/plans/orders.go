package plans

import (
	"strings"

	"github.com/casebridge/dispatch-migrate/internal/migration"
)

// Order statuses of the target schema.
const (
	OrderPending    = "pending"
	OrderInProgress = "in_progress"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// legacyOrderStatus maps dispatch_order.status codes to target statuses.
var legacyOrderStatus = map[string]string{
	"new":         OrderPending,
	"pending":     OrderPending,
	"in_progress": OrderInProgress,
	"processing":  OrderInProgress,
	"shipped":     OrderShipped,
	"delivered":   OrderDelivered,
	"completed":   OrderDelivered,
	"cancelled":   OrderCancelled,
	"canceled":    OrderCancelled,
}

// MapOrderStatus returns the target status for a legacy code. Unknown codes map to
// pending and ok is false.
func MapOrderStatus(legacy string) (status string, ok bool) {
	status, ok = legacyOrderStatus[strings.ToLower(strings.TrimSpace(legacy))]
	if !ok {
		return OrderPending, false
	}
	return status, true
}

// Orders migrates dispatch_order. The patient is required, the doctor optional.
func Orders() *migration.Plan {
	return &migration.Plan{
		Name:        "orders",
		Description: "dispatch_order to orders, linked to patients and doctors",
		Source: migration.SourceSpec{
			Query:     `SELECT id, patient_id, doctor_id, status, total, notes, created_at FROM dispatch_order`,
			KeyColumn: "id",
		},
		Lookups:   []migration.LookupSpec{patientsLookup, doctorsLookup},
		Target:    target("orders", "legacy_id"),
		Transform: transformOrder,
		DependsOn: []string{"patients", "doctors"},
	}
}

func transformOrder(row migration.SourceRow, lookups *migration.Lookups) (migration.Record, error) {
	id := legacyID(row)
	patientLegacyID, ok := row.Int64("patient_id")
	if !ok {
		return nil, migration.Skip("order %d has no patient", id)
	}
	patientID, err := lookups.Resolve(LookupPatients, patientLegacyID)
	if err != nil {
		return nil, err
	}
	doctorID, err := lookups.ResolveOptional(LookupDoctors, row.NullInt64("doctor_id"))
	if err != nil {
		return nil, err
	}
	created, err := createdAt(row, "order", "created_at")
	if err != nil {
		return nil, err
	}

	legacyStatus := row.String("status")
	status, known := MapOrderStatus(legacyStatus)
	meta := map[string]any{"legacy_status": legacyStatus}
	if !known {
		meta["unmapped_status"] = true
	}

	var total *float64
	if v, ok := row.Float64("total"); ok {
		total = &v
	}

	return migration.Record{
		"id":         migration.StableID("orders", id).String(),
		"legacy_id":  id,
		"patient_id": patientID,
		"doctor_id":  doctorID,
		"status":     status,
		"total":      total,
		"notes":      row.TrimmedString("notes"),
		"created_at": created,
		"metadata":   migration.Metadata(meta),
	}, nil
}
