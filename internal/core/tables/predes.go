package tables

import (
	"context"

	"github.com/JonMunkholm/simplestruct/internal/core"
	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/JonMunkholm/simplestruct/internal/resolver"
	"github.com/jackc/pgx/v5/pgtype"
)

// PredesTable is the destination table of the PREDES report.
const PredesTable = "simple_struct_data"

// Reference and scalar fields walked by the PREDES report.
const (
	fieldActivity        = "field_actividad"
	fieldParticipants    = "field_participante"
	fieldSubActivity     = "field_subactividad"
	fieldSubActivityCode = "field_codigo_subactividad"
	fieldSector          = "field_sector"
	fieldActivityCode    = "field_codigo_actividad"
	fieldSex             = "field_sexo"
	fieldDistrict        = "field_distrito"
)

func init() {
	registerPredes()
}

func registerPredes() {
	core.Register(core.ReportDefinition{
		Info: core.TableInfo{
			Key:   PredesTable,
			Group: "PREDES",
			Label: "Event participants",
		},
		RootType: "evento",
		Columns: []core.Column{
			{Name: "root_id", Type: core.ColumnBigInt},
			{Name: "event_title", Type: core.ColumnText, Nullable: true},
			{Name: "sector_name", Type: core.ColumnText, Nullable: true},
			{Name: "activity_code", Type: core.ColumnText, Nullable: true},
			{Name: "sub_activity_code", Type: core.ColumnText, Nullable: true},
			{Name: "activity_title", Type: core.ColumnText, Nullable: true},
			{Name: "sub_activity_value", Type: core.ColumnText, Nullable: true},
			{Name: "participant_title", Type: core.ColumnText, Nullable: true},
			{Name: "participant_sex", Type: core.ColumnText, Nullable: true},
			{Name: "district_name", Type: core.ColumnText, Nullable: true},
		},
		BuildRows: buildPredesRows,
	})
}

// buildPredesRows emits one row per participant of an event. The event-level
// columns are resolved once and repeated on every row.
func buildPredesRows(ctx context.Context, r *resolver.Resolver, event *entity.Entity) ([]core.Row, error) {
	participants := r.AllReferences(ctx, event, fieldParticipants)
	if len(participants) == 0 {
		return nil, nil
	}

	activity := r.SingleReference(ctx, event, fieldActivity)
	eventTitle := r.ScalarField(event, entity.TitleField)
	sector := sectorName(ctx, r, activity)
	code := activityCode(ctx, r, activity)
	subCode := subActivityCode(ctx, r, event)
	activityTitle := r.ScalarField(activity, entity.TitleField)
	subActivity := r.ScalarField(event, fieldSubActivity)

	rows := make([]core.Row, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, core.Row{
			"root_id":            event.ID,
			"event_title":        eventTitle,
			"sector_name":        sector,
			"activity_code":      code,
			"sub_activity_code":  subCode,
			"activity_title":     activityTitle,
			"sub_activity_value": subActivity,
			"participant_title":  r.ScalarField(p, entity.TitleField),
			"participant_sex":    r.ScalarField(p, fieldSex),
			"district_name":      r.ReferencedScalar(ctx, p, fieldDistrict, entity.NameField),
		})
	}
	return rows, nil
}

// sectorName returns the sector term name of an activity. Null for a nil
// activity.
func sectorName(ctx context.Context, r *resolver.Resolver, activity *entity.Entity) pgtype.Text {
	return r.ReferencedScalar(ctx, activity, fieldSector, entity.NameField)
}

// activityCode returns the code term name of an activity.
func activityCode(ctx context.Context, r *resolver.Resolver, activity *entity.Entity) pgtype.Text {
	return r.ReferencedScalar(ctx, activity, fieldActivityCode, entity.NameField)
}

// subActivityCode returns the sub-activity code term name stored on the event.
func subActivityCode(ctx context.Context, r *resolver.Resolver, event *entity.Entity) pgtype.Text {
	return r.ReferencedScalar(ctx, event, fieldSubActivityCode, entity.NameField)
}
