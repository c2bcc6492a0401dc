package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

func TestPlacementRepositoryInsertBatchInTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	placement := models.Placement{
		ID: "p-1", BatchID: "b-1", SemesterID: "sem-1", Kind: models.TimetableClass, ItemKey: "u-cs/c-1",
		UnitID: "u-cs", UnitCode: "CS101", ClassIDs: []string{"c-1"}, ClassNames: []string{"CS-1A"},
		StudentCount: 38, VenueID: "v1", VenueCode: "LT-1", VenueCapacity: 45, TimeSlotID: "s1", SlotNumber: 1,
		Date: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), StartTime: models.Clock(8, 0), EndTime: models.Clock(10, 0),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO placements")).
		WithArgs("p-1", "b-1", "sem-1", "CLASS_TIMETABLE", "u-cs/c-1", "u-cs", "CS101", "", "{\"c-1\"}", "{\"CS-1A\"}", "",
			38, 0, "v1", "LT-1", 45, "s1", 1, sqlmock.AnyArg(), "08:00:00", "10:00:00", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.InsertBatch(context.Background(), tx, []models.Placement{placement}))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementRepositoryInsertBatchWrapsError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO placements")).WillReturnError(boom)

	err := repo.InsertBatch(context.Background(), nil, []models.Placement{{ItemKey: "u/c"}})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "u/c")
}

func TestPlacementRepositoryListBySemester(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	cols := []string{"id", "batch_id", "semester_id", "kind", "item_key", "unit_id", "unit_code", "unit_name", "class_ids", "class_names",
		"lecturer_code", "student_count", "credit_hours", "venue_id", "venue_code", "venue_capacity", "time_slot_id", "slot_number",
		"scheduled_date", "start_time", "end_time", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow("p-1", "b-1", "sem-1", "CLASS_TIMETABLE", "u-cs/c-1", "u-cs", "CS101", "Programming",
		"{c-1,c-2}", "{CS-1A,CS-1B}", "L1", 70, 3, "v1", "LT-1", 90, "s1", 1, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), "08:00:00", "10:00:00", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM placements WHERE semester_id = $1 AND kind = $2")).
		WithArgs("sem-1", "CLASS_TIMETABLE").
		WillReturnRows(rows)

	placements, err := repo.ListBySemester(context.Background(), "sem-1", models.TimetableClass)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, []string{"c-1", "c-2"}, []string(placements[0].ClassIDs))
	assert.Equal(t, models.Clock(10, 0), placements[0].EndTime)
	assert.Equal(t, "2025-01-06", placements[0].DateKey())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlacementRepositoryCountByBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlacementRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM placements WHERE batch_id = $1")).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountByBatch(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}
