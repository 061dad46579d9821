package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jknair0/beforeeach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sqlDB *sql.DB
	mock  sqlmock.Sqlmock
	repo  *Gorm
)

func setUp() {
	sqlDB, mock, _ = sqlmock.New()
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}
	repo = NewGorm(gdb)
}

func tearDown() {
	sqlDB.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func TestGormNextPendingTaskEmptyQueue(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE .*task_type = .*ORDER BY priority DESC.*created_at ASC.*FOR UPDATE SKIP LOCKED`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := repo.InTx(context.Background(), func(tx Tx) error {
			_, err := tx.NextPendingTask("reported_content")
			return err
		})

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormGetTaskLocksRow(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE id = .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "task_type", "status", "checkout_user_id"}).
				AddRow("reported_content-post_1", "reported_content", "checkedOut", "worker-1"))
		mock.ExpectCommit()

		var task *models.Task
		err := repo.InTx(context.Background(), func(tx Tx) error {
			var err error
			task, err = tx.GetTask("reported_content-post_1")
			return err
		})

		require.NoError(t, err)
		assert.True(t, task.HeldBy("worker-1"))
		assert.False(t, task.HeldBy("worker-2"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormConflictIsTranslated(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := repo.InTx(context.Background(), func(tx Tx) error {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
		})

		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormApplyPrioritiesSingleTransaction(t *testing.T) {
	it(func() {
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "tasks" SET .*priority`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "tasks" SET .*priority`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.ApplyPriorities(context.Background(), []PriorityUpdate{
			{TaskID: "a", Priority: 3, UpdatedAt: now},
			{TaskID: "b", Priority: 4, UpdatedAt: now},
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCountTasksByStatus(t *testing.T) {
	it(func() {
		mock.ExpectQuery(`SELECT status, count\(\*\) AS count FROM "tasks" WHERE task_type = .*GROUP BY .*status`).
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
				AddRow("pending", 4).
				AddRow("checkedOut", 1))

		counts, err := repo.CountTasksByStatus(context.Background(), "reported_content")

		require.NoError(t, err)
		assert.Equal(t, int64(4), counts[models.TaskPending])
		assert.Equal(t, int64(1), counts[models.TaskCheckedOut])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormMergeReportGroupUpsert(t *testing.T) {
	it(func() {
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "report_groups" .*ON CONFLICT \("group_key"\) DO UPDATE SET ` +
			`.*"highest_reason_score"\s*=\s*GREATEST\(report_groups\.highest_reason_score, excluded\.highest_reason_score\)` +
			`.*"reported_user_id"\s*=\s*COALESCE\(report_groups\.reported_user_id, excluded\.reported_user_id\)` +
			`.*"reported_username"\s*=\s*COALESCE\(report_groups\.reported_username, excluded\.reported_username\)` +
			`.*"total_reports"\s*=\s*report_groups\.total_reports \+ 1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT \* FROM "report_groups" WHERE group_key = `).
			WillReturnRows(sqlmock.NewRows([]string{"group_key", "total_reports", "highest_reason_score"}).
				AddRow("post_42", 3, 20.0))
		mock.ExpectCommit()

		var group *models.ReportGroup
		err := repo.InTx(context.Background(), func(tx Tx) error {
			var err error
			group, err = tx.MergeReportGroup(&models.ReportGroup{
				GroupKey:           "post_42",
				ReportedItemID:     "42",
				ReportedItemType:   "post",
				TotalReports:       1,
				HighestReasonScore: 5,
				LastReportAt:       now,
				Status:             models.GroupStatusPending,
			})
			return err
		})

		require.NoError(t, err)
		assert.Equal(t, 3, group.TotalReports)
		assert.Equal(t, 20.0, group.HighestReasonScore)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCreateReportReportsInsertion(t *testing.T) {
	it(func() {
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "reports" .*ON CONFLICT DO NOTHING`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
		mock.ExpectQuery(`INSERT INTO "reports" .*ON CONFLICT DO NOTHING`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		var first, second bool
		err := repo.InTx(context.Background(), func(tx Tx) error {
			var err error
			if first, err = tx.CreateReport(&models.Report{ID: id, Reason: "spam", ReportedItemID: "42", ReportedItemType: "post"}); err != nil {
				return err
			}
			second, err = tx.CreateReport(&models.Report{ID: id, Reason: "spam", ReportedItemID: "42", ReportedItemType: "post"})
			return err
		})

		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormAppendActivityIgnoresExistingID(t *testing.T) {
	it(func() {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "activity_log" .*ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.InTx(context.Background(), func(tx Tx) error {
			return tx.AppendActivity(&models.ActivityLogEntry{
				ID:          "abc",
				AdminUserID: "admin-1",
				Action:      models.ActionRelease,
				TaskType:    "reported_content",
				TaskID:      "reported_content-post_42",
				Timestamp:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			})
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormExpiredLeasesSkipsLockedRows(t *testing.T) {
	it(func() {
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE .*task_type = .*status = .*checkout_expires_at < .*` +
			`ORDER BY checkout_expires_at ASC LIMIT .*FOR UPDATE SKIP LOCKED`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "task_type", "status"}).
				AddRow("reported_content-post_1", "reported_content", "checkedOut"))
		mock.ExpectCommit()

		var tasks []models.Task
		err := repo.InTx(context.Background(), func(tx Tx) error {
			var err error
			tasks, err = tx.ExpiredLeases("reported_content", now, 100)
			return err
		})

		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, models.TaskCheckedOut, tasks[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
