package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLSTATE codes that mean "another transaction got there first".
var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"23505": true, // unique_violation
	"55P03": true, // lock_not_available
}

type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (r *Gorm) InTx(ctx context.Context, fn func(tx Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	return translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Gorm) GetReportGroups(ctx context.Context, keys []string) (map[string]models.ReportGroup, error) {
	result := make(map[string]models.ReportGroup, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	var groups []models.ReportGroup
	if err := r.db.WithContext(ctx).Where("group_key IN ?", keys).Find(&groups).Error; err != nil {
		return nil, err
	}
	for _, g := range groups {
		result[g.GroupKey] = g
	}
	return result, nil
}

func (r *Gorm) PendingTasksAfter(ctx context.Context, taskType, afterID string, limit int) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Where("status = ?", models.TaskPending)
	if taskType != "" {
		query = query.Where("task_type = ?", taskType)
	}
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}

	var tasks []models.Task
	if err := query.Order("id ASC").Limit(limit).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *Gorm) ApplyPriorities(ctx context.Context, updates []PriorityUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Model(&models.Task{}).
				Where("id = ?", u.TaskID).
				Updates(map[string]interface{}{
					"priority":        u.Priority,
					"last_updated_at": u.UpdatedAt,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err)
}

func (r *Gorm) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&task).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (r *Gorm) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error) {
	var tasks []models.Task
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Task{})
	if filter.TaskType != "" {
		query = query.Where("task_type = ?", filter.TaskType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("priority DESC").Order("created_at ASC").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *Gorm) CountTasksByStatus(ctx context.Context, taskType string) (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus
		Count  int64
	}
	query := r.db.WithContext(ctx).Model(&models.Task{}).Select("status, count(*) AS count")
	if taskType != "" {
		query = query.Where("task_type = ?", taskType)
	}
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *Gorm) ListActivity(ctx context.Context, filter ActivityFilter) ([]models.ActivityLogEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.ActivityLogEntry{})
	if filter.TaskID != "" {
		query = query.Where("task_id = ?", filter.TaskID)
	}
	if filter.AdminUserID != "" {
		query = query.Where("admin_user_id = ?", filter.AdminUserID)
	}

	var entries []models.ActivityLogEntry
	if err := query.Order("timestamp DESC").Limit(filter.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Gorm) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *Gorm) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) CreateReport(report *models.Report) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(report)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) MergeReportGroup(seed *models.ReportGroup) (*models.ReportGroup, error) {
	row := *seed
	err := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_reports":        gorm.Expr("report_groups.total_reports + 1"),
			"highest_reason_score": gorm.Expr("GREATEST(report_groups.highest_reason_score, excluded.highest_reason_score)"),
			"last_report_at":       gorm.Expr("excluded.last_report_at"),
			"reported_user_id":     gorm.Expr("COALESCE(report_groups.reported_user_id, excluded.reported_user_id)"),
			"reported_username":    gorm.Expr("COALESCE(report_groups.reported_username, excluded.reported_username)"),
			"updated_at":           gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return t.GetReportGroup(seed.GroupKey)
}

func (t *gormTx) GetReportGroup(key string) (*models.ReportGroup, error) {
	var group models.ReportGroup
	if err := t.db.Where("group_key = ?", key).Take(&group).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

func (t *gormTx) GetTask(id string) (*models.Task, error) {
	var task models.Task
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&task).Error
	if err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (t *gormTx) NextPendingTask(taskType string) (*models.Task, error) {
	var task models.Task
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("task_type = ? AND status = ?", taskType, models.TaskPending).
		Order("priority DESC").Order("created_at ASC").Order("id ASC").
		Take(&task).Error
	if err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

func (t *gormTx) ExpiredLeases(taskType string, now time.Time, limit int) ([]models.Task, error) {
	var tasks []models.Task
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("task_type = ? AND status = ? AND checkout_expires_at < ?", taskType, models.TaskCheckedOut, now).
		Order("checkout_expires_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (t *gormTx) CreateTask(task *models.Task) error {
	return t.db.Create(task).Error
}

func (t *gormTx) SaveTask(task *models.Task) error {
	return t.db.Save(task).Error
}

func (t *gormTx) AppendActivity(entry *models.ActivityLogEntry) error {
	return t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
}
