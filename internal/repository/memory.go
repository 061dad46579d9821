package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
)

// Memory keeps everything in process. A single mutex serializes
// transactions; each transaction works on copies of the maps that replace
// the originals only when fn succeeds.
type Memory struct {
	mu       sync.Mutex
	groups   map[string]models.ReportGroup
	tasks    map[string]models.Task
	activity map[string]models.ActivityLogEntry
	reports  []models.Report
	users    map[string]models.User
}

func NewMemory() *Memory {
	return &Memory{
		groups:   make(map[string]models.ReportGroup),
		tasks:    make(map[string]models.Task),
		activity: make(map[string]models.ActivityLogEntry),
		users:    make(map[string]models.User),
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		groups:   maps.Clone(m.groups),
		tasks:    maps.Clone(m.tasks),
		activity: maps.Clone(m.activity),
		reports:  slices.Clone(m.reports),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.groups, m.tasks, m.activity, m.reports = tx.groups, tx.tasks, tx.activity, tx.reports
	return nil
}

// PutUser stores a reviewer profile.
func (m *Memory) PutUser(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

// DeleteReportGroup removes a group outright. Nothing in the queue deletes
// groups; this exists for fixtures and manual cleanup.
func (m *Memory) DeleteReportGroup(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, key)
}

func (m *Memory) Reports() []models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Report(nil), m.reports...)
}

func (m *Memory) GetReportGroups(ctx context.Context, keys []string) (map[string]models.ReportGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]models.ReportGroup, len(keys))
	for _, k := range keys {
		if g, ok := m.groups[k]; ok {
			result[k] = g
		}
	}
	return result, nil
}

func (m *Memory) PendingTasksAfter(ctx context.Context, taskType, afterID string, limit int) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []models.Task
	for _, t := range m.tasks {
		if t.Status != models.TaskPending || t.ID <= afterID {
			continue
		}
		if taskType != "" && t.TaskType != taskType {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (m *Memory) ApplyPriorities(ctx context.Context, updates []PriorityUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		t, ok := m.tasks[u.TaskID]
		if !ok {
			continue
		}
		t.Priority = u.Priority
		t.LastUpdatedAt = u.UpdatedAt
		m.tasks[u.TaskID] = t
	}
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

func (m *Memory) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []models.Task
	for _, t := range m.tasks {
		if filter.TaskType != "" && t.TaskType != filter.TaskType {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return queueOrder(&tasks[i], &tasks[j]) })

	total := int64(len(tasks))
	if filter.Offset >= len(tasks) {
		return []models.Task{}, total, nil
	}
	tasks = tasks[filter.Offset:]
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, total, nil
}

func (m *Memory) CountTasksByStatus(ctx context.Context, taskType string) (map[models.TaskStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.TaskStatus]int64)
	for _, t := range m.tasks {
		if taskType != "" && t.TaskType != taskType {
			continue
		}
		counts[t.Status]++
	}
	return counts, nil
}

func (m *Memory) ListActivity(ctx context.Context, filter ActivityFilter) ([]models.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []models.ActivityLogEntry
	for _, e := range m.activity {
		if filter.TaskID != "" && e.TaskID != filter.TaskID {
			continue
		}
		if filter.AdminUserID != "" && e.AdminUserID != filter.AdminUserID {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// queueOrder is the checkout order: priority desc, then oldest first.
func queueOrder(a, b *models.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

type memoryTx struct {
	groups   map[string]models.ReportGroup
	tasks    map[string]models.Task
	activity map[string]models.ActivityLogEntry
	reports  []models.Report
}

func (t *memoryTx) CreateReport(report *models.Report) (bool, error) {
	for i := range t.reports {
		if t.reports[i].ID == report.ID {
			return false, nil
		}
	}
	t.reports = append(t.reports, *report)
	return true, nil
}

func (t *memoryTx) MergeReportGroup(seed *models.ReportGroup) (*models.ReportGroup, error) {
	group, ok := t.groups[seed.GroupKey]
	if !ok {
		group = *seed
		group.CreatedAt = seed.LastReportAt
		group.UpdatedAt = seed.LastReportAt
		t.groups[seed.GroupKey] = group
		return &group, nil
	}

	group.TotalReports++
	if seed.HighestReasonScore > group.HighestReasonScore {
		group.HighestReasonScore = seed.HighestReasonScore
	}
	group.LastReportAt = seed.LastReportAt
	group.UpdatedAt = seed.LastReportAt
	if group.ReportedUserID == nil {
		group.ReportedUserID = seed.ReportedUserID
	}
	if group.ReportedUsername == nil {
		group.ReportedUsername = seed.ReportedUsername
	}
	t.groups[seed.GroupKey] = group
	return &group, nil
}

func (t *memoryTx) GetReportGroup(key string) (*models.ReportGroup, error) {
	g, ok := t.groups[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (t *memoryTx) GetTask(id string) (*models.Task, error) {
	task, ok := t.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

func (t *memoryTx) NextPendingTask(taskType string) (*models.Task, error) {
	var best *models.Task
	for _, task := range t.tasks {
		if task.TaskType != taskType || task.Status != models.TaskPending {
			continue
		}
		if best == nil || queueOrder(&task, best) {
			candidate := task
			best = &candidate
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (t *memoryTx) ExpiredLeases(taskType string, now time.Time, limit int) ([]models.Task, error) {
	var tasks []models.Task
	for _, task := range t.tasks {
		if task.TaskType != taskType || task.Status != models.TaskCheckedOut {
			continue
		}
		if task.Lease.ExpiresAt == nil || !task.Lease.ExpiresAt.Before(now) {
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Lease.ExpiresAt.Before(*tasks[j].Lease.ExpiresAt) })
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (t *memoryTx) CreateTask(task *models.Task) error {
	if _, exists := t.tasks[task.ID]; exists {
		return ErrConflict
	}
	t.tasks[task.ID] = *task
	return nil
}

func (t *memoryTx) SaveTask(task *models.Task) error {
	t.tasks[task.ID] = *task
	return nil
}

func (t *memoryTx) AppendActivity(entry *models.ActivityLogEntry) error {
	if _, exists := t.activity[entry.ID]; exists {
		return nil
	}
	t.activity[entry.ID] = *entry
	return nil
}
