package queues

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/scoring"
	"gopkg.in/yaml.v3"
)

var ErrUnknownTaskType = errors.New("unknown task type")

// TaskQueueConfig parameterizes leasing for one task type.
type TaskQueueConfig struct {
	TaskType               string `yaml:"task_type" json:"task_type"`
	DefaultCheckoutMinutes int    `yaml:"default_checkout_minutes" json:"default_checkout_minutes"`
	WorkLaterMinutes       int    `yaml:"work_later_minutes" json:"work_later_minutes"`
	MaxWorkLaterMinutes    int    `yaml:"max_work_later_minutes" json:"max_work_later_minutes"`
}

func (c *TaskQueueConfig) CheckoutDuration() time.Duration {
	return time.Duration(c.DefaultCheckoutMinutes) * time.Minute
}

func (c *TaskQueueConfig) validate() error {
	if c.TaskType == "" {
		return errors.New("task_type is required")
	}
	if c.DefaultCheckoutMinutes <= 0 {
		return fmt.Errorf("%s: default_checkout_minutes must be positive", c.TaskType)
	}
	if c.WorkLaterMinutes < 0 {
		return fmt.Errorf("%s: work_later_minutes must not be negative", c.TaskType)
	}
	if c.MaxWorkLaterMinutes < c.WorkLaterMinutes {
		return fmt.Errorf("%s: max_work_later_minutes must be >= work_later_minutes", c.TaskType)
	}
	return nil
}

// File is the on-disk layout of the queues config.
type File struct {
	Scoring   scoring.Config    `yaml:"scoring"`
	TaskTypes []TaskQueueConfig `yaml:"task_types"`
}

type Registry struct {
	mu      sync.RWMutex
	scoring scoring.Config
	queues  map[string]*TaskQueueConfig
}

func NewRegistry(sc scoring.Config) *Registry {
	return &Registry{
		scoring: sc,
		queues:  make(map[string]*TaskQueueConfig),
	}
}

func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queues config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse queues config: %w", err)
	}
	if len(file.TaskTypes) == 0 {
		return nil, errors.New("queues config defines no task types")
	}

	registry := NewRegistry(file.Scoring)
	for i := range file.TaskTypes {
		if err := registry.Register(&file.TaskTypes[i]); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(cfg *TaskQueueConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.queues[cfg.TaskType]; dup {
		return fmt.Errorf("duplicate task type %q", cfg.TaskType)
	}
	r.queues[cfg.TaskType] = cfg
	return nil
}

// Get returns the config for taskType or ErrUnknownTaskType.
func (r *Registry) Get(taskType string) (*TaskQueueConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.queues[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	return cfg, nil
}

func (r *Registry) Exists(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queues[taskType]
	return ok
}

// Require fails if any of taskTypes is not registered. Used at startup.
func (r *Registry) Require(taskTypes ...string) error {
	for _, tt := range taskTypes {
		if _, err := r.Get(tt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.queues))
	for tt := range r.queues {
		result = append(result, tt)
	}
	sort.Strings(result)
	return result
}

func (r *Registry) Scoring() scoring.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scoring
}

// SetScoring swaps the scoring config. Stored priorities are not touched;
// run the recalculator afterwards.
func (r *Registry) SetScoring(sc scoring.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoring = sc
}
