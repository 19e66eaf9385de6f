package priority

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/photos"
	"darkroom/internal/services"
)

const (
	// MinPriority and MaxPriority bound every computed priority.
	MinPriority = 1
	MaxPriority = 10

	// DefaultPriority is the medium priority used when a unit cannot be
	// resolved or carries no quality score.
	DefaultPriority = 5

	defaultQualityScore = 5.0
)

// Weights controls the relative contribution of each scoring signal.
type Weights struct {
	Quality     float64
	Age         float64
	UserRequest float64
	Context     float64
}

// PendingUnit is the queue's view of a unit awaiting dispatch.
type PendingUnit struct {
	UnitID     string
	Priority   int
	GroupID    string
	EnqueuedAt time.Time
}

// StarvingUnit annotates a pending unit that exceeded the starvation threshold.
type StarvingUnit struct {
	UnitID   string
	Priority int
	Age      time.Duration
}

// QueueStore is the minimal queue surface the calculator needs for
// rebalancing and starvation handling.
type QueueStore interface {
	ListPending(ctx context.Context) ([]PendingUnit, error)
	SetPriority(ctx context.Context, unitID string, priority int) error
}

// Calculator computes bounded submission priorities from quality, age,
// user-intent, and shoot-context signals.
type Calculator struct {
	meta   photos.MetadataProvider
	store  QueueStore
	logger *slog.Logger

	maxAgeHours     float64
	ageBoostPerHour float64
	starvationAge   time.Duration
	starvationBoost int

	mu            sync.RWMutex
	weights       Weights
	contextScores map[string]float64
	defaultScore  float64
}

// NewCalculator constructs a calculator from configuration.
func NewCalculator(cfg *config.Config, meta photos.MetadataProvider, store QueueStore, logger *slog.Logger) *Calculator {
	scores := make(map[string]float64, len(cfg.Priority.ContextScores))
	for class, score := range cfg.Priority.ContextScores {
		scores[class] = score
	}
	return &Calculator{
		meta:            meta,
		store:           store,
		logger:          logging.NewComponentLogger(logger, "priority"),
		maxAgeHours:     cfg.Priority.MaxAgeHours,
		ageBoostPerHour: cfg.Priority.AgeBoostPerHour,
		starvationAge:   time.Duration(cfg.Priority.StarvationThresholdHours * float64(time.Hour)),
		starvationBoost: cfg.Priority.StarvationBoost,
		weights: Weights{
			Quality:     cfg.Priority.QualityWeight,
			Age:         cfg.Priority.AgeWeight,
			UserRequest: cfg.Priority.UserRequestWeight,
			Context:     cfg.Priority.ContextWeight,
		},
		contextScores: scores,
		defaultScore:  cfg.Priority.DefaultContextScore,
	}
}

// Calculate returns the priority for a unit. A non-nil override short-circuits
// scoring and is clamped into range. Unknown units never fail; they receive
// the medium default priority.
func (c *Calculator) Calculate(ctx context.Context, unitID string, userRequested bool, override *int) int {
	if override != nil {
		return Clamp(*override)
	}

	meta, err := c.meta.Lookup(ctx, unitID)
	if err != nil {
		c.logger.Warn("metadata lookup failed, using default priority",
			logging.String(logging.FieldUnitID, unitID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "priority_lookup_failed"))
		return DefaultPriority
	}
	if meta == nil {
		return DefaultPriority
	}

	c.mu.RLock()
	weights := c.weights
	contextScore := c.defaultScore
	if score, ok := c.contextScores[meta.ContextClass]; ok {
		contextScore = score
	}
	c.mu.RUnlock()

	quality := defaultQualityScore
	if meta.QualityScore != nil {
		quality = qualityBucket(*meta.QualityScore)
	}

	age := c.ageScore(meta.Age(time.Now()))

	user := 0.0
	if userRequested {
		user = 10.0
	}

	total := weights.Quality*quality + weights.Age*age + weights.UserRequest*user + weights.Context*contextScore
	return Clamp(int(total))
}

// UpdateWeights replaces the scoring weights. Weights must be non-negative
// and must not all be zero.
func (c *Calculator) UpdateWeights(w Weights) error {
	if w.Quality < 0 || w.Age < 0 || w.UserRequest < 0 || w.Context < 0 {
		return services.Wrap(services.ErrValidation, "priority", "update weights", "weights must not be negative", nil)
	}
	if w.Quality+w.Age+w.UserRequest+w.Context <= 0 {
		return services.Wrap(services.ErrValidation, "priority", "update weights", "weights must not all be zero", nil)
	}
	c.mu.Lock()
	c.weights = w
	c.mu.Unlock()
	c.logger.Info("priority weights updated",
		logging.Float64("quality", w.Quality),
		logging.Float64("age", w.Age),
		logging.Float64("user_request", w.UserRequest),
		logging.Float64("context", w.Context))
	return nil
}

// Weights returns the current scoring weights.
func (c *Calculator) Weights() Weights {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.weights
}

// Rebalance recomputes the priority of every pending unit, persisting only
// units whose priority actually changed. It returns the number adjusted and
// the total considered.
func (c *Calculator) Rebalance(ctx context.Context) (adjusted, considered int, err error) {
	units, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, 0, services.Wrap(services.ErrPersistence, "priority", "rebalance", "list pending units", err)
	}

	for _, unit := range units {
		considered++
		next := c.Calculate(ctx, unit.UnitID, false, nil)
		if next == unit.Priority {
			continue
		}
		if err := c.store.SetPriority(ctx, unit.UnitID, next); err != nil {
			c.logger.Warn("persist rebalanced priority failed",
				logging.String(logging.FieldUnitID, unit.UnitID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "priority_persist_failed"))
			continue
		}
		adjusted++
	}

	c.logger.Info("rebalance complete",
		logging.Int("adjusted", adjusted),
		logging.Int("considered", considered))
	return adjusted, considered, nil
}

// BoostGroup raises the priority of every pending unit in a group by amount,
// capped at the maximum. It returns the number of units boosted.
func (c *Calculator) BoostGroup(ctx context.Context, groupID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, services.Wrap(services.ErrValidation, "priority", "boost group", "amount must be positive", nil)
	}
	units, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "priority", "boost group", "list pending units", err)
	}

	boosted := 0
	for _, unit := range units {
		if unit.GroupID != groupID {
			continue
		}
		next := Clamp(unit.Priority + amount)
		if next == unit.Priority {
			continue
		}
		if err := c.store.SetPriority(ctx, unit.UnitID, next); err != nil {
			c.logger.Warn("persist boosted priority failed",
				logging.String(logging.FieldUnitID, unit.UnitID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "priority_persist_failed"))
			continue
		}
		boosted++
	}
	return boosted, nil
}

// FindStarving returns pending units older than the threshold, oldest first.
// A non-positive threshold falls back to the configured default.
func (c *Calculator) FindStarving(ctx context.Context, threshold time.Duration) ([]StarvingUnit, error) {
	if threshold <= 0 {
		threshold = c.starvationAge
	}
	units, err := c.store.ListPending(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "priority", "find starving", "list pending units", err)
	}

	now := time.Now()
	var starving []StarvingUnit
	for _, unit := range units {
		if unit.EnqueuedAt.IsZero() {
			continue
		}
		age := now.Sub(unit.EnqueuedAt)
		if age <= threshold {
			continue
		}
		starving = append(starving, StarvingUnit{UnitID: unit.UnitID, Priority: unit.Priority, Age: age})
	}

	sort.Slice(starving, func(i, j int) bool {
		return starving[i].Age > starving[j].Age
	})
	return starving, nil
}

// AutoBoostStarving raises the priority of every starving unit by the
// configured boost, capped at the maximum. It returns the number boosted and
// the total candidates found.
func (c *Calculator) AutoBoostStarving(ctx context.Context, threshold time.Duration) (boosted, candidates int, err error) {
	starving, err := c.FindStarving(ctx, threshold)
	if err != nil {
		return 0, 0, err
	}

	for _, unit := range starving {
		candidates++
		next := Clamp(unit.Priority + c.starvationBoost)
		if next == unit.Priority {
			continue
		}
		if err := c.store.SetPriority(ctx, unit.UnitID, next); err != nil {
			c.logger.Warn("persist starvation boost failed",
				logging.String(logging.FieldUnitID, unit.UnitID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "priority_persist_failed"))
			continue
		}
		boosted++
	}

	if candidates > 0 {
		c.logger.Info("starvation auto-boost complete",
			logging.Int("boosted", boosted),
			logging.Int("candidates", candidates))
	}
	return boosted, candidates, nil
}

// Clamp bounds a priority to the valid [1,10] range.
func Clamp(priority int) int {
	if priority < MinPriority {
		return MinPriority
	}
	if priority > MaxPriority {
		return MaxPriority
	}
	return priority
}

func (c *Calculator) ageScore(age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	if hours > c.maxAgeHours {
		hours = c.maxAgeHours
	}
	score := hours * c.ageBoostPerHour
	if score > 10 {
		score = 10
	}
	return score
}

// qualityBucket maps a 0-5 quality score onto the 0-10 priority scale.
func qualityBucket(quality float64) float64 {
	switch {
	case quality >= 4.5:
		return 10
	case quality >= 4.0:
		return 8
	case quality >= 3.5:
		return 6
	case quality >= 3.0:
		return 5
	case quality >= 2.0:
		return 3
	default:
		return 1
	}
}
