// internal/policy/policy.go

// Package policy decides whether aggregator state and detector transitions
// warrant an alert, applying per-kind cooldown and maintenance suppression.
package policy

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/poolwatch/internal/detector"
	"github.com/FairForge/poolwatch/internal/logparse"
	"github.com/FairForge/poolwatch/internal/metrics"
	"github.com/FairForge/poolwatch/internal/window"
)

// Alert kinds.
type Kind string

const (
	KindFailover      Kind = "failover"
	KindHighErrorRate Kind = "high_error_rate"
)

// Suppression reasons, used as metric labels.
const (
	SuppressMaintenance = "maintenance"
	SuppressCooldown    = "cooldown"
)

// AlertIntent is an alert the engine has decided to emit. It is a pure
// value: dispatchers consume it without touching engine state.
type AlertIntent struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	// Failover fields.
	From     logparse.Pool `json:"from,omitempty"`
	To       logparse.Pool `json:"to,omitempty"`
	Release  string        `json:"release,omitempty"`
	Upstream string        `json:"upstream,omitempty"`

	// High-error-rate fields.
	RatePercent      float64       `json:"rate_percent,omitempty"`
	ThresholdPercent float64       `json:"threshold_percent,omitempty"`
	ErrorCount       int           `json:"error_count,omitempty"`
	TotalCount       int           `json:"total_count,omitempty"`
	WindowSize       int           `json:"window_size,omitempty"`
	CurrentPool      logparse.Pool `json:"current_pool,omitempty"`
}

// Config configures the policy engine.
type Config struct {
	// ErrorRateThreshold is the percentage above which a high-error-rate
	// alert fires. Must be > 0.
	ErrorRateThreshold float64

	// Cooldown is the minimum gap between two emitted alerts of the same
	// kind. Zero disables cooldown.
	Cooldown time.Duration

	// MinSamples is the sample floor below which the error-rate alert
	// never fires, regardless of the observed rate. Must be >= 1.
	MinSamples int

	// WindowSize is carried into error-rate alert payloads for context.
	WindowSize int
}

// Validate checks configuration.
func (c *Config) Validate() error {
	if c.ErrorRateThreshold <= 0 {
		return errors.New("policy: error rate threshold must be > 0")
	}
	if c.Cooldown < 0 {
		return errors.New("policy: cooldown must be >= 0")
	}
	if c.MinSamples < 1 {
		return errors.New("policy: min samples must be >= 1")
	}
	return nil
}

// Engine applies alerting policy. Cooldown timestamps are per-kind and
// independent, so a flapping failover and a sustained error spike do not
// suppress each other. Not safe for concurrent use; the watcher loop is
// the sole caller.
type Engine struct {
	config    *Config
	logger    *zap.Logger
	lastFired map[Kind]time.Time
}

// NewEngine creates a policy engine.
func NewEngine(config *Config, logger *zap.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config:    config,
		logger:    logger,
		lastFired: make(map[Kind]time.Time),
	}, nil
}

// Evaluate decides which alerts to emit for one processed event. Both kinds
// are evaluated independently and may both fire in the same tick. With
// maintenance set, nothing is emitted and no cooldown state changes.
func (e *Engine) Evaluate(tr *detector.Transition, snap window.ErrorRateSnapshot, currentPool logparse.Pool, now time.Time, maintenance bool) []AlertIntent {
	rateEligible := snap.TotalCount >= e.config.MinSamples &&
		snap.RatePercent > e.config.ErrorRateThreshold

	if maintenance {
		if tr != nil {
			metrics.RecordSuppressedAlert(SuppressMaintenance)
			e.logger.Info("failover alert suppressed by maintenance mode",
				zap.String("from", string(tr.From)),
				zap.String("to", string(tr.To)))
		}
		if rateEligible {
			metrics.RecordSuppressedAlert(SuppressMaintenance)
			e.logger.Info("error-rate alert suppressed by maintenance mode",
				zap.Float64("rate_percent", snap.RatePercent))
		}
		return nil
	}

	var intents []AlertIntent

	if tr != nil {
		if e.allow(KindFailover, now) {
			intents = append(intents, AlertIntent{
				ID:       uuid.New().String(),
				Kind:     KindFailover,
				At:       tr.At,
				From:     tr.From,
				To:       tr.To,
				Release:  tr.Release,
				Upstream: tr.Upstream,
			})
		}
	}

	if rateEligible {
		if e.allow(KindHighErrorRate, now) {
			intents = append(intents, AlertIntent{
				ID:               uuid.New().String(),
				Kind:             KindHighErrorRate,
				At:               now,
				RatePercent:      snap.RatePercent,
				ThresholdPercent: e.config.ErrorRateThreshold,
				ErrorCount:       snap.ErrorCount,
				TotalCount:       snap.TotalCount,
				WindowSize:       e.config.WindowSize,
				CurrentPool:      currentPool,
			})
		}
	}

	for _, in := range intents {
		metrics.RecordAlert(string(in.Kind))
	}
	return intents
}

// allow applies the per-kind cooldown and, when the alert passes, advances
// the kind's lastFired timestamp.
func (e *Engine) allow(kind Kind, now time.Time) bool {
	if last, ok := e.lastFired[kind]; ok {
		if elapsed := now.Sub(last); elapsed < e.config.Cooldown {
			metrics.RecordSuppressedAlert(SuppressCooldown)
			e.logger.Info("alert in cooldown",
				zap.String("kind", string(kind)),
				zap.Duration("elapsed", elapsed),
				zap.Duration("cooldown", e.config.Cooldown))
			return false
		}
	}
	e.lastFired[kind] = now
	return true
}
