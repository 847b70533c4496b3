package autobone

import (
	"math"

	pkgerrors "github.com/pkg/errors"
)

// Config holds the tunables of a calibration session.
type Config struct {
	CursorIncrement      int     `json:"cursorIncrement" yaml:"cursorIncrement"`
	MinDataDistance      int     `json:"minimumDataDistance" yaml:"minimumDataDistance"`
	MaxDataDistance      int     `json:"maximumDataDistance" yaml:"maximumDataDistance"`
	NumEpochs            int     `json:"epochCount" yaml:"epochCount"`
	InitialAdjustRate    float64 `json:"adjustRate" yaml:"adjustRate"`
	AdjustRateMultiplier float64 `json:"adjustRateMultiplier" yaml:"adjustRateMultiplier"`

	SlideErrorFactor            float64 `json:"slideErrorFactor" yaml:"slideErrorFactor"`
	OffsetSlideErrorFactor      float64 `json:"offsetSlideErrorFactor" yaml:"offsetSlideErrorFactor"`
	FootHeightOffsetErrorFactor float64 `json:"offsetErrorFactor" yaml:"offsetErrorFactor"`
	BodyProportionErrorFactor   float64 `json:"proportionErrorFactor" yaml:"proportionErrorFactor"`
	HeightErrorFactor           float64 `json:"heightErrorFactor" yaml:"heightErrorFactor"`
	PositionErrorFactor         float64 `json:"positionErrorFactor" yaml:"positionErrorFactor"`
	PositionOffsetErrorFactor   float64 `json:"positionOffsetErrorFactor" yaml:"positionOffsetErrorFactor"`

	RandomizeFrameOrder bool `json:"randomizeFrameOrder" yaml:"randomizeFrameOrder"`
	ScaleEachStep       bool `json:"scaleEachStep" yaml:"scaleEachStep"`
	// CalcInitError adds an epoch -1 that only measures the starting error.
	CalcInitError bool `json:"calculateInitialError" yaml:"calculateInitialError"`
	// TargetHeight is used as-is when positive, otherwise detected per run.
	TargetHeight float64 `json:"manualTargetHeight" yaml:"manualTargetHeight"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		CursorIncrement:      2,
		MinDataDistance:      1,
		MaxDataDistance:      1,
		NumEpochs:            100,
		InitialAdjustRate:    10,
		AdjustRateMultiplier: 0.995,

		SlideErrorFactor:            0,
		OffsetSlideErrorFactor:      1.0,
		FootHeightOffsetErrorFactor: 0,
		BodyProportionErrorFactor:   0.2,
		HeightErrorFactor:           0,
		PositionErrorFactor:         0,
		PositionOffsetErrorFactor:   0,

		RandomizeFrameOrder: true,
		ScaleEachStep:       true,
		CalcInitError:       true,
		TargetHeight:        -1,
	}
}

// AdjustRate returns the step size of an epoch. The initial-error pass
// (epoch < 0) never adjusts anything.
func (c Config) AdjustRate(epoch int) float64 {
	if epoch < 0 {
		return 0
	}
	return c.InitialAdjustRate * math.Pow(c.AdjustRateMultiplier, float64(epoch))
}

// Validate rejects tunables that would make a run loop forever or never
// form a frame pair.
func (c Config) Validate() error {
	if c.CursorIncrement < 1 {
		return pkgerrors.Errorf("cursor increment must be at least 1, got %d", c.CursorIncrement)
	}
	if c.MinDataDistance < 1 {
		return pkgerrors.Errorf("minimum data distance must be at least 1, got %d", c.MinDataDistance)
	}
	if c.MaxDataDistance < c.MinDataDistance {
		return pkgerrors.Errorf("maximum data distance %d is below minimum %d", c.MaxDataDistance, c.MinDataDistance)
	}
	if c.NumEpochs < 0 {
		return pkgerrors.Errorf("epoch count must not be negative, got %d", c.NumEpochs)
	}
	return nil
}
