package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/skeleton"
	"github.com/trackd/trackd/pkg/utils/ptr"
)

var (
	defaultAutoBone = autobone.DefaultConfig()

	defaultFileConfig = &RawFileConfig{
		AutoBone: &RawAutoBoneConfig{
			MinimumDataDistance:       ptr.To(defaultAutoBone.MinDataDistance),
			MaximumDataDistance:       ptr.To(defaultAutoBone.MaxDataDistance),
			CursorIncrement:           ptr.To(defaultAutoBone.CursorIncrement),
			EpochCount:                ptr.To(defaultAutoBone.NumEpochs),
			AdjustRate:                ptr.To(defaultAutoBone.InitialAdjustRate),
			AdjustRateMultiplier:      ptr.To(defaultAutoBone.AdjustRateMultiplier),
			SlideErrorFactor:          ptr.To(defaultAutoBone.SlideErrorFactor),
			OffsetSlideErrorFactor:    ptr.To(defaultAutoBone.OffsetSlideErrorFactor),
			OffsetErrorFactor:         ptr.To(defaultAutoBone.FootHeightOffsetErrorFactor),
			ProportionErrorFactor:     ptr.To(defaultAutoBone.BodyProportionErrorFactor),
			HeightErrorFactor:         ptr.To(defaultAutoBone.HeightErrorFactor),
			PositionErrorFactor:       ptr.To(defaultAutoBone.PositionErrorFactor),
			PositionOffsetErrorFactor: ptr.To(defaultAutoBone.PositionOffsetErrorFactor),
			RandomizeFrameOrder:       ptr.To(defaultAutoBone.RandomizeFrameOrder),
			ScaleEachStep:             ptr.To(defaultAutoBone.ScaleEachStep),
			CalculateInitialError:     ptr.To(defaultAutoBone.CalcInitError),
			ManualTargetHeight:        ptr.To(defaultAutoBone.TargetHeight),
			// 0 seeds from the clock.
			RandomSeed:        ptr.To(int64(0)),
			RecordingsDir:     ptr.To("Recordings"),
			LoadRecordingsDir: ptr.To("LoadRecordings"),
		},
		AllowNonRootAccess: ptr.To(false),
		MQTT: &RawMQTTConfig{
			Broker:      ptr.To(""),
			ClientID:    ptr.To("trackd"),
			TopicPrefix: ptr.To("trackd"),
		},
		Cron: ptr.To(""),
	}
)

var _ Config = &File{}
var _ autobone.ConfigStore = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// Path returns the file the config is loaded from and saved to.
func (f *File) Path() string {
	return f.filepath
}

type RawFileConfig struct {
	AutoBone           *RawAutoBoneConfig `json:"autobone,omitempty"`
	Skeleton           map[string]float64 `json:"skeleton,omitempty"`
	AllowNonRootAccess *bool              `json:"allowNonRootAccess,omitempty"`
	MQTT               *RawMQTTConfig     `json:"mqtt,omitempty"`
	Cron               *string            `json:"cron,omitempty"`
}

type RawAutoBoneConfig struct {
	MinimumDataDistance       *int     `json:"minimumDataDistance,omitempty"`
	MaximumDataDistance       *int     `json:"maximumDataDistance,omitempty"`
	CursorIncrement           *int     `json:"cursorIncrement,omitempty"`
	EpochCount                *int     `json:"epochCount,omitempty"`
	AdjustRate                *float64 `json:"adjustRate,omitempty"`
	AdjustRateMultiplier      *float64 `json:"adjustRateMultiplier,omitempty"`
	SlideErrorFactor          *float64 `json:"slideErrorFactor,omitempty"`
	OffsetSlideErrorFactor    *float64 `json:"offsetSlideErrorFactor,omitempty"`
	OffsetErrorFactor         *float64 `json:"offsetErrorFactor,omitempty"`
	ProportionErrorFactor     *float64 `json:"proportionErrorFactor,omitempty"`
	HeightErrorFactor         *float64 `json:"heightErrorFactor,omitempty"`
	PositionErrorFactor       *float64 `json:"positionErrorFactor,omitempty"`
	PositionOffsetErrorFactor *float64 `json:"positionOffsetErrorFactor,omitempty"`
	RandomizeFrameOrder       *bool    `json:"randomizeFrameOrder,omitempty"`
	ScaleEachStep             *bool    `json:"scaleEachStep,omitempty"`
	CalculateInitialError     *bool    `json:"calculateInitialError,omitempty"`
	ManualTargetHeight        *float64 `json:"manualTargetHeight,omitempty"`
	RandomSeed                *int64   `json:"randomSeed,omitempty"`
	RecordingsDir             *string  `json:"recordingsDir,omitempty"`
	LoadRecordingsDir         *string  `json:"loadRecordingsDir,omitempty"`
}

type RawMQTTConfig struct {
	Broker      *string `json:"broker,omitempty"`
	ClientID    *string `json:"clientId,omitempty"`
	TopicPrefix *string `json:"topicPrefix,omitempty"`
}

// NewRawFileConfigFromConfig returns the effective configuration with every
// default spelled out.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	ab := c.AutoBone()
	skel := make(map[string]float64)
	for k, v := range c.SkeletonValues() {
		skel[string(k)] = v
	}

	rawConfig := &RawFileConfig{
		AutoBone:           rawAutoBone(ab),
		Skeleton:           skel,
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		MQTT: &RawMQTTConfig{
			Broker:      ptr.To(c.MQTTBroker()),
			ClientID:    ptr.To(c.MQTTClientID()),
			TopicPrefix: ptr.To(c.MQTTTopicPrefix()),
		},
		Cron: ptr.To(c.Cron()),
	}
	rawConfig.AutoBone.RandomSeed = ptr.To(c.RandomSeed())
	rawConfig.AutoBone.RecordingsDir = ptr.To(c.RecordingsDir())
	rawConfig.AutoBone.LoadRecordingsDir = ptr.To(c.LoadRecordingsDir())

	return rawConfig, nil
}

func rawAutoBone(ab autobone.Config) *RawAutoBoneConfig {
	return &RawAutoBoneConfig{
		MinimumDataDistance:       ptr.To(ab.MinDataDistance),
		MaximumDataDistance:       ptr.To(ab.MaxDataDistance),
		CursorIncrement:           ptr.To(ab.CursorIncrement),
		EpochCount:                ptr.To(ab.NumEpochs),
		AdjustRate:                ptr.To(ab.InitialAdjustRate),
		AdjustRateMultiplier:      ptr.To(ab.AdjustRateMultiplier),
		SlideErrorFactor:          ptr.To(ab.SlideErrorFactor),
		OffsetSlideErrorFactor:    ptr.To(ab.OffsetSlideErrorFactor),
		OffsetErrorFactor:         ptr.To(ab.FootHeightOffsetErrorFactor),
		ProportionErrorFactor:     ptr.To(ab.BodyProportionErrorFactor),
		HeightErrorFactor:         ptr.To(ab.HeightErrorFactor),
		PositionErrorFactor:       ptr.To(ab.PositionErrorFactor),
		PositionOffsetErrorFactor: ptr.To(ab.PositionOffsetErrorFactor),
		RandomizeFrameOrder:       ptr.To(ab.RandomizeFrameOrder),
		ScaleEachStep:             ptr.To(ab.ScaleEachStep),
		CalculateInitialError:     ptr.To(ab.CalcInitError),
		ManualTargetHeight:        ptr.To(ab.TargetHeight),
	}
}

func (f *File) autoBone() *RawAutoBoneConfig {
	if f.c.AutoBone == nil {
		return &RawAutoBoneConfig{}
	}
	return f.c.AutoBone
}

func (f *File) mqtt() *RawMQTTConfig {
	if f.c.MQTT == nil {
		return &RawMQTTConfig{}
	}
	return f.c.MQTT
}

func (f *File) AutoBone() autobone.Config {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	a := f.autoBone()
	d := defaultFileConfig.AutoBone

	return autobone.Config{
		CursorIncrement:             ptr.Deref(a.CursorIncrement, *d.CursorIncrement),
		MinDataDistance:             ptr.Deref(a.MinimumDataDistance, *d.MinimumDataDistance),
		MaxDataDistance:             ptr.Deref(a.MaximumDataDistance, *d.MaximumDataDistance),
		NumEpochs:                   ptr.Deref(a.EpochCount, *d.EpochCount),
		InitialAdjustRate:           ptr.Deref(a.AdjustRate, *d.AdjustRate),
		AdjustRateMultiplier:        ptr.Deref(a.AdjustRateMultiplier, *d.AdjustRateMultiplier),
		SlideErrorFactor:            ptr.Deref(a.SlideErrorFactor, *d.SlideErrorFactor),
		OffsetSlideErrorFactor:      ptr.Deref(a.OffsetSlideErrorFactor, *d.OffsetSlideErrorFactor),
		FootHeightOffsetErrorFactor: ptr.Deref(a.OffsetErrorFactor, *d.OffsetErrorFactor),
		BodyProportionErrorFactor:   ptr.Deref(a.ProportionErrorFactor, *d.ProportionErrorFactor),
		HeightErrorFactor:           ptr.Deref(a.HeightErrorFactor, *d.HeightErrorFactor),
		PositionErrorFactor:         ptr.Deref(a.PositionErrorFactor, *d.PositionErrorFactor),
		PositionOffsetErrorFactor:   ptr.Deref(a.PositionOffsetErrorFactor, *d.PositionOffsetErrorFactor),
		RandomizeFrameOrder:         ptr.Deref(a.RandomizeFrameOrder, *d.RandomizeFrameOrder),
		ScaleEachStep:               ptr.Deref(a.ScaleEachStep, *d.ScaleEachStep),
		CalcInitError:               ptr.Deref(a.CalculateInitialError, *d.CalculateInitialError),
		TargetHeight:                ptr.Deref(a.ManualTargetHeight, *d.ManualTargetHeight),
	}
}

func (f *File) RandomSeed() int64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.autoBone().RandomSeed, *defaultFileConfig.AutoBone.RandomSeed)
}

func (f *File) RecordingsDir() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.autoBone().RecordingsDir, *defaultFileConfig.AutoBone.RecordingsDir)
}

func (f *File) LoadRecordingsDir() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.autoBone().LoadRecordingsDir, *defaultFileConfig.AutoBone.LoadRecordingsDir)
}

// SkeletonValues returns every skeleton key, stored or default. Unknown keys
// in the file are ignored.
func (f *File) SkeletonValues() map[skeleton.ConfigValue]float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	values := skeleton.DefaultValues()
	for k, v := range f.c.Skeleton {
		key := skeleton.ConfigValue(k)
		if !key.Valid() {
			logrus.WithField("key", k).Warn("ignoring unknown skeleton config value")
			continue
		}
		values[key] = v
	}
	return values
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) MQTTBroker() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.mqtt().Broker, *defaultFileConfig.MQTT.Broker)
}

func (f *File) MQTTClientID() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.mqtt().ClientID, *defaultFileConfig.MQTT.ClientID)
}

func (f *File) MQTTTopicPrefix() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.mqtt().TopicPrefix, *defaultFileConfig.MQTT.TopicPrefix)
}

func (f *File) Cron() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.Cron, *defaultFileConfig.Cron)
}

func (f *File) SetAutoBone(ab autobone.Config) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	raw := rawAutoBone(ab)
	if prev := f.c.AutoBone; prev != nil {
		raw.RandomSeed = prev.RandomSeed
		raw.RecordingsDir = prev.RecordingsDir
		raw.LoadRecordingsDir = prev.LoadRecordingsDir
	}
	f.c.AutoBone = raw
}

func (f *File) SetSkeletonValues(values map[skeleton.ConfigValue]float64) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.c.Skeleton == nil {
		f.c.Skeleton = make(map[string]float64, len(values))
	}
	for k, v := range values {
		f.c.Skeleton[string(k)] = v
	}
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) SetCron(expr string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.Cron = &expr
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	ab := f.AutoBone()
	return logrus.Fields{
		"epochCount":         ab.NumEpochs,
		"adjustRate":         ab.InitialAdjustRate,
		"manualTargetHeight": ab.TargetHeight,
		"recordingsDir":      f.RecordingsDir(),
		"loadRecordingsDir":  f.LoadRecordingsDir(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"mqttBroker":         f.MQTTBroker(),
		"cron":               f.Cron(),
	}
}
