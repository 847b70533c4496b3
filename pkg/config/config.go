package config

import (
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/skeleton"
)

type Config interface {
	// AutoBone returns the calibration tunables with defaults filled in.
	AutoBone() autobone.Config
	RandomSeed() int64
	RecordingsDir() string
	LoadRecordingsDir() string
	SkeletonValues() map[skeleton.ConfigValue]float64
	AllowNonRootAccess() bool
	MQTTBroker() string
	MQTTClientID() string
	MQTTTopicPrefix() string
	Cron() string

	SetAutoBone(autobone.Config)
	SetSkeletonValues(map[skeleton.ConfigValue]float64)
	SetAllowNonRootAccess(bool)
	SetCron(string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}
