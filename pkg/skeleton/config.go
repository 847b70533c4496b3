package skeleton

// ConfigValue is an externally meaningful body-proportion key.
type ConfigValue string

const (
	ConfigHead       ConfigValue = "HEAD"
	ConfigNeck       ConfigValue = "NECK"
	ConfigTorso      ConfigValue = "TORSO"
	ConfigChest      ConfigValue = "CHEST"
	ConfigWaist      ConfigValue = "WAIST"
	ConfigHipsWidth  ConfigValue = "HIPS_WIDTH"
	ConfigLegsLength ConfigValue = "LEGS_LENGTH"
	ConfigKneeHeight ConfigValue = "KNEE_HEIGHT"
)

// ConfigValues lists every config key.
var ConfigValues = []ConfigValue{
	ConfigHead,
	ConfigNeck,
	ConfigTorso,
	ConfigChest,
	ConfigWaist,
	ConfigHipsWidth,
	ConfigLegsLength,
	ConfigKneeHeight,
}

// HeightConfigValues sum up to standing height.
var HeightConfigValues = []ConfigValue{
	ConfigNeck,
	ConfigTorso,
	ConfigLegsLength,
}

var defaultConfigValues = map[ConfigValue]float64{
	ConfigHead:       0.1,
	ConfigNeck:       0.1,
	ConfigTorso:      0.64,
	ConfigChest:      0.42,
	ConfigWaist:      0.04,
	ConfigHipsWidth:  0.26,
	ConfigLegsLength: 0.86,
	ConfigKneeHeight: 0.54,
}

// Default returns the default length of v in meters.
func (v ConfigValue) Default() float64 {
	return defaultConfigValues[v]
}

// Valid reports whether v is a known key.
func (v ConfigValue) Valid() bool {
	_, ok := defaultConfigValues[v]
	return ok
}

// DefaultValues returns a fresh copy of the default config values.
func DefaultValues() map[ConfigValue]float64 {
	m := make(map[ConfigValue]float64, len(defaultConfigValues))
	for k, v := range defaultConfigValues {
		m[k] = v
	}
	return m
}

// Config is a set of body-proportion values. Keys never set fall back to
// their defaults. A Config is not safe for concurrent use; see Live.
type Config struct {
	values map[ConfigValue]float64
}

// NewConfig returns a Config holding only defaults.
func NewConfig() *Config {
	return &Config{values: make(map[ConfigValue]float64)}
}

// Get returns the value of v.
func (c *Config) Get(v ConfigValue) float64 {
	if val, ok := c.values[v]; ok {
		return val
	}
	return v.Default()
}

// Set overrides the value of v.
func (c *Config) Set(v ConfigValue, val float64) {
	c.values[v] = val
}

// SetAll overrides every key present in values.
func (c *Config) SetAll(values map[ConfigValue]float64) {
	for k, v := range values {
		c.values[k] = v
	}
}

// Reset drops all overrides.
func (c *Config) Reset() {
	c.values = make(map[ConfigValue]float64)
}

// CopyFrom replaces the contents of c with those of o.
func (c *Config) CopyFrom(o *Config) {
	c.values = make(map[ConfigValue]float64, len(o.values))
	for k, v := range o.values {
		c.values[k] = v
	}
}

// Values returns every key with its effective value.
func (c *Config) Values() map[ConfigValue]float64 {
	m := make(map[ConfigValue]float64, len(ConfigValues))
	for _, v := range ConfigValues {
		m[v] = c.Get(v)
	}
	return m
}

// Height returns the sum of the height-contributing values.
func (c *Config) Height() float64 {
	h := 0.0
	for _, v := range HeightConfigValues {
		h += c.Get(v)
	}
	return h
}

// BoneLength derives the length of a single bone from the config values.
func (c *Config) BoneLength(b BoneType) float64 {
	switch b {
	case BoneHead:
		return c.Get(ConfigHead)
	case BoneNeck:
		return c.Get(ConfigNeck)
	case BoneChest:
		return c.Get(ConfigChest)
	case BoneWaist:
		return c.Get(ConfigTorso) - c.Get(ConfigChest) - c.Get(ConfigWaist)
	case BoneHip:
		return c.Get(ConfigWaist)
	case BoneLeftHip, BoneRightHip:
		return c.Get(ConfigHipsWidth) / 2
	case BoneLeftUpperLeg, BoneRightUpperLeg:
		return c.Get(ConfigLegsLength) - c.Get(ConfigKneeHeight)
	case BoneLeftLowerLeg, BoneRightLowerLeg:
		return c.Get(ConfigKneeHeight)
	}
	return 0
}
