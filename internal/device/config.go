package device

// Getter is the subset of a live configuration source the resolver reads.
// *viper.Viper satisfies it.
type Getter interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
}

// ConfigSignals reads device signals from live configuration on every call
type ConfigSignals struct {
	src Getter
}

// NewConfigSignals wraps src
func NewConfigSignals(src Getter) *ConfigSignals {
	return &ConfigSignals{src: src}
}

func (c *ConfigSignals) UserAgent() string  { return c.src.GetString("device.user_agent") }
func (c *ConfigSignals) ViewportWidth() int { return c.src.GetInt("device.viewport_width") }
func (c *ConfigSignals) Standalone() bool   { return c.src.GetBool("device.standalone") }

// ForcedMode reports the device.force_mode override, if any
func (c *ConfigSignals) ForcedMode() (Mode, bool) {
	return ParseMode(c.src.GetString("device.force_mode"))
}

// NewConfigResolver builds a resolver over live configuration honouring
// device.force_mode.
func NewConfigResolver(src Getter) *Resolver {
	signals := NewConfigSignals(src)
	return NewResolver(signals).WithOverride(signals.ForcedMode)
}
