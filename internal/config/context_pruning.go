package config

import (
	"strings"

	agentctx "github.com/sagerun/sage/internal/agent/context"
)

// EffectiveContextPruningSettings maps the config block onto runtime
// pruning settings, clamping out-of-range values. Nil means pruning is
// off.
func EffectiveContextPruningSettings(cfg ContextPruningConfig) *agentctx.ContextPruningSettings {
	if strings.ToLower(strings.TrimSpace(cfg.Mode)) != string(agentctx.ContextPruningCacheTTL) {
		return nil
	}

	settings := agentctx.DefaultContextPruningSettings()
	settings.Mode = agentctx.ContextPruningCacheTTL

	if cfg.TTL != nil {
		settings.TTL = *cfg.TTL
	}
	setNonNegative(&settings.KeepLastAssistants, cfg.KeepLastAssistants)
	setRatio(&settings.SoftTrimRatio, cfg.SoftTrimRatio)
	setRatio(&settings.HardClearRatio, cfg.HardClearRatio)
	setNonNegative(&settings.MinPrunableToolChars, cfg.MinPrunableToolChars)

	settings.Tools = agentctx.ContextPruningToolMatch{
		Allow: append([]string(nil), cfg.Tools.Allow...),
		Deny:  append([]string(nil), cfg.Tools.Deny...),
	}

	setNonNegative(&settings.SoftTrim.MaxChars, cfg.SoftTrim.MaxChars)
	setNonNegative(&settings.SoftTrim.HeadChars, cfg.SoftTrim.HeadChars)
	setNonNegative(&settings.SoftTrim.TailChars, cfg.SoftTrim.TailChars)

	if cfg.HardClear.Enabled != nil {
		settings.HardClear.Enabled = *cfg.HardClear.Enabled
	}
	if placeholder := strings.TrimSpace(cfg.HardClear.Placeholder); placeholder != "" {
		settings.HardClear.Placeholder = placeholder
	}

	return &settings
}

func setNonNegative(dst *int, src *int) {
	if src == nil {
		return
	}
	if *src < 0 {
		*dst = 0
		return
	}
	*dst = *src
}

func setRatio(dst *float64, src *float64) {
	if src == nil {
		return
	}
	switch {
	case *src < 0:
		*dst = 0
	case *src > 1:
		*dst = 1
	default:
		*dst = *src
	}
}
