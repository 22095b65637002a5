package processor

import (
	"github.com/cuemby/appevent/pkg/types"
	"github.com/cuemby/appevent/pkg/validate"
	"github.com/rs/zerolog"
)

// normalize drops or defaults every invalid optional field of p. The
// returned flag is set when the name cannot identify a processor.
func normalize(p types.Processor, logger zerolog.Logger) (types.Processor, bool) {
	logger = logger.With().Str("processor", p.Name).Logger()

	inert := !validate.ProcessorName(p.Name)
	if inert {
		logger.Warn().Msg("Invalid processor name, processor will not report")
	}

	if !validate.RouteInfo(p.RouteInfo) {
		logger.Warn().Int("length", len(p.RouteInfo)).Msg("Dropping routeInfo")
		p.RouteInfo = ""
	}
	if !validate.RouteInfo(p.AppID) {
		logger.Warn().Int("length", len(p.AppID)).Msg("Dropping appId")
		p.AppID = ""
	}
	if !validate.PeriodReport(p.PeriodReport) {
		logger.Warn().Int("period_report", p.PeriodReport).Msg("Resetting periodReport")
		p.PeriodReport = 0
	}
	if !validate.BatchReport(p.BatchReport) {
		logger.Warn().Int("batch_report", p.BatchReport).Msg("Resetting batchReport")
		p.BatchReport = 0
	}
	if p.ConfigID < 0 {
		logger.Warn().Int("config_id", p.ConfigID).Msg("Resetting configId")
		p.ConfigID = 0
	}

	p.UserIDs = keepNames(p.UserIDs, func(s string) bool { return validate.UserIDName(s) == nil }, "userIds", logger)
	p.UserProperties = keepNames(p.UserProperties, func(s string) bool { return validate.UserPropertyName(s) == nil }, "userProperties", logger)

	var configs []types.EventConfig
	for _, ec := range p.EventConfigs {
		if !validate.ReportEventConfig(ec) {
			logger.Warn().Str("domain", ec.Domain).Str("name", ec.Name).Msg("Dropping eventConfigs entry")
			continue
		}
		configs = append(configs, ec)
	}
	p.EventConfigs = configs

	p.CustomConfigs = keepCustomConfigs(p.CustomConfigs, logger)
	return p, inert
}

// keepNames filters out invalid and repeated names, keeping first-seen order.
func keepNames(names []string, valid func(string) bool, field string, logger zerolog.Logger) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !valid(n) {
			logger.Warn().Str(field, n).Msg("Dropping invalid entry")
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// keepCustomConfigs drops the whole map when it has too many entries and
// otherwise drops only the invalid entries.
func keepCustomConfigs(m map[string]string, logger zerolog.Logger) map[string]string {
	if len(m) == 0 {
		return nil
	}
	if len(m) > validate.MaxCustomConfigs {
		logger.Warn().Int("entries", len(m)).Msg("Dropping customConfigs")
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if !validate.CustomConfigEntry(k, v) {
			logger.Warn().Str("key", k).Msg("Dropping customConfigs entry")
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// merge lays explicit over tmpl. Zero values in explicit leave the template
// value in place; customConfigs are merged key by key.
func merge(tmpl, explicit types.Processor) types.Processor {
	out := tmpl
	out.Name = explicit.Name
	out.DebugMode = tmpl.DebugMode || explicit.DebugMode
	out.OnStartReport = tmpl.OnStartReport || explicit.OnStartReport
	out.OnBackgroundReport = tmpl.OnBackgroundReport || explicit.OnBackgroundReport
	if explicit.RouteInfo != "" {
		out.RouteInfo = explicit.RouteInfo
	}
	if explicit.AppID != "" {
		out.AppID = explicit.AppID
	}
	if explicit.PeriodReport != 0 {
		out.PeriodReport = explicit.PeriodReport
	}
	if explicit.BatchReport != 0 {
		out.BatchReport = explicit.BatchReport
	}
	if len(explicit.UserIDs) > 0 {
		out.UserIDs = explicit.UserIDs
	}
	if len(explicit.UserProperties) > 0 {
		out.UserProperties = explicit.UserProperties
	}
	if len(explicit.EventConfigs) > 0 {
		out.EventConfigs = explicit.EventConfigs
	}
	if explicit.ConfigID != 0 {
		out.ConfigID = explicit.ConfigID
	}
	if len(explicit.CustomConfigs) > 0 {
		cc := make(map[string]string, len(tmpl.CustomConfigs)+len(explicit.CustomConfigs))
		for k, v := range tmpl.CustomConfigs {
			cc[k] = v
		}
		for k, v := range explicit.CustomConfigs {
			cc[k] = v
		}
		out.CustomConfigs = cc
	}
	return out
}
