package telemetry

import (
	"context"
	"fmt"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/extract"
)

// emitLogs emits one log record per surviving record in the batch, body
// {source, record}, attributes from the configured mappings, and severity
// resolved by the source's logStatusField rules.
func (e *Emitter) emitLogs(ctx context.Context, b Batch) {
	for _, r := range b.Records {
		var rec otellog.Record
		rec.SetTimestamp(time.Now())
		rec.SetSeverity(resolveSeverity(r, b.RawPayload, b.LogStatusField))
		rec.SetBody(otellog.MapValue(
			otellog.String("source", b.Source),
			otellog.KeyValue{Key: "record", Value: otellog.MapValue(toLogKeyValues(r)...)},
		))
		for _, kv := range resolveAttributes(b, r) {
			rec.AddAttributes(otellog.String(string(kv.Key), kv.Value.AsString()))
		}
		e.logger.Emit(ctx, rec)
	}
}

func toLogKeyValues(record map[string]interface{}) []otellog.KeyValue {
	kvs := make([]otellog.KeyValue, 0, len(record))
	for k, v := range record {
		kvs = append(kvs, otellog.String(k, fmt.Sprintf("%v", v)))
	}
	return kvs
}

// resolveSeverity evaluates error -> warning -> info predicates in that
// order, defaulting to INFO when none match or no logStatusField is
// configured.
func resolveSeverity(record map[string]interface{}, root interface{}, field *config.LogStatusField) otellog.Severity {
	if field == nil || field.Name == "" {
		return otellog.SeverityInfo
	}
	value, err := extract.LookupPath(record, root, field.Name)
	if err != nil || value == nil {
		return otellog.SeverityInfo
	}
	if matchLogStatusRule(value, field.Error) {
		return otellog.SeverityError
	}
	if matchLogStatusRule(value, field.Warning) {
		return otellog.SeverityWarn
	}
	if matchLogStatusRule(value, field.Info) {
		return otellog.SeverityInfo
	}
	return otellog.SeverityInfo
}

func matchLogStatusRule(value interface{}, rule *config.LogStatusRule) bool {
	if rule == nil {
		return false
	}
	switch rule.MatchType {
	case "in":
		return logStatusIn(value, rule.Value)
	default: // "equals"
		return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", rule.Value)
	}
}

// logStatusIn reports whether value's string form matches any element of
// expected (a []interface{} or []string per the "string or []string"
// rule.Value shape), or equals expected directly when it is a bare string.
func logStatusIn(value, expected interface{}) bool {
	want := fmt.Sprintf("%v", value)
	switch seq := expected.(type) {
	case []interface{}:
		for _, e := range seq {
			if fmt.Sprintf("%v", e) == want {
				return true
			}
		}
		return false
	case []string:
		for _, e := range seq {
			if e == want {
				return true
			}
		}
		return false
	default:
		return fmt.Sprintf("%v", expected) == want
	}
}
