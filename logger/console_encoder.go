package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Muted terminal palette, easy on the eyes during long codification runs.
const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"

	colorFg       = "\x1b[38;5;223m" // soft cream
	colorTime     = "\x1b[38;5;108m" // muted cyan-green
	colorOrange   = "\x1b[38;5;208m" // warm orange
	colorYellow   = "\x1b[38;5;214m" // soft yellow
	colorGreen    = "\x1b[38;5;142m" // muted green
	colorBlue     = "\x1b[38;5;109m" // soft blue
	colorPurple   = "\x1b[38;5;175m" // muted purple
	colorRed      = "\x1b[38;5;167m" // warm red
	colorRedBg    = "\x1b[48;5;88m"
	colorYellowBg = "\x1b[48;5;58m"
)

// consoleEncoder implements a calm, compact console encoder.
// Format: "13:04:35  runner  Running ctakes for 12 trials  run_7hKw"
type consoleEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
	buf             *buffer.Buffer
}

func newConsoleEncoder() *consoleEncoder {
	// Base JSON encoder for field serialization (internal use only)
	baseEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	return &consoleEncoder{
		Encoder: baseEncoder,
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{
		Encoder: enc.Encoder.Clone(),
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	final.AppendString(colorTime)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only show for WARN/ERROR with bold + background
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	// Component name (abbreviated) for visual grouping
	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(componentColor(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorFg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if len(fields) > 0 {
		final.AppendString("  ")
		final.AppendString(extractFieldValues(fields))
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return colorBlue + "DEBUG" + colorReset
	case zapcore.WarnLevel:
		return colorBold + colorYellowBg + colorYellow + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + colorRedBg + colorRed + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + colorRedBg + colorRed + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// componentColor hashes the component name so each component keeps a
// consistent color across a run.
func componentColor(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	switch hash % 3 {
	case 0:
		return colorGreen
	case 1:
		return colorOrange
	default:
		return colorYellow
	}
}

// abbreviateName shortens component names: runner -> runner, nlp.ctakes -> n.ctakes
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// getFieldValue extracts the value from a zap field, handling different field types
func getFieldValue(field zapcore.Field) string {
	if field.Type == zapcore.StringType {
		return field.String
	}

	if field.Type == zapcore.Int64Type || field.Type == zapcore.Int32Type ||
		field.Type == zapcore.Int16Type || field.Type == zapcore.Int8Type ||
		field.Type == zapcore.Uint64Type || field.Type == zapcore.Uint32Type ||
		field.Type == zapcore.Uint16Type || field.Type == zapcore.Uint8Type {
		return fmt.Sprintf("%d", field.Integer)
	}

	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}

	return ""
}

// extractFieldValues pulls just the values from structured fields.
// Input: {"run_id": "run_7hKw", "trials": 12, "waiting": 3}
// Output: "run_7hKw (12 trials, 3 waiting)" with colored IDs and numbers.
func extractFieldValues(fields []zapcore.Field) string {
	var values []string
	var trialCount, waitingCount string

	for _, field := range fields {
		switch field.Key {
		case "run_id", "nct", "criterion", "keypath":
			if val := getFieldValue(field); val != "" {
				values = append(values, colorBlue+val+colorReset)
			}
		case "engine", "kind":
			if val := getFieldValue(field); val != "" {
				values = append(values, colorOrange+val+colorReset)
			}
		case "trials":
			trialCount = getFieldValue(field)
		case "waiting":
			waitingCount = getFieldValue(field)
		case "codes":
			if val := getFieldValue(field); val != "" {
				values = append(values, colorPurple+val+colorReset+" codes")
			}
		case "duration_ms":
			if val := getFieldValue(field); val != "" {
				values = append(values, colorPurple+val+colorReset+"ms")
			}
		case "error":
			if val := getFieldValue(field); val != "" {
				values = append(values, colorRed+val+colorReset)
			}
		}
	}

	if trialCount != "" && waitingCount != "" {
		values = append(values, colorFg+"("+colorPurple+trialCount+colorReset+colorFg+" trials, "+colorPurple+waitingCount+colorReset+colorFg+" waiting)"+colorReset)
	} else if trialCount != "" {
		values = append(values, colorFg+"("+colorPurple+trialCount+colorReset+colorFg+" trials)"+colorReset)
	}

	if len(values) == 0 {
		return ""
	}

	return strings.Join(values, " ")
}
