package alert

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// ConsoleSink writes alerts to the terminal with color.
type ConsoleSink struct{}

// NewConsoleSink creates a new console alert sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes an alert to the terminal with color-coded severity.
func (s *ConsoleSink) Send(_ context.Context, alert types.Alert) error {
	var prefix string
	switch alert.Level {
	case types.AlertLevelError:
		prefix = color.RedString("[ERROR]")
	case types.AlertLevelWarning:
		prefix = color.YellowString("[WARN]")
	default:
		prefix = color.CyanString("[INFO]")
	}

	switch {
	case alert.ModelVersion != "" && alert.Feature != "":
		fmt.Printf("%s [%s/%s] %s\n", prefix, alert.ModelVersion, alert.Feature, alert.Message)
	case alert.ModelVersion != "":
		fmt.Printf("%s [%s] %s\n", prefix, alert.ModelVersion, alert.Message)
	default:
		fmt.Printf("%s %s\n", prefix, alert.Message)
	}
	return nil
}
