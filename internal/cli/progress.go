package cli

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/dshills/rulecheck/internal/evaluate"
)

// progressEnabled reports whether a progress bar should be drawn: only on
// an interactive stderr and never when logging at debug level.
func progressEnabled(debug bool) bool {
	return !debug && isatty.IsTerminal(os.Stderr.Fd())
}

// newProgressBar returns nil when progress is disabled.
func newProgressBar(enabled bool, total int, description string) *progressbar.ProgressBar {
	if !enabled || total <= 0 {
		return nil
	}
	return progressbar.NewOptions64(int64(total),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!flagNoColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// progressFactory adapts newProgressBar to the engine's progress hook.
func progressFactory(enabled bool) func(total int) evaluate.Progress {
	return func(total int) evaluate.Progress {
		bar := newProgressBar(enabled, total, "Evaluating")
		if bar == nil {
			return nil
		}
		return bar
	}
}
