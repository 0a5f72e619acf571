package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/khanhnv2901/cybersafe/internal/scoring"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass", "verified":
		return colorSuccess(status)
	case "error", "fail", "failed", "blocked":
		return colorError(status)
	default:
		return status
	}
}

// formatScoreWithColor colours a 0-100 score by its report band.
func formatScoreWithColor(score int) string {
	label := fmt.Sprintf("%d", score)
	switch scoring.Grade(score) {
	case "good":
		return colorSuccess(label)
	case "medium":
		return colorWarn(label)
	default:
		return colorError(label)
	}
}
