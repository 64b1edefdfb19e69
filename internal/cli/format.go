// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatTemp formats a temperature in degrees Celsius.
// e.g., 1.5 -> "1.5 °C", -0.25 -> "-0.3 °C"
func FormatTemp(c float64) string {
	return fmt.Sprintf("%.1f °C", c)
}

// FormatPower formats a power value in watts, switching to kW above 10 kW.
func FormatPower(w float64) string {
	if w >= 10_000 {
		return fmt.Sprintf("%.1f kW", w/1000)
	}
	return fmt.Sprintf("%s W", FormatNumber(int64(w+0.5)))
}

// FormatSlope formats a stooklijn slope in watts per degree.
func FormatSlope(wPerC float64) string {
	return fmt.Sprintf("%.0f W/°C", wPerC)
}

// FormatCOP formats a coefficient of performance.
func FormatCOP(cop float64) string {
	return fmt.Sprintf("%.2f", cop)
}

// FormatR2 formats a regression fit quality.
func FormatR2(r2 float64) string {
	return fmt.Sprintf("R²=%.3f", r2)
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a 0-1 float as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// FormatCount formats a day count with its unit.
func FormatCount(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%s %ss", FormatNumber(int64(n)), unit)
}
