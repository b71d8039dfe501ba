package view

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout     = "02/01/2006"
	dateTimeLayout = "02/01/2006 15:04"
)

// Or returns s, or a dash when s is blank.
func Or(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func DateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateTimeLayout)
}

// DateTimePtr formats an optional timestamp.
func DateTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return DateTime(*t)
}

func Number(n int) string { return strconv.Itoa(n) }

// Amount formats a monetary value with two decimals and its currency.
func Amount(v float64, currency string) string {
	s := fmt.Sprintf("%.2f", v)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

// Bool renders a yes/no flag.
func Bool(b bool) string {
	if b {
		return "Oui"
	}
	return "Non"
}
