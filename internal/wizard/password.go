package wizard

import "unicode"

// MinPasswordStrength is the number of satisfied rules a password needs
// before submission is enabled.
const MinPasswordStrength = 3

const minPasswordLength = 8

// PasswordRules records which of the five strength rules a password meets.
type PasswordRules struct {
	Length  bool `json:"length"`
	Upper   bool `json:"upper"`
	Lower   bool `json:"lower"`
	Digit   bool `json:"digit"`
	Special bool `json:"special"`
}

func EvaluatePassword(pw string) PasswordRules {
	var r PasswordRules
	count := 0
	for _, c := range pw {
		count++
		switch {
		case unicode.IsUpper(c):
			r.Upper = true
		case unicode.IsLower(c):
			r.Lower = true
		case unicode.IsDigit(c):
			r.Digit = true
		case !unicode.IsSpace(c) && !unicode.IsLetter(c):
			r.Special = true
		}
	}
	r.Length = count >= minPasswordLength
	return r
}

func (r PasswordRules) Score() int {
	score := 0
	for _, ok := range []bool{r.Length, r.Upper, r.Lower, r.Digit, r.Special} {
		if ok {
			score++
		}
	}
	return score
}

// PasswordStrength is the count of satisfied rules, 0 to 5.
func PasswordStrength(pw string) int {
	return EvaluatePassword(pw).Score()
}

func StrengthLabel(score int) string {
	switch {
	case score <= 1:
		return "Très faible"
	case score == 2:
		return "Faible"
	case score == 3:
		return "Moyen"
	case score == 4:
		return "Fort"
	}
	return "Très fort"
}

// PasswordsMatch is exact, case-sensitive equality of a non-empty
// confirmation.
func PasswordsMatch(pw, confirm string) bool {
	return confirm != "" && pw == confirm
}

func CanSubmitPassword(pw, confirm string) bool {
	return PasswordStrength(pw) >= MinPasswordStrength && PasswordsMatch(pw, confirm)
}

// PasswordCheck is the indicator block rendered under password fields.
type PasswordCheck struct {
	Rules        PasswordRules `json:"rules"`
	Score        int           `json:"score"`
	Label        string        `json:"label"`
	Match        bool          `json:"match"`
	ShowMismatch bool          `json:"show_mismatch"`
	CanSubmit    bool          `json:"can_submit"`
}

func CheckPassword(pw, confirm string) PasswordCheck {
	rules := EvaluatePassword(pw)
	score := rules.Score()
	match := PasswordsMatch(pw, confirm)
	return PasswordCheck{
		Rules:        rules,
		Score:        score,
		Label:        StrengthLabel(score),
		Match:        match,
		ShowMismatch: confirm != "" && !match,
		CanSubmit:    score >= MinPasswordStrength && match,
	}
}
