package view

import "github.com/frahmantamala/taxfree-console/internal/wizard"

// Dashboard is the home screen: independent tiles and tables. StreamURL
// feeds auto-refresh.
type Dashboard struct {
	Cards     []StatsCard `json:"cards"`
	Tables    []Table     `json:"tables,omitempty"`
	StreamURL string      `json:"stream_url,omitempty"`
	Interval  int         `json:"interval_seconds,omitempty"`
}

// OTPPrompt is the second login step.
type OTPPrompt struct {
	Email        string `json:"email"`
	Display      string `json:"display"`
	Remaining    int    `json:"remaining"`
	Expired      bool   `json:"expired"`
	StreamURL    string `json:"stream_url"`
	VerifyAction string `json:"verify_action"`
	ResendAction string `json:"resend_action"`
	CancelAction string `json:"cancel_action"`
	Error        string `json:"error,omitempty"`
}

type Rule struct {
	Label string `json:"label"`
	Met   bool   `json:"met"`
}

// PasswordMeter is the live strength and match indicator.
type PasswordMeter struct {
	Score        int    `json:"score"`
	Label        string `json:"label"`
	Rules        []Rule `json:"rules"`
	Match        bool   `json:"match"`
	ShowMismatch bool   `json:"show_mismatch"`
	CanSubmit    bool   `json:"can_submit"`
}

// Meter maps a password check to its indicator.
func Meter(c wizard.PasswordCheck) *PasswordMeter {
	return &PasswordMeter{
		Score: c.Score,
		Label: c.Label,
		Rules: []Rule{
			{"8 caractères minimum", c.Rules.Length},
			{"Une majuscule", c.Rules.Upper},
			{"Une minuscule", c.Rules.Lower},
			{"Un chiffre", c.Rules.Digit},
			{"Un caractère spécial", c.Rules.Special},
		},
		Match:        c.Match,
		ShowMismatch: c.ShowMismatch,
		CanSubmit:    c.CanSubmit,
	}
}

// Wizard renders one step of a multi-step flow, or its terminal screen.
type Wizard struct {
	Title          string         `json:"title"`
	Phase          string         `json:"phase"`
	Step           int            `json:"step"`
	StepCount      int            `json:"step_count"`
	Steps          []string       `json:"steps"`
	Form           Form           `json:"form"`
	BackURL        string         `json:"back_url,omitempty"`
	IsLast         bool           `json:"is_last"`
	Password       *PasswordMeter `json:"password,omitempty"`
	Countdown      string         `json:"countdown,omitempty"`

	Loading        bool           `json:"loading,omitempty"`
	Invalid        bool           `json:"invalid,omitempty"`
	InvalidMessage string         `json:"invalid_message,omitempty"`

	Success        bool           `json:"success,omitempty"`
	SuccessTitle   string         `json:"success_title,omitempty"`
	SuccessMessage string         `json:"success_message,omitempty"`
	Redirect       string         `json:"redirect,omitempty"`
}

// Notice is a plain message screen: access denied, loading, errors and
// maintenance.
type Notice struct {
	Heading   string `json:"heading"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Link      string `json:"link,omitempty"`
	LinkLabel string `json:"link_label,omitempty"`
	StreamURL string `json:"stream_url,omitempty"`
}

// Report is the summary screen: a period filter, headline figures, ranking
// tables and the export links.
type Report struct {
	Action  string        `json:"-"`
	Fields  []FilterField `json:"-"`
	Cards   []StatsCard   `json:"cards"`
	Tables  []Table       `json:"tables,omitempty"`
	Exports []Control     `json:"exports,omitempty"`
	Note    string        `json:"note,omitempty"`
}
