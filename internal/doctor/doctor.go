// Package doctor validates milestone-hook configuration beyond what Load enforces.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/milestone-hook/internal/config"
	"github.com/mattjoyce/milestone-hook/internal/tracker"
	"github.com/mattjoyce/milestone-hook/internal/webhook"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// GitHub rejects label names longer than this.
const maxLabelLength = 50

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor for a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateWebhook(r)
	d.validateTracker(r)
	d.validateAppCredentials(r)
	d.warnWeakSecret(r)
	d.warnUnlocked(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateWebhook checks listener address, body limit and header choice.
func (d *Doctor) validateWebhook(r *Result) {
	wc := d.cfg.Webhook

	host, _, err := net.SplitHostPort(wc.Listen)
	if err != nil {
		d.addError(r, "webhook", "webhook.listen",
			fmt.Sprintf("invalid listen address %q: %v", wc.Listen, err))
	} else if host == "" || host == "0.0.0.0" || host == "::" {
		d.addWarning(r, "webhook", "webhook.listen",
			"listening on all interfaces; make sure a TLS proxy fronts this service")
	}

	if _, err := webhook.FromGlobalConfig(d.cfg); err != nil {
		d.addError(r, "webhook", "webhook.max_body_size", err.Error())
	}

	if strings.EqualFold(wc.SignatureHeader, "X-Hub-Signature-256") {
		d.addError(r, "webhook", "webhook.signature_header",
			"X-Hub-Signature-256 carries a sha256 digest; signatures are verified as sha1 (use X-Hub-Signature)")
	}
}

// validateTracker checks label and client limits.
func (d *Doctor) validateTracker(r *Result) {
	tc := d.cfg.Tracker

	if len(tc.Label) > maxLabelLength {
		d.addError(r, "tracker", "tracker.label",
			fmt.Sprintf("label is %d characters; GitHub allows at most %d", len(tc.Label), maxLabelLength))
	}

	if u, err := url.Parse(tc.BaseURL); err == nil && u.Scheme == "http" {
		d.addWarning(r, "tracker", "tracker.base_url", "base_url uses plain http; tokens will be sent unencrypted")
	}

	if tc.Timeout > time.Minute {
		d.addWarning(r, "tracker", "tracker.timeout",
			fmt.Sprintf("timeout %s is long; GitHub waits at most 10s for a webhook response", tc.Timeout))
	}
	if tc.MaxConcurrentUpdates > 20 {
		d.addWarning(r, "tracker", "tracker.max_concurrent_updates",
			fmt.Sprintf("%d concurrent updates may trip GitHub secondary rate limits", tc.MaxConcurrentUpdates))
	}
}

// validateAppCredentials checks the App private key can be read and parsed.
func (d *Doctor) validateAppCredentials(r *Result) {
	app := d.cfg.Tracker.App
	if app == nil {
		return
	}

	key, err := os.ReadFile(app.PrivateKeyPath)
	if err != nil {
		d.addError(r, "tracker", "tracker.app.private_key_path",
			fmt.Sprintf("cannot read private key: %v", err))
		return
	}
	if _, err := tracker.NewJWTGenerator(app.AppID, key); err != nil {
		d.addError(r, "tracker", "tracker.app.private_key_path", err.Error())
	}

	if info, err := os.Stat(app.PrivateKeyPath); err == nil && info.Mode().Perm()&0o077 != 0 {
		d.addWarning(r, "tracker", "tracker.app.private_key_path",
			fmt.Sprintf("private key is accessible by other users (mode %o)", info.Mode().Perm()))
	}
}

// warnWeakSecret flags short shared secrets.
func (d *Doctor) warnWeakSecret(r *Result) {
	if n := len(d.cfg.Webhook.Secret); n > 0 && n < 16 {
		d.addWarning(r, "security", "webhook.secret",
			fmt.Sprintf("secret is only %d characters; use at least 16", n))
	}
}

// warnUnlocked warns when no integrity manifest pins the config.
func (d *Doctor) warnUnlocked(r *Result) {
	if d.cfg.SourcePath == "" {
		return
	}
	dir := filepath.Dir(d.cfg.SourcePath)
	if _, err := config.LoadChecksums(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.addWarning(r, "integrity", "",
				fmt.Sprintf("no %s in %s; run 'milestone-hook config lock'", config.ChecksumsFile, dir))
			return
		}
		d.addError(r, "integrity", "", err.Error())
	}
}

var (
	validStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00"))
	invalidStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString(validStyle.Render("Configuration valid."))
		b.WriteString("\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString(validStyle.Render(fmt.Sprintf("Configuration valid (%d warning(s))", len(r.Warnings))))
		b.WriteString("\n")
	}

	if !r.Valid {
		b.WriteString(invalidStyle.Render(fmt.Sprintf("Configuration invalid (%d error(s), %d warning(s))",
			len(r.Errors), len(r.Warnings))))
		b.WriteString("\n")
	}

	for _, e := range r.Errors {
		writeIssue(&b, errorStyle.Render("ERROR"), e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, warnStyle.Render("WARN "), w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, label string, issue Issue) {
	category := dimStyle.Render("[" + issue.Category + "]")
	if issue.Field != "" {
		fmt.Fprintf(b, "  %s %s %s: %s\n", label, category, issue.Field, issue.Message)
		return
	}
	fmt.Fprintf(b, "  %s %s %s\n", label, category, issue.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
