// ABOUTME: Multi-step phone verification flow with timers and rollback.
// ABOUTME: All timing is driven by an injected clock for deterministic tests.

package verify

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/veazy/veazy-client/internal/backend"
	"github.com/veazy/veazy-client/internal/identity"
)

// Step identifies the current position in the verification flow.
type Step string

const (
	StepPhoneEntry      Step = "phone_entry"
	StepCodeEntry       Step = "code_entry"
	StepProfileEntry    Step = "profile_entry"
	StepPreferenceEntry Step = "preference_entry"
	StepComplete        Step = "complete"
	StepCancelled       Step = "cancelled"
)

// Local validation errors. None of these reach the network.
var (
	ErrWrongStep          = errors.New("operation not valid in current step")
	ErrInvalidPhone       = errors.New("please enter a valid 10-digit phone number")
	ErrIncompleteCode     = errors.New("please enter the complete 6-digit code")
	ErrCodeExpired        = errors.New("code has expired; please request a new one")
	ErrResendNotAvailable = errors.New("please wait before requesting another code")
	ErrFirstNameRequired  = errors.New("first name is required")
	ErrLastNameRequired   = errors.New("last name is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmail       = errors.New("please enter a valid email address")
)

// Reference policy timings.
const (
	codeValidity   = 10 * time.Minute
	resendCooldown = time.Minute
	codeLength     = 6
	phoneDigits    = 10
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// API is what the flow needs from the wire client.
type API interface {
	SendOTP(ctx context.Context, countryCode, localPhone string) error
	VerifyOTP(ctx context.Context, countryCode, localPhone, code string) error
	CompleteRegistration(ctx context.Context, reg backend.Registration) (*backend.RegistrationResult, error)
}

// Flow is the verification state machine. It is not safe for concurrent use;
// the orchestrating caller owns serialization and the pending-call guard.
type Flow struct {
	api    API
	now    func() time.Time
	logger *slog.Logger

	step         Step
	countryCode  string
	localPhone   string
	code         string
	firstName    string
	lastName     string
	email        string
	codeDeadline time.Time
	resendAt     time.Time
}

// Option configures a Flow.
type Option func(*Flow)

// WithClock injects a time source. Used by tests to drive the countdown.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a verification flow at PhoneEntry. Pass nil logger for the
// default.
func NewFlow(api API, logger *slog.Logger, opts ...Option) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Flow{
		api:    api,
		now:    time.Now,
		step:   StepPhoneEntry,
		logger: logger.With("component", "verify"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Step returns the current step.
func (f *Flow) Step() Step { return f.step }

// Phone returns the collected calling code and local number.
func (f *Flow) Phone() (countryCode, localPhone string) {
	return f.countryCode, f.localPhone
}

// Code returns the digits entered so far.
func (f *Flow) Code() string { return f.code }

// Profile returns the collected profile fields.
func (f *Flow) Profile() (firstName, lastName, email string) {
	return f.firstName, f.lastName, f.email
}

// SubmitPhone validates the phone number and requests a one-time code.
// Spaces and hyphens are stripped before the digit-count check. On success
// the code validity window starts and the flow advances to CodeEntry; on
// failure the step does not change and the error is surfaced inline.
func (f *Flow) SubmitPhone(ctx context.Context, countryCode, localPhone string) error {
	if f.step != StepPhoneEntry {
		return ErrWrongStep
	}

	clean := strings.NewReplacer(" ", "", "-", "").Replace(localPhone)
	if len(clean) != phoneDigits || !allDigits(clean) {
		return ErrInvalidPhone
	}

	if err := f.api.SendOTP(ctx, countryCode, clean); err != nil {
		return err
	}

	f.countryCode = countryCode
	f.localPhone = clean
	f.startCodeWindow()
	f.step = StepCodeEntry
	f.logger.Info("verification code issued", "country_code", countryCode)
	return nil
}

// PushDigit appends one digit to the entered code. Non-digits and digits
// beyond the sixth are ignored.
func (f *Flow) PushDigit(d byte) {
	if f.step != StepCodeEntry || len(f.code) >= codeLength || d < '0' || d > '9' {
		return
	}
	f.code += string(d)
}

// PopDigit removes the most recently entered digit.
func (f *Flow) PopDigit() {
	if f.step != StepCodeEntry || f.code == "" {
		return
	}
	f.code = f.code[:len(f.code)-1]
}

// Paste fills the code from pasted text, keeping only digits, at most six.
func (f *Flow) Paste(s string) {
	if f.step != StepCodeEntry {
		return
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' && b.Len() < codeLength {
			b.WriteRune(r)
		}
	}
	f.code = b.String()
}

// CodeComplete reports whether all six digits have been entered.
func (f *Flow) CodeComplete() bool { return len(f.code) == codeLength }

// Remaining returns the time left in the code validity window.
func (f *Flow) Remaining() time.Duration {
	if f.step != StepCodeEntry {
		return 0
	}
	d := f.codeDeadline.Sub(f.now())
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the issued code's validity window has elapsed.
func (f *Flow) Expired() bool {
	return f.step == StepCodeEntry && !f.now().Before(f.codeDeadline)
}

// CanResend reports whether the resend cooldown has passed.
func (f *Flow) CanResend() bool {
	return f.step == StepCodeEntry && !f.now().Before(f.resendAt)
}

// Resend requests a fresh code. It clears the entered digits and restarts
// the countdown and cooldown.
func (f *Flow) Resend(ctx context.Context) error {
	if f.step != StepCodeEntry {
		return ErrWrongStep
	}
	if !f.CanResend() {
		return ErrResendNotAvailable
	}

	if err := f.api.SendOTP(ctx, f.countryCode, f.localPhone); err != nil {
		return err
	}

	f.code = ""
	f.startCodeWindow()
	f.logger.Info("verification code reissued")
	return nil
}

// SubmitCode verifies the entered code. Submission is blocked locally when
// the code is incomplete or expired. A server rejection keeps the step and
// surfaces the server's reason; success advances to ProfileEntry.
func (f *Flow) SubmitCode(ctx context.Context) error {
	if f.step != StepCodeEntry {
		return ErrWrongStep
	}
	if !f.CodeComplete() {
		return ErrIncompleteCode
	}
	if f.Expired() {
		return ErrCodeExpired
	}

	if err := f.api.VerifyOTP(ctx, f.countryCode, f.localPhone, f.code); err != nil {
		return err
	}

	f.step = StepProfileEntry
	return nil
}

// BackToPhone returns from CodeEntry to PhoneEntry, discarding the issued
// code. The phone number is kept for editing.
func (f *Flow) BackToPhone() error {
	if f.step != StepCodeEntry {
		return ErrWrongStep
	}
	f.code = ""
	f.codeDeadline = time.Time{}
	f.resendAt = time.Time{}
	f.step = StepPhoneEntry
	return nil
}

// SubmitProfile collects and validates the profile fields. Purely local:
// no network call happens at this step.
func (f *Flow) SubmitProfile(firstName, lastName, email string) error {
	if f.step != StepProfileEntry {
		return ErrWrongStep
	}

	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	email = strings.TrimSpace(email)

	switch {
	case firstName == "":
		return ErrFirstNameRequired
	case lastName == "":
		return ErrLastNameRequired
	case email == "":
		return ErrEmailRequired
	case !emailPattern.MatchString(email):
		return ErrInvalidEmail
	}

	f.firstName = firstName
	f.lastName = lastName
	f.email = email
	f.step = StepPreferenceEntry
	return nil
}

// SubmitPreference finalizes the flow, bundling every collected field into a
// single registration request. The preferred name is optional; Skip submits
// without one. On success the flow reaches Complete and the authenticated
// identity is returned; on failure the step is kept.
func (f *Flow) SubmitPreference(ctx context.Context, preferredName string) (*identity.Identity, string, error) {
	if f.step != StepPreferenceEntry {
		return nil, "", ErrWrongStep
	}

	res, err := f.api.CompleteRegistration(ctx, backend.Registration{
		CountryCode:   f.countryCode,
		LocalPhone:    f.localPhone,
		OTPCode:       f.code,
		FirstName:     f.firstName,
		LastName:      f.lastName,
		Email:         f.email,
		PreferredName: strings.TrimSpace(preferredName),
	})
	if err != nil {
		return nil, "", err
	}

	f.step = StepComplete
	f.logger.Info("verification complete", "user_id", res.Identity.UserID)
	return &res.Identity, res.Token, nil
}

// Skip finalizes without a preferred name.
func (f *Flow) Skip(ctx context.Context) (*identity.Identity, string, error) {
	return f.SubmitPreference(ctx, "")
}

// Cancel aborts the flow from any non-terminal step, clearing every
// collected field so nothing leaks into a subsequent attempt.
func (f *Flow) Cancel() {
	if f.step == StepComplete || f.step == StepCancelled {
		return
	}
	f.reset()
	f.step = StepCancelled
}

// Restart begins a fresh attempt at PhoneEntry with all fields empty.
func (f *Flow) Restart() {
	f.reset()
	f.step = StepPhoneEntry
}

func (f *Flow) reset() {
	f.countryCode = ""
	f.localPhone = ""
	f.code = ""
	f.firstName = ""
	f.lastName = ""
	f.email = ""
	f.codeDeadline = time.Time{}
	f.resendAt = time.Time{}
}

func (f *Flow) startCodeWindow() {
	now := f.now()
	f.codeDeadline = now.Add(codeValidity)
	f.resendAt = now.Add(resendCooldown)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
