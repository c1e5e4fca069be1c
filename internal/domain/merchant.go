package domain

// OnboardingStatus tracks how far a merchant's connected account has progressed.
type OnboardingStatus string

const (
	OnboardingPending    OnboardingStatus = "pending"
	OnboardingIncomplete OnboardingStatus = "incomplete"
	OnboardingComplete   OnboardingStatus = "complete"
	OnboardingVerified   OnboardingStatus = "verified"
)

// AccountCapabilities are the processor flags that drive onboarding status.
type AccountCapabilities struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// DeriveOnboardingStatus is a pure function of the capability flags. It is
// recomputed on every account update, never patched.
func DeriveOnboardingStatus(c AccountCapabilities) OnboardingStatus {
	switch {
	case c.ChargesEnabled && c.PayoutsEnabled:
		return OnboardingComplete
	case c.DetailsSubmitted:
		return OnboardingIncomplete
	default:
		return OnboardingPending
	}
}
