package jobs

type JobType string

const (
	// post-registration side effects; all fire-and-forget from the
	// request's point of view
	JobWelcomeEmail        JobType = "user.welcome_email"
	JobEmailSequence       JobType = "user.email_sequence"
	JobReferralAttribution JobType = "user.referral_attribution"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobWelcomeEmail, JobEmailSequence, JobReferralAttribution:
		return true
	default:
		return false
	}
}
