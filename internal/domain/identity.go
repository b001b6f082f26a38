package domain

// Channel is the medium an identifier OTP is delivered through.
type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

// IdentityClaim is what a party claims to be before a session exists.
type IdentityClaim struct {
	Channel         Channel
	RawValue        string
	NormalizedValue string // E.164 for phone, lowercased for email
	Digits          string // phone only
	Country         string // ISO-2, phone only
}

// ImpersonationGrant is the outcome of exchanging a staff-issued one-time token.
type ImpersonationGrant struct {
	Session      string
	JournalID    string
	JournalName  string
	AllowApprove bool
}
