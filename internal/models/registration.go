package models

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// RegistrationTarget is decided once when the registration payload is
// validated and carried through the whole flow, instead of re-deriving the
// channel from which optional field happens to be set.
type RegistrationTarget struct {
	Channel   Channel
	Recipient string
}

func EmailTarget(address string) RegistrationTarget {
	return RegistrationTarget{Channel: ChannelEmail, Recipient: address}
}

func PhoneTarget(number string) RegistrationTarget {
	return RegistrationTarget{Channel: ChannelPhone, Recipient: number}
}

// PendingRegistration is the ephemeral draft-user record awaiting code
// confirmation. Lives in the cache under verify_code_user:{identifier}.
type PendingRegistration struct {
	User    DraftUser `json:"user"`
	Code    int       `json:"code"`
	Attempt int64     `json:"attempt"`
}
