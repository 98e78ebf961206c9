package application

const (
	// eventTypeUserRegistered is emitted when a credential record is created.
	eventTypeUserRegistered = "auth.user.registered"
	// eventTypeAccountLocked is emitted when repeated failures lock an account.
	eventTypeAccountLocked = "auth.account.locked"
	// eventTypeSessionCleared is emitted when a logout clears the session.
	eventTypeSessionCleared = "auth.session.cleared"
)
