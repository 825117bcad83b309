package enums

// TerminationReason explains why a session was forcibly ended.
type TerminationReason string

const (
	TerminationConcurrentLogin TerminationReason = "concurrent_login"
	TerminationPasswordReset   TerminationReason = "password_reset"
	TerminationLogout          TerminationReason = "logout"
	TerminationAdminAction     TerminationReason = "admin_action"
)
