package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Session & Identity errors
// 12000-12999: Problem catalog errors
// 13000-13999: Workspace, Run & Submit errors
// 16000-16999: Admin & Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalError      ErrorCode = 10001
	InvalidParams      ErrorCode = 10002
	NotFound           ErrorCode = 10003
	Unauthorized       ErrorCode = 10004
	Forbidden          ErrorCode = 10005
	ServiceUnavailable ErrorCode = 10007

	// Transport errors (10100-10199)
	TransportFailed     ErrorCode = 10100
	UnexpectedStatus    ErrorCode = 10101
	MalformedResponse   ErrorCode = 10102
	RequestBuildFailed  ErrorCode = 10103
	TokenStorageFailure ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Session & Identity Errors (11000-11999) ==========

	AuthorizationRequired  ErrorCode = 11000
	TokenExpired           ErrorCode = 11003
	TokenInvalid           ErrorCode = 11004
	SessionInitializing    ErrorCode = 11005
	ReconciliationFailed   ErrorCode = 11100
	IdentityProviderFailed ErrorCode = 11101
	SignInStateMismatch    ErrorCode = 11102

	// ========== Problem Catalog Errors (12000-12999) ==========

	ProblemNotFound   ErrorCode = 12000
	InvalidDifficulty ErrorCode = 12001

	// ========== Workspace, Run & Submit Errors (13000-13999) ==========

	NoActiveWorkspace    ErrorCode = 13000
	OperationInProgress  ErrorCode = 13001
	LanguageNotSupported ErrorCode = 13003
	ResultDiscarded      ErrorCode = 13004

	// Judge (13100-13199)
	JudgeFailed ErrorCode = 13101

	// ========== Admin & Permission Errors (16000-16999) ==========

	PermissionDenied     ErrorCode = 16000
	AdminOperationFailed ErrorCode = 16100
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:            "Success",
	InternalError:      "Internal error",
	InvalidParams:      "Invalid parameters",
	NotFound:           "Resource not found",
	Unauthorized:       "Unauthorized access",
	Forbidden:          "Access forbidden",
	ServiceUnavailable: "Service temporarily unavailable",

	// Transport
	TransportFailed:     "Network request failed",
	UnexpectedStatus:    "Unexpected response status",
	MalformedResponse:   "Malformed response payload",
	RequestBuildFailed:  "Failed to build request",
	TokenStorageFailure: "Failed to access token storage",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Session & Identity
	AuthorizationRequired:  "Please sign in to continue",
	TokenExpired:           "Token has expired",
	TokenInvalid:           "Invalid token",
	SessionInitializing:    "Session is still initializing",
	ReconciliationFailed:   "Failed to load user profile",
	IdentityProviderFailed: "Identity provider request failed",
	SignInStateMismatch:    "Sign-in state does not match",

	// Problem
	ProblemNotFound:   "Problem not found",
	InvalidDifficulty: "Invalid difficulty",

	// Workspace
	NoActiveWorkspace:    "No problem is open",
	OperationInProgress:  "Another run or submission is in progress",
	LanguageNotSupported: "Programming language not supported",
	ResultDiscarded:      "Result discarded because the workspace changed",

	// Judge
	JudgeFailed: "Judge system error",

	// Permission
	PermissionDenied:     "Admin privileges required",
	AdminOperationFailed: "Admin operation failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the HTTP status code a backend would use for the error code.
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == AuthorizationRequired, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c >= 16000 && c < 16100: // Permission errors
		return 403
	case c == NotFound, c == ProblemNotFound:
		return 404
	case c == OperationInProgress:
		return 409
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == InvalidDifficulty:
		return 400
	default:
		return 500
	}
}

// CodeFromStatus maps a backend HTTP status to the closest error code.
func CodeFromStatus(status int) ErrorCode {
	switch {
	case status == 401:
		return AuthorizationRequired
	case status == 403:
		return PermissionDenied
	case status == 404:
		return NotFound
	case status == 400, status == 422:
		return ValidationFailed
	case status == 503:
		return ServiceUnavailable
	case status >= 200 && status < 300:
		return Success
	default:
		return UnexpectedStatus
	}
}

// IsAuthorization reports whether the code belongs to the authorization class
// (missing/expired credential or missing role).
func (c ErrorCode) IsAuthorization() bool {
	switch c {
	case Unauthorized, AuthorizationRequired, TokenExpired, TokenInvalid, SessionInitializing, Forbidden, PermissionDenied:
		return true
	}
	return false
}
