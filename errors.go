package routestate

import "fmt"

// ErrorCode categorizes failures raised by the tree builder, the path
// compiler, the matcher and the navigation state machine.
type ErrorCode int

const (
	// ErrCodeInvalidRoute covers malformed names/paths rejected at tree build.
	ErrCodeInvalidRoute ErrorCode = iota
	// ErrCodeDuplicateRoute covers duplicate fullName/path/sibling-path.
	ErrCodeDuplicateRoute
	// ErrCodeMissingParent covers dot-notation names whose parent is absent.
	ErrCodeMissingParent
	// ErrCodeMissingParameters covers buildPath calls missing required params.
	ErrCodeMissingParameters
	// ErrCodeConstraintViolation covers buildPath params failing a constraint regex.
	ErrCodeConstraintViolation
	// ErrCodeRouteNotFound covers navigate(name) for an unregistered name.
	ErrCodeRouteNotFound
	// ErrCodeNotAllowed covers a canActivate/canDeactivate guard denial.
	ErrCodeNotAllowed
	// ErrCodeTransitionCancelled covers a preempted or stopped transition.
	ErrCodeTransitionCancelled
	// ErrCodeForwardChainTooLong covers a forwardTo cycle.
	ErrCodeForwardChainTooLong
	// ErrCodeGuardThrew covers a panic recovered from a canActivate/canDeactivate callback.
	ErrCodeGuardThrew
	// ErrCodeMiddlewareThrew covers a panic recovered from a middleware callback.
	ErrCodeMiddlewareThrew
	// ErrCodePluginThrew covers a panic recovered from a plugin hook.
	ErrCodePluginThrew
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidRoute:
		return "InvalidRoute"
	case ErrCodeDuplicateRoute:
		return "DuplicateRoute"
	case ErrCodeMissingParent:
		return "MissingParent"
	case ErrCodeMissingParameters:
		return "MissingParameters"
	case ErrCodeConstraintViolation:
		return "ConstraintViolation"
	case ErrCodeRouteNotFound:
		return "RouteNotFound"
	case ErrCodeNotAllowed:
		return "NotAllowed"
	case ErrCodeTransitionCancelled:
		return "TransitionCancelled"
	case ErrCodeForwardChainTooLong:
		return "ForwardChainTooLong"
	case ErrCodeGuardThrew:
		return "GuardThrew"
	case ErrCodeMiddlewareThrew:
		return "MiddlewareThrew"
	case ErrCodePluginThrew:
		return "PluginThrew"
	default:
		return fmt.Sprintf("UnknownError(%d)", int(c))
	}
}

// Error is the single error type raised by every package operation. Build-time
// errors (tree construction, buildPath) are returned synchronously. Navigation
// errors are additionally published on the $$error event channel.
type Error struct {
	Code    ErrorCode
	Message string
	Route   string // fullName, when applicable
	Cause   error
}

func (e *Error) Error() string {
	if e.Route != "" {
		return fmt.Sprintf("[%s] %s (route: %s)", e.Code, e.Message, e.Route)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(code ErrorCode, route, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Route: route}
}

func wrapErr(code ErrorCode, route string, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Route: route, Cause: cause}
}
