package exterrors

import "fmt"

// Code is one of the wire-level error codes the RPC boundary maps errors
// onto (spec §6, §7). The storage/instance/ics/viewtable/rules packages
// never return bare errors for expected failure modes; they wrap them with
// a Code so the (out-of-scope) RPC layer can translate without string
// matching.
type Code string

const (
	CodeSuccess                  Code = "success"
	CodeNullObject                Code = "nullObject"
	CodeNotSupported             Code = "notSupported"
	CodeInvalidParam             Code = "invalidParam"
	CodeAccessDenied             Code = "accessDenied"
	CodeQuotaExceeded            Code = "quotaExceeded"
	CodeDuplicateName            Code = "duplicateName"
	CodeNotFound                 Code = "notFound"
	CodeOutOfMemory              Code = "mapiOutOfMemory"
	CodeBufferTooSmall           Code = "bufferTooSmall"
	CodeLoginPerm                Code = "loginPerm"
	CodeLoginFailure             Code = "loginFailure"
	CodeWrongServer              Code = "wrongServer"
	CodeSyncIgnore               Code = "syncIgnore"
	CodeSyncConflict             Code = "syncConflict"
	CodeSyncClientChangeNewer    Code = "syncClientChangeNewer"
)

type codedErr struct {
	code   Code
	reason string
}

func (e *codedErr) Error() string {
	if e.reason == "" {
		return string(e.code)
	}
	return fmt.Sprintf("%s: %s", e.code, e.reason)
}

func (e *codedErr) Fields() map[string]interface{} {
	return map[string]interface{}{
		"code":   string(e.code),
		"reason": e.reason,
	}
}

// New constructs an error tagged with one of the wire-level codes.
func New(code Code, reason string) error {
	return &codedErr{code: code, reason: reason}
}

// Newf is like New but with fmt.Sprintf-style formatting of reason.
func Newf(code Code, format string, args ...interface{}) error {
	return &codedErr{code: code, reason: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code tagged on err (or on an error in its Unwrap chain),
// returning ("", false) if none of the wrapped errors carry one.
func CodeOf(err error) (Code, bool) {
	for err != nil {
		if ce, ok := err.(*codedErr); ok {
			return ce.code, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}
