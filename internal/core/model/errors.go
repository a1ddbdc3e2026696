package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of failures the engine and its store report.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindProxyOnly
	KindTypeMismatch
	KindAmbiguousResult
	KindStoreUnavailable
)

var (
	ErrNotFound         = errors.New("instance not found")
	ErrProxyOnly        = errors.New("only a proxy is stored for entity")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrAmbiguousResult  = errors.New("ambiguous result")
	ErrStoreUnavailable = errors.New("store unavailable")
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindProxyOnly:
		return "proxy_only"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindAmbiguousResult:
		return "ambiguous_result"
	case KindStoreUnavailable:
		return "store_unavailable"
	}
	return "unknown"
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindProxyOnly:
		return ErrProxyOnly
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindAmbiguousResult:
		return ErrAmbiguousResult
	case KindStoreUnavailable:
		return ErrStoreUnavailable
	}
	return nil
}

// Error is returned by stores and by the engine. Callers switch on Kind or
// use errors.Is with the sentinel values above.
type Error struct {
	Kind  ErrorKind
	Op    string
	GUID  string
	GUIDs []string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("error")
	}
	if e.GUID != "" {
		fmt.Fprintf(&b, " (guid %s)", e.GUID)
	}
	if len(e.GUIDs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.GUIDs, ", "))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func NotFoundError(op, guid string) error {
	return &Error{Kind: KindNotFound, Op: op, GUID: guid}
}

func ProxyOnlyError(op, guid string) error {
	return &Error{Kind: KindProxyOnly, Op: op, GUID: guid}
}

func TypeMismatchError(op, guid, expected, actual string) error {
	return &Error{
		Kind: KindTypeMismatch,
		Op:   op,
		GUID: guid,
		Msg:  fmt.Sprintf("expected %s, found %s", expected, actual),
	}
}

func AmbiguousResultError(op string, guids []string) error {
	return &Error{Kind: KindAmbiguousResult, Op: op, GUIDs: append([]string(nil), guids...)}
}

func StoreUnavailableError(op string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}
