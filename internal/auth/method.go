package auth

import (
	"fmt"
	"strings"
)

// Method identifies how a command was authorised.
type Method string

const (
	MethodPIN              Method = "PIN"
	MethodFingerprintProxy Method = "FINGERPRINT_PROXY"
	MethodFace             Method = "FACE"

	// MethodAuto marks commands issued by the relock scheduler. It is
	// never accepted from a client.
	MethodAuto Method = "AUTO"
)

// ClientMethods are the methods a request may name.
var ClientMethods = []Method{MethodPIN, MethodFingerprintProxy, MethodFace}

// legacy names still sent by older panels and simulators.
var methodAliases = map[string]Method{
	"PINCODE":     MethodPIN,
	"FINGERPRINT": MethodFingerprintProxy,
}

// ParseMethod maps a client-supplied method name to a Method.
// Matching is case-insensitive. AUTO returns ErrReservedMethod.
func ParseMethod(s string) (Method, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if alias, ok := methodAliases[name]; ok {
		return alias, nil
	}

	switch m := Method(name); m {
	case MethodPIN, MethodFingerprintProxy, MethodFace:
		return m, nil
	case MethodAuto:
		return "", fmt.Errorf("%w: %s", ErrReservedMethod, s)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// String returns the wire name.
func (m Method) String() string {
	return string(m)
}
