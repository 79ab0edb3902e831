package guard

import (
	"encoding/json"
	"net/http"
	"strconv"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

// Reject messages are fixed per failure class. Deny messages deliberately
// do not say which check failed.
const (
	msgMissingHeaders     = "Missing required header(s)"
	msgInvalidToken       = "Invalid token"
	msgInvalidAuthToken   = "Invalid authentication token"
	msgConfigurationError = "Configuration error"
)

// EdgeResponse is the engine's verdict for one request: either forward it
// with the given headers attached, or reject it with the given status and
// body. Exactly one of the two postures is populated.
type EdgeResponse struct {
	// Allow reports whether the request should be forwarded.
	Allow bool

	// HeadersToAdd holds the headers to set on the forwarded request.
	// Nil on reject; nil on allow when the scheme adds no headers.
	HeadersToAdd map[string]string

	// Status is the HTTP status to respond with on reject. Zero on
	// allow.
	Status int

	// Body is the JSON reject body. Nil on allow.
	Body []byte

	// Claim carries the authenticated claim on allow. Zero on reject.
	Claim Claim
}

// Decide maps a validation outcome onto an [EdgeResponse]. A nil err is
// an allow; every non-nil err is a reject whose status and message depend
// only on the error's classification, never on its internals.
func Decide(scheme Scheme, claim Claim, err error) EdgeResponse {
	if err != nil {
		return reject(scheme, err)
	}

	resp := EdgeResponse{Allow: true, Claim: claim}
	if scheme == SchemeEncryptedEnvelope {
		device := claim.Device
		if device == "" {
			device = "unknown"
		}
		resp.HeadersToAdd = map[string]string{
			HeaderValidatedDevice:    device,
			HeaderValidatedTimestamp: strconv.FormatInt(claim.Timestamp, 10),
		}
	}
	return resp
}

// reject classifies the error into one of three reject shapes: missing
// headers, a generic per-scheme deny, or a configuration error. Anything
// that is not an explicit deny is treated as an operator problem and
// surfaces as a 500 so that outages never silently admit traffic.
func reject(scheme Scheme, err error) EdgeResponse {
	switch {
	case tgerr.HasCode(err, tgerr.CodeDecodeMissingHeader):
		return rejectResponse(http.StatusForbidden, msgMissingHeaders)
	case tgerr.IsDeny(err):
		msg := msgInvalidToken
		if scheme == SchemeEncryptedEnvelope {
			msg = msgInvalidAuthToken
		}
		return rejectResponse(http.StatusForbidden, msg)
	default:
		return rejectResponse(http.StatusInternalServerError, msgConfigurationError)
	}
}

// rejectResponse builds the reject posture with a JSON error body.
func rejectResponse(status int, message string) EdgeResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return EdgeResponse{Allow: false, Status: status, Body: body}
}
