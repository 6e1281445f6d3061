package auth

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// maxTokenSize caps the credential length accepted by decodeToken. Session
// tokens are well under 2 KiB; anything larger is rejected before parsing.
const maxTokenSize = 8192

// segmentParser decodes unpadded base64url segments.
var segmentParser = jwt.NewParser(jwt.WithStrictDecoding())

// TokenHeader is the JOSE header of a compact token.
type TokenHeader struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid"`
	Type      string `json:"typ,omitempty"`
}

// decodedToken is a token split into parts but not yet trusted.
type decodedToken struct {
	header TokenHeader
	claims jwt.MapClaims

	// signingInput is the original "header.payload" text; the signature
	// covers these exact bytes.
	signingInput string
	signature    []byte
}

// decodeToken splits raw into its three segments and decodes them. It
// checks structure only; kid and signature presence are checked by
// [decodedToken.requireKeyMaterial] once the algorithm has been accepted,
// so "none" and HS* tokens are rejected as bad signatures whatever else
// they lack. All failures carry [sserr.CodeAuthenticationInvalid].
func decodeToken(raw string) (*decodedToken, error) {
	if len(raw) > maxTokenSize {
		return nil, malformed("token exceeds maximum size")
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, malformed("token must have three segments")
	}

	headerJSON, err := segmentParser.DecodeSegment(parts[0])
	if err != nil {
		return nil, wrapMalformed(err, "header is not base64url")
	}
	payloadJSON, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, wrapMalformed(err, "payload is not base64url")
	}
	signature, err := segmentParser.DecodeSegment(parts[2])
	if err != nil {
		return nil, wrapMalformed(err, "signature is not base64url")
	}

	var header TokenHeader
	if err := decodeObject(headerJSON, &header); err != nil {
		return nil, wrapMalformed(err, "header is not a JSON object")
	}

	var claims jwt.MapClaims
	if err := decodeObject(payloadJSON, &claims); err != nil {
		return nil, wrapMalformed(err, "payload is not a JSON object")
	}

	return &decodedToken{
		header:       header,
		claims:       claims,
		signingInput: raw[:len(parts[0])+1+len(parts[1])],
		signature:    signature,
	}, nil
}

// requireKeyMaterial reports a malformed token when the header names no
// kid or the signature segment is empty. Callers run it after the
// algorithm gate.
func (t *decodedToken) requireKeyMaterial() error {
	if t.header.KeyID == "" {
		return malformed("header has no kid")
	}
	if len(t.signature) == 0 {
		return malformed("signature is empty")
	}
	return nil
}

// decodeObject unmarshals data into v, rejecting anything but a JSON object.
func decodeObject(data []byte, v any) error {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return errNotObject
	}
	return json.Unmarshal(data, v)
}

var errNotObject = sserr.New(sserr.CodeValidationFormat, "value is not a JSON object")

func malformed(msg string) *sserr.Error {
	return sserr.New(sserr.CodeAuthenticationInvalid, "auth: malformed token: "+msg)
}

func wrapMalformed(err error, msg string) *sserr.Error {
	return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: malformed token: "+msg)
}
