package auth

import (
	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// signingAlgorithm is the only accepted JOSE alg.
const signingAlgorithm = "RS256"

// verifySignature checks an RS256 signature over signingInput with key.
// It fails closed: any algorithm other than RS256, a missing key or a bad
// signature returns [sserr.CodeAuthenticationSignature].
func verifySignature(signingInput string, signature []byte, key *SigningKey, alg string) error {
	if alg != signingAlgorithm {
		return sserr.Newf(sserr.CodeAuthenticationSignature,
			"auth: signing algorithm %q is not accepted", alg)
	}
	if key == nil || key.publicKey == nil {
		return sserr.New(sserr.CodeAuthenticationSignature, "auth: no verification key")
	}
	if err := jwt.SigningMethodRS256.Verify(signingInput, signature, key.publicKey); err != nil {
		return sserr.Wrap(err, sserr.CodeAuthenticationSignature, "auth: signature verification failed")
	}
	return nil
}
