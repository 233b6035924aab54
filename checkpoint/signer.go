package checkpoint

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	dtcose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/veraison/go-cose"
)

var (
	ErrVerifyFailed = errors.New("checkpoint: signature verification failed")
	ErrRootMissing  = errors.New("checkpoint: the root must be restored before verifying")
)

// NewCodec returns the deterministic codec used for checkpoint payloads.
func NewCodec() (dtcbor.CBORCodec, error) {
	codec, err := dtcbor.NewCBORCodec(
		dtcbor.NewDeterministicEncOpts(),
		dtcbor.NewDeterministicDecOpts(), // unsigned int decodes to uint64
	)
	if err != nil {
		return dtcbor.CBORCodec{}, err
	}
	return codec, nil
}

// Signer signs accumulator states.
type Signer struct {
	issuer    string
	cborCodec dtcbor.CBORCodec
}

func NewSigner(issuer string, cborCodec dtcbor.CBORCodec) Signer {
	return Signer{
		issuer:    issuer,
		cborCodec: cborCodec,
	}
}

// Sign1 signs state and returns the encoded COSE Sign1 message with the root
// detached from the payload.
func (s Signer) Sign1(coseSigner cose.Signer, keyIdentifier string, publicKey *ecdsa.PublicKey, subject string, state State, external []byte) ([]byte, error) {
	if len(state.Root) == 0 {
		return nil, ErrRootMissing
	}
	payload, err := s.cborCodec.MarshalCBOR(state)
	if err != nil {
		return nil, err
	}

	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				dtcose.HeaderLabelCWTClaims: dtcose.NewCNFClaim(
					s.issuer, subject, keyIdentifier, coseSigner.Algorithm(), *publicKey),
			},
		},
		Payload: payload,
	}
	if err = msg.Sign(rand.Reader, external, coseSigner); err != nil {
		return nil, err
	}

	state.Root = nil
	if msg.Payload, err = s.cborCodec.MarshalCBOR(state); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}

// Decode returns the signed message and its unverified state. The state's
// Root is empty.
func Decode(codec dtcbor.CBORCodec, msg []byte) (*dtcose.CoseSign1Message, State, error) {
	signed, err := dtcose.NewCoseSign1MessageFromCBOR(
		msg, dtcose.WithDecOptions(dtcbor.NewDeterministicDecOpts()))
	if err != nil {
		return nil, State{}, err
	}
	var unverified State
	if err = codec.UnmarshalInto(signed.Payload, &unverified); err != nil {
		return nil, State{}, err
	}
	return signed, unverified, nil
}

// VerifyEmbedded verifies signed against the public key carried in its own
// CWT claims. state must have its Root restored from the accumulator. This
// proves integrity, not identity, so callers that care who signed should use
// VerifyWithKey.
func VerifyEmbedded(codec dtcbor.CBORCodec, signed *dtcose.CoseSign1Message, state State, external []byte) error {
	if len(state.Root) == 0 {
		return ErrRootMissing
	}
	var err error
	if signed.Payload, err = codec.MarshalCBOR(state); err != nil {
		return err
	}
	if err = signed.VerifyWithProvider(dtcose.NewCWTPublicKeyProvider(signed), external); err != nil {
		return fmt.Errorf("%w: %w", ErrVerifyFailed, err)
	}
	return nil
}

// VerifyWithKey verifies msg against a known ES256 public key after restoring
// state, which must carry the recomputed Root, as the payload.
func VerifyWithKey(codec dtcbor.CBORCodec, msg []byte, publicKey crypto.PublicKey, state State, external []byte) error {
	if len(state.Root) == 0 {
		return ErrRootMissing
	}
	var signed cose.Sign1Message
	if err := signed.UnmarshalCBOR(msg); err != nil {
		return err
	}
	payload, err := codec.MarshalCBOR(state)
	if err != nil {
		return err
	}
	signed.Payload = payload

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return err
	}
	if err = signed.Verify(external, verifier); err != nil {
		return fmt.Errorf("%w: %w", ErrVerifyFailed, err)
	}
	return nil
}
