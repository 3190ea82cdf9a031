package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/pkg/errors"
)

var (
	ErrInvalidPublicKey         = errors.New("invalid passkey public key")
	ErrInvalidWebAuthnSignature = errors.New("invalid webauthn signature")
)

// stubWebAuthnSignature is an encoded WebAuthnSignature with realistic field
// sizes. Used for gas estimation only.
var stubWebAuthnSignature = hexutil.MustDecode("0x000000000000000000000000000000000000000000000000000000000000002000000000000000000000000000000000000000000000000000000000000000c0000000000000000000000000000000000000000000000000000000000000012000000000000000000000000000000000000000000000000000000000000000170000000000000000000000000000000000000000000000000000000000000001949fc7c88032b9fcb5f6efc7a7b8c63668eae9871b765e23123bb473ff57aa831a7c0d9276168ebcc29f2875a0239cffdf2a9cd1c2007c5c77c071db9264df1d000000000000000000000000000000000000000000000000000000000000002549960de5880e8c687434170f6476605b8fe4aeb9a28632c7995cf3ba831d97630500000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000008a7b2274797065223a22776562617574686e2e676574222c226368616c6c656e6765223a2273496a396e6164474850596759334b7156384f7a4a666c726275504b474f716d59576f4d57516869467773222c226f726967696e223a2268747470733a2f2f7369676e2e636f696e626173652e636f6d222c2263726f73734f726967696e223a66616c73657d00000000000000000000000000000000000000000000")

var webAuthnSignatureArgs = func() abi.Arguments {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "authenticatorData", Type: "bytes"},
		{Name: "clientDataJSON", Type: "string"},
		{Name: "challengeIndex", Type: "uint256"},
		{Name: "typeIndex", Type: "uint256"},
		{Name: "r", Type: "uint256"},
		{Name: "s", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "params", Type: t}}
}()

// Assertion is what an authenticator returns for navigator.credentials.get.
type Assertion struct {
	AuthenticatorData []byte
	ClientDataJSON    string
	R, S              *big.Int
}

// Authenticator produces WebAuthn assertions over a challenge. Acquiring the
// credential (browser prompt, platform API) is up to the implementation.
type Authenticator interface {
	GetAssertion(ctx context.Context, challenge []byte) (*Assertion, error)
}

// WebAuthnSignature is the struct the WebAuthn validation module decodes.
type WebAuthnSignature struct {
	AuthenticatorData []byte
	ClientDataJSON    string
	ChallengeIndex    *big.Int
	TypeIndex         *big.Int
	R                 *big.Int
	S                 *big.Int
}

func (a *Assertion) toSignature() WebAuthnSignature {
	return WebAuthnSignature{
		AuthenticatorData: a.AuthenticatorData,
		ClientDataJSON:    a.ClientDataJSON,
		ChallengeIndex:    big.NewInt(int64(strings.Index(a.ClientDataJSON, `"challenge":`))),
		TypeIndex:         big.NewInt(int64(strings.Index(a.ClientDataJSON, `"type":`))),
		R:                 a.R,
		S:                 a.S,
	}
}

// EncodeWebAuthnSignature ABI encodes sig as a single tuple.
func EncodeWebAuthnSignature(sig WebAuthnSignature) ([]byte, error) {
	return webAuthnSignatureArgs.Pack(sig)
}

func DecodeWebAuthnSignature(data []byte) (*WebAuthnSignature, error) {
	out, err := webAuthnSignatureArgs.Unpack(data)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidWebAuthnSignature, err.Error())
	}
	sig := *abi.ConvertType(out[0], new(WebAuthnSignature)).(*WebAuthnSignature)
	return &sig, nil
}

var _ Signer = (*WebAuthnSigner)(nil)

// WebAuthnSigner signs with a P-256 passkey.
type WebAuthnSigner struct {
	auth Authenticator
	x, y *big.Int
}

func NewWebAuthnSigner(auth Authenticator, x, y *big.Int) (*WebAuthnSigner, error) {
	if x == nil || y == nil || !elliptic.P256().IsOnCurve(x, y) {
		return nil, ErrInvalidPublicKey
	}
	return &WebAuthnSigner{auth: auth, x: x, y: y}, nil
}

// NewWebAuthnSignerFromCOSE takes the credential public key as returned at
// registration (COSE_Key, CBOR encoded).
func NewWebAuthnSignerFromCOSE(auth Authenticator, coseKey []byte) (*WebAuthnSigner, error) {
	var pk webauthncose.EC2PublicKeyData
	if err := webauthncbor.Unmarshal(coseKey, &pk); err != nil {
		return nil, errors.Wrap(ErrInvalidPublicKey, err.Error())
	}
	if pk.Algorithm != int64(webauthncose.AlgES256) || pk.Curve != int64(webauthncose.P256) {
		return nil, errors.Wrapf(ErrInvalidPublicKey, "unsupported algorithm %d curve %d", pk.Algorithm, pk.Curve)
	}
	return NewWebAuthnSigner(auth, new(big.Int).SetBytes(pk.XCoord), new(big.Int).SetBytes(pk.YCoord))
}

func (s *WebAuthnSigner) Kind() Kind { return KindWebAuthn }

// PublicKey returns the affine coordinates of the passkey.
func (s *WebAuthnSigner) PublicKey() (x, y *big.Int) {
	return new(big.Int).Set(s.x), new(big.Int).Set(s.y)
}

// SignHash runs an assertion with h as the challenge and returns the encoded
// WebAuthnSignature.
func (s *WebAuthnSigner) SignHash(ctx context.Context, h common.Hash) ([]byte, error) {
	assertion, err := s.auth.GetAssertion(ctx, h[:])
	if err != nil {
		return nil, errors.Wrap(err, "webauthn assertion")
	}
	return EncodeWebAuthnSignature(assertion.toSignature())
}

func (s *WebAuthnSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return s.SignHash(ctx, common.BytesToHash(accounts.TextHash(msg)))
}

func (s *WebAuthnSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	h, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	return s.SignHash(ctx, h)
}

func (s *WebAuthnSigner) StubSignature() []byte {
	return common.CopyBytes(stubWebAuthnSignature)
}

func (*WebAuthnSigner) sealed() {}

// VerifyWebAuthnSignature checks an encoded WebAuthnSignature against the
// challenge and passkey the on-chain validator would use.
func VerifyWebAuthnSignature(x, y *big.Int, challenge common.Hash, encoded []byte) error {
	sig, err := DecodeWebAuthnSignature(encoded)
	if err != nil {
		return err
	}
	var clientData protocol.CollectedClientData
	if err := json.Unmarshal([]byte(sig.ClientDataJSON), &clientData); err != nil {
		return errors.Wrap(ErrInvalidWebAuthnSignature, err.Error())
	}
	if clientData.Type != protocol.AssertCeremony {
		return errors.Wrapf(ErrInvalidWebAuthnSignature, "client data type %q", clientData.Type)
	}
	got, err := base64.RawURLEncoding.DecodeString(clientData.Challenge)
	if err != nil || common.BytesToHash(got) != challenge || len(got) != common.HashLength {
		return errors.Wrap(ErrInvalidWebAuthnSignature, "challenge mismatch")
	}
	if sig.ChallengeIndex.Int64() != int64(strings.Index(sig.ClientDataJSON, `"challenge":`)) ||
		sig.TypeIndex.Int64() != int64(strings.Index(sig.ClientDataJSON, `"type":`)) {
		return errors.Wrap(ErrInvalidWebAuthnSignature, "client data index mismatch")
	}
	if sig.S.Cmp(p256HalfOrder) > 0 {
		return errors.Wrap(ErrInvalidWebAuthnSignature, "high s")
	}
	clientDataHash := sha256.Sum256([]byte(sig.ClientDataJSON))
	digest := sha256.Sum256(append(common.CopyBytes(sig.AuthenticatorData), clientDataHash[:]...))
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	if !ecdsa.Verify(pub, digest[:], sig.R, sig.S) {
		return errors.Wrap(ErrInvalidWebAuthnSignature, "p256 verification failed")
	}
	return nil
}

var p256HalfOrder = new(big.Int).Rsh(elliptic.P256().Params().N, 1)

// authenticator data flags: user present, user verified.
const authFlagsUPUV = 0x05

// SoftwareAuthenticator is a P-256 key held in memory that answers
// assertions the way a platform authenticator does.
type SoftwareAuthenticator struct {
	key       *ecdsa.PrivateKey
	rpID      string
	origin    string
	signCount uint32
}

func NewSoftwareAuthenticator(key *ecdsa.PrivateKey, rpID, origin string) *SoftwareAuthenticator {
	return &SoftwareAuthenticator{key: key, rpID: rpID, origin: origin}
}

func GenerateSoftwareAuthenticator(rpID, origin string) (*SoftwareAuthenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewSoftwareAuthenticator(key, rpID, origin), nil
}

func (a *SoftwareAuthenticator) PublicKey() (x, y *big.Int) {
	return a.key.X, a.key.Y
}

// COSEPublicKey encodes the public key as a CBOR COSE_Key.
func (a *SoftwareAuthenticator) COSEPublicKey() ([]byte, error) {
	var pk webauthncose.EC2PublicKeyData
	pk.KeyType = int64(webauthncose.EllipticKey)
	pk.Algorithm = int64(webauthncose.AlgES256)
	pk.Curve = int64(webauthncose.P256)
	pk.XCoord = common.LeftPadBytes(a.key.X.Bytes(), 32)
	pk.YCoord = common.LeftPadBytes(a.key.Y.Bytes(), 32)
	return webauthncbor.Marshal(pk)
}

func (a *SoftwareAuthenticator) GetAssertion(_ context.Context, challenge []byte) (*Assertion, error) {
	a.signCount++
	rpIDHash := sha256.Sum256([]byte(a.rpID))
	authData := make([]byte, 37)
	copy(authData, rpIDHash[:])
	authData[32] = authFlagsUPUV
	binary.BigEndian.PutUint32(authData[33:], a.signCount)

	clientData, err := json.Marshal(protocol.CollectedClientData{
		Type:      protocol.AssertCeremony,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    a.origin,
	})
	if err != nil {
		return nil, err
	}

	clientDataHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(common.CopyBytes(authData), clientDataHash[:]...))
	r, s, err := ecdsa.Sign(rand.Reader, a.key, digest[:])
	if err != nil {
		return nil, err
	}
	if s.Cmp(p256HalfOrder) > 0 {
		s.Sub(elliptic.P256().Params().N, s)
	}
	return &Assertion{
		AuthenticatorData: authData,
		ClientDataJSON:    string(clientData),
		R:                 r,
		S:                 s,
	}, nil
}
