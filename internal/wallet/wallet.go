package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an r || s || v secp256k1 signature.
const SignatureLength = crypto.SignatureLength

var (
	ErrEmptySignature         = errors.New("signature is required")
	ErrMalformedSignature     = errors.New("signature must be hex encoded")
	ErrInvalidSignatureLength = fmt.Errorf("signature must be %d bytes", SignatureLength)
	ErrInvalidDerivedKey      = errors.New("signature does not derive a valid secp256k1 key")
)

// ParseSignature decodes a hex signature with or without 0x prefix.
func ParseSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptySignature
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != SignatureLength {
		return nil, ErrInvalidSignatureLength
	}
	return sig, nil
}

// PrivateKeyFromSignature returns the owner key keccak256(sig).
func PrivateKeyFromSignature(sig []byte) (*ecdsa.PrivateKey, error) {
	if len(sig) == 0 {
		return nil, ErrEmptySignature
	}
	if len(sig) != SignatureLength {
		return nil, ErrInvalidSignatureLength
	}

	key, err := crypto.ToECDSA(crypto.Keccak256(sig))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDerivedKey, err)
	}
	return key, nil
}

// Owner is the EOA that controls a smart account.
type Owner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewOwner(key *ecdsa.PrivateKey) *Owner {
	return &Owner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// OwnerFromSignature parses a hex signature and derives its owner.
func OwnerFromSignature(hexSig string) (*Owner, error) {
	sig, err := ParseSignature(hexSig)
	if err != nil {
		return nil, err
	}
	key, err := PrivateKeyFromSignature(sig)
	if err != nil {
		return nil, err
	}
	return NewOwner(key), nil
}

func (o *Owner) Address() common.Address {
	return o.address
}

// SignMessage produces an EIP-191 personal_sign signature over msg with V in {27, 28}.
func (o *Owner) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), o.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
