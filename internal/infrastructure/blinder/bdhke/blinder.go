// Package bdhke implements the blinding side of the blind Diffie-Hellman key
// exchange used by Cashu mints (NUT-00).
package bdhke

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/vulpemventures/cashew/internal/core/ports"
)

const domainSeparator = "Secp256k1_HashToCurve_Cashu_"

var (
	ErrInvalidBlindingFactor = fmt.Errorf("blinding factor must be a valid non-zero scalar")
	ErrNoValidPoint          = fmt.Errorf("no valid point found for message")
	ErrPointAtInfinity       = fmt.Errorf("resulting point is at infinity")
)

type blinder struct{}

func NewBlinder() ports.Blinder {
	return blinder{}
}

func (blinder) HashToCurve(secret string) (string, error) {
	y, err := hashToCurve([]byte(secret))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(y.SerializeCompressed()), nil
}

func (blinder) Blind(secret string, blindingFactor []byte) (string, error) {
	r, err := parseScalar(blindingFactor)
	if err != nil {
		return "", err
	}
	y, err := hashToCurve([]byte(secret))
	if err != nil {
		return "", err
	}

	var yj, rG, b btcec.JacobianPoint
	y.AsJacobian(&yj)
	btcec.ScalarBaseMultNonConst(r, &rG)
	btcec.AddNonConst(&yj, &rG, &b)
	return serialize(&b)
}

func (blinder) Unblind(
	blindedSignature string, blindingFactor []byte, mintPubkey string,
) (string, error) {
	r, err := parseScalar(blindingFactor)
	if err != nil {
		return "", err
	}
	c, err := parsePoint(blindedSignature)
	if err != nil {
		return "", fmt.Errorf("invalid blinded signature: %w", err)
	}
	k, err := parsePoint(mintPubkey)
	if err != nil {
		return "", fmt.Errorf("invalid mint pubkey: %w", err)
	}

	var cj, kj, rK, res btcec.JacobianPoint
	c.AsJacobian(&cj)
	k.AsJacobian(&kj)
	btcec.ScalarMultNonConst(r, &kj, &rK)
	rK.ToAffine()
	rK.Y.Negate(1)
	rK.Y.Normalize()
	btcec.AddNonConst(&cj, &rK, &res)
	return serialize(&res)
}

func hashToCurve(msg []byte) (*btcec.PublicKey, error) {
	msgHash := sha256.Sum256(append([]byte(domainSeparator), msg...))
	counter := make([]byte, 4)
	for i := uint32(0); i < 1<<16; i++ {
		binary.LittleEndian.PutUint32(counter, i)
		hash := sha256.Sum256(append(msgHash[:], counter...))
		point, err := btcec.ParsePubKey(append([]byte{0x02}, hash[:]...))
		if err == nil {
			return point, nil
		}
	}
	return nil, ErrNoValidPoint
}

func parseScalar(buf []byte) (*btcec.ModNScalar, error) {
	if len(buf) != 32 {
		return nil, ErrInvalidBlindingFactor
	}
	s := &btcec.ModNScalar{}
	if overflow := s.SetByteSlice(buf); overflow || s.IsZero() {
		return nil, ErrInvalidBlindingFactor
	}
	return s, nil
}

func parsePoint(str string) (*btcec.PublicKey, error) {
	buf, err := hex.DecodeString(str)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(buf)
}

func serialize(p *btcec.JacobianPoint) (string, error) {
	p.ToAffine()
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return "", ErrPointAtInfinity
	}
	pubkey := btcec.NewPublicKey(&p.X, &p.Y)
	return hex.EncodeToString(pubkey.SerializeCompressed()), nil
}
