package ports

// Blinder is the abstraction for the blind Diffie-Hellman key exchange used
// to get signatures from a mint without revealing the secrets. All points
// are hex encoded compressed secp256k1 points.
type Blinder interface {
	// Blind returns the blinded message B_ = Y + rG for the secret.
	Blind(secret string, blindingFactor []byte) (string, error)
	// Unblind returns the proof signature C = C_ - rK, where K is the mint's
	// public key for the amount.
	Unblind(blindedSignature string, blindingFactor []byte, mintPubkey string) (string, error)
	// HashToCurve returns the point Y the mint uses to identify the secret.
	HashToCurve(secret string) (string, error)
}
