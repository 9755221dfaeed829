package utils

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

const defaultBCryptWorkFactor = 12

// decoySecret feeds the decoy comparison performed for unknown accounts so
// that lookup misses burn the same hashing work as a real password check.
const decoySecret = "authgate-decoy-credential-f94c1b0e"

// BCrypt implements a BCrypt hasher.
type BCrypt struct {
	bCryptWorkFactor int
	decoyHash        []byte
}

// NewBCrypt returns a new BCrypt instance at the default work factor.
func NewBCrypt() *BCrypt {
	return NewBCryptWithCost(defaultBCryptWorkFactor)
}

// NewBCryptWithCost returns a BCrypt instance with a configured work factor.
// Costs outside bcrypt's supported range fall back to the default.
func NewBCryptWithCost(cost int) *BCrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultBCryptWorkFactor
	}

	decoy, err := bcrypt.GenerateFromPassword([]byte(decoySecret), cost)
	if err != nil {
		// GenerateFromPassword only fails on an out of range cost,
		// which is guarded above.
		panic(err)
	}

	return &BCrypt{
		bCryptWorkFactor: cost,
		decoyHash:        decoy,
	}
}

func (b *BCrypt) Hash(_ context.Context, data []byte) ([]byte, error) {
	cf := b.bCryptWorkFactor
	s, err := bcrypt.GenerateFromPassword(data, cf)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *BCrypt) Compare(_ context.Context, hash, data []byte) error {
	if err := bcrypt.CompareHashAndPassword(hash, data); err != nil {
		return err
	}
	return nil
}

// CompareDecoy performs a full-cost comparison against the decoy hash and
// discards the outcome. Called on the account-not-found path so that missing
// accounts and wrong passwords are not distinguishable by timing.
func (b *BCrypt) CompareDecoy(_ context.Context, data []byte) {
	_ = bcrypt.CompareHashAndPassword(b.decoyHash, data)
}
