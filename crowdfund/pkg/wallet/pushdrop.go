package wallet

import (
	"context"
	"fmt"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/script"
)

// Signer is the subset of Capability needed to lock a PushDrop token.
type Signer interface {
	DerivePublicKey(ctx context.Context, args KeyArgs) (string, error)
	CreateSignature(ctx context.Context, args SignatureArgs) ([]byte, error)
}

// LockPushDrop derives the locking key for the counterparty, signs the
// concatenated fields with the same key and appends the signature as the
// last field.
func LockPushDrop(ctx context.Context, s Signer, args LockTokenArgs) ([]byte, error) {
	pubHex, err := s.DerivePublicKey(ctx, KeyArgs{
		Protocol:     args.Protocol,
		KeyID:        args.KeyID,
		Counterparty: args.Counterparty,
	})
	if err != nil {
		return nil, fmt.Errorf("derive locking key: %w", err)
	}
	pk, err := script.ParsePublicKey(pubHex)
	if err != nil {
		return nil, fmt.Errorf("derive locking key: %w", err)
	}

	var signed []byte
	for _, f := range args.Fields {
		signed = append(signed, f...)
	}
	sig, err := s.CreateSignature(ctx, SignatureArgs{
		Data:         signed,
		Protocol:     args.Protocol,
		KeyID:        args.KeyID,
		Counterparty: args.Counterparty,
	})
	if err != nil {
		return nil, fmt.Errorf("sign token fields: %w", err)
	}

	fields := make([][]byte, 0, len(args.Fields)+1)
	fields = append(fields, args.Fields...)
	fields = append(fields, sig)
	return script.PushDrop(pk, fields)
}
