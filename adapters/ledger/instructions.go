package ledger

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/core"
	"github.com/mr-tron/base58"
)

// DefaultTokenProgram is the classic SPL token program.
const DefaultTokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// createIdempotent is the associated token account program's CreateIdempotent
// discriminator; it succeeds when the account already exists.
const createIdempotent = 1

// ParsePublicKey decodes a base58 address, rejecting anything that is not 32 bytes.
// common.PublicKeyFromString does no validation of its own.
func ParsePublicKey(address string) (common.PublicKey, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return common.PublicKey{}, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if len(raw) != common.PublicKeyLength {
		return common.PublicKey{}, fmt.Errorf("invalid address %q: want %d bytes, got %d", address, common.PublicKeyLength, len(raw))
	}
	return common.PublicKeyFromBytes(raw), nil
}

// HoldingAddress derives the associated token account of owner for mint under
// tokenProgram.
func HoldingAddress(owner, mint, tokenProgram common.PublicKey) (common.PublicKey, error) {
	ata, _, err := common.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		common.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return common.PublicKey{}, fmt.Errorf("failed to derive holding account: %w", err)
	}
	return ata, nil
}

// buildInstructions translates ops into token program instructions signed by
// authority, which also pays for any account it creates.
func buildInstructions(authority, tokenProgram common.PublicKey, ops []core.Operation) ([]types.Instruction, error) {
	ixs := make([]types.Instruction, 0, len(ops))
	for _, op := range ops {
		owner, err := ParsePublicKey(op.Owner)
		if err != nil {
			return nil, err
		}
		mint, err := ParsePublicKey(op.Mint)
		if err != nil {
			return nil, err
		}
		ata, err := HoldingAddress(owner, mint, tokenProgram)
		if err != nil {
			return nil, err
		}

		var ix types.Instruction
		switch op.Kind {
		case core.OpCreateHolding:
			ixs = append(ixs, createHoldingInstruction(authority, owner, mint, ata, tokenProgram))
			continue
		case core.OpMint:
			ix = token.MintTo(token.MintToParam{
				Mint:   mint,
				To:     ata,
				Auth:   authority,
				Amount: op.Amount,
			})
		case core.OpBurn:
			ix = token.Burn(token.BurnParam{
				Account: ata,
				Mint:    mint,
				Auth:    authority,
				Amount:  op.Amount,
			})
		case core.OpClose:
			// rent goes back to the wallet that owned the account
			ix = token.CloseAccount(token.CloseAccountParam{
				Account: ata,
				To:      owner,
				Auth:    authority,
			})
		default:
			return nil, fmt.Errorf("unsupported operation %q", op.Kind)
		}
		ix.ProgramID = tokenProgram
		ixs = append(ixs, ix)
	}
	return ixs, nil
}

// createHoldingInstruction builds the associated token account instruction by hand
// so the token program can be Token-2022 as well as the classic program.
// Accounts:
// 0. [writable,signer] payer
// 1. [writable] associated token account
// 2. [] owner
// 3. [] mint
// 4. [] system program
// 5. [] token program
func createHoldingInstruction(payer, owner, mint, ata, tokenProgram common.PublicKey) types.Instruction {
	return types.Instruction{
		ProgramID: common.SPLAssociatedTokenAccountProgramID,
		Accounts: []types.AccountMeta{
			{PubKey: payer, IsSigner: true, IsWritable: true},
			{PubKey: ata, IsSigner: false, IsWritable: true},
			{PubKey: owner, IsSigner: false, IsWritable: false},
			{PubKey: mint, IsSigner: false, IsWritable: false},
			{PubKey: common.SystemProgramID, IsSigner: false, IsWritable: false},
			{PubKey: tokenProgram, IsSigner: false, IsWritable: false},
		},
		Data: []byte{createIdempotent},
	}
}
