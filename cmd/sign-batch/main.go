// sign-batch signs a command batch for a smart-margin account and prints
// the JSON envelope ready to POST to /api/v1/batches.
//
// Usage:
//
//	sign-batch -account 0x... -nonce 1 [-key <hex>] [-chain-id 1337] [-batch batch.json]
//
// Without -key a fresh key pair is generated (useful for trying the flow
// end to end). Without -batch a sample deposit + limit-order batch is
// signed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perpkit/smartmargin/pkg/account"
	"github.com/perpkit/smartmargin/pkg/command"
	smcrypto "github.com/perpkit/smartmargin/pkg/crypto"
)

func main() {
	var (
		accountHex = flag.String("account", "", "smart-margin account address (required)")
		nonce      = flag.Uint64("nonce", 1, "batch nonce, must exceed the account's current nonce")
		keyHex     = flag.String("key", "", "hex private key (64 chars, no 0x); generated when empty")
		chainID    = flag.Int64("chain-id", 1337, "EIP-712 domain chain id")
		batchPath  = flag.String("batch", "", "path to a JSON command batch; sample batch when empty")
	)
	flag.Parse()

	if !common.IsHexAddress(*accountHex) {
		fatalf("invalid -account address: %q", *accountHex)
	}
	acctAddr := common.HexToAddress(*accountHex)

	signer, err := loadSigner(*keyHex)
	if err != nil {
		fatalf("key: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Signer: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}

	batch, err := loadBatch(*batchPath)
	if err != nil {
		fatalf("batch: %v", err)
	}

	sb := &account.SignedBatch{
		Account:  acctAddr,
		Nonce:    *nonce,
		Commands: batch,
	}
	envelope, err := sb.Envelope()
	if err != nil {
		fatalf("envelope: %v", err)
	}

	batchSigner := smcrypto.NewBatchSigner(smcrypto.DefaultDomain(big.NewInt(*chainID)))
	signature, err := batchSigner.SignBatch(signer, envelope)
	if err != nil {
		fatalf("sign: %v", err)
	}
	sb.Signature = signature

	// Verify before printing so a bad envelope never leaves this tool.
	recovered, err := batchSigner.RecoverBatchSigner(envelope, signature)
	if err != nil || recovered != signer.Address() {
		fatalf("signature verification failed (recovered %s): %v", recovered.Hex(), err)
	}

	out, err := json.MarshalIndent(sb, "", "  ")
	if err != nil {
		fatalf("encode: %v", err)
	}
	fmt.Println(string(out))
}

func loadSigner(keyHex string) (*smcrypto.Signer, error) {
	if keyHex == "" {
		return smcrypto.GenerateKey()
	}
	return smcrypto.FromPrivateKeyHex(keyHex)
}

func loadBatch(path string) (command.Batch, error) {
	if path == "" {
		return sampleBatch(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch command.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, cmd := range batch {
		if _, err := cmd.Decode(); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}
	return batch, nil
}

// sampleBatch deposits 100 collateral and places a limit long on sETH-PERP.
func sampleBatch() command.Batch {
	deposit := command.MustMake(command.OpAccountModifyMargin, &command.AccountModifyMargin{
		Amount: command.NewBigInt(toWei(100)),
	})
	order := command.MustMake(command.OpPlaceConditionalOrder, &command.PlaceConditionalOrder{
		MarketKey:        "sETH-PERP",
		MarginDelta:      command.NewBigInt(toWei(50)),
		SizeDelta:        command.NewBigInt(toWei(1)),
		TargetPrice:      command.NewBigInt(toWei(2900)),
		OrderType:        command.Limit,
		DesiredFillPrice: command.NewBigInt(toWei(2950)),
	})
	return command.Batch{deposit, order}
}

func toWei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
