package chain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// registerBatchArgs is the borsh layout of the program's batch-registration
// entry point: three aligned vectors, one entry per rewarded account.
type registerBatchArgs struct {
	Codes   []string
	Rates   []uint64
	Amounts []uint64
}

// registerBatchDiscriminator is the anchor-style 8-byte method discriminator.
var registerBatchDiscriminator = anchorDiscriminator("register_reward_batch")

func anchorDiscriminator(method string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + method))
	var disc [8]byte
	copy(disc[:], sum[:8])
	return disc
}

// encodeRegisterBatch builds the instruction data for one batch.
func encodeRegisterBatch(codes []string, rates []uint64, amounts []uint64) ([]byte, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("batch must not be empty")
	}
	if len(codes) != len(rates) || len(codes) != len(amounts) {
		return nil, fmt.Errorf("misaligned batch arrays: %d codes, %d rates, %d amounts",
			len(codes), len(rates), len(amounts))
	}

	buf := new(bytes.Buffer)
	buf.Write(registerBatchDiscriminator[:])

	enc := bin.NewBorshEncoder(buf)
	if err := enc.Encode(registerBatchArgs{
		Codes:   codes,
		Rates:   rates,
		Amounts: amounts,
	}); err != nil {
		return nil, fmt.Errorf("failed to borsh-encode batch args: %w", err)
	}

	return buf.Bytes(), nil
}
