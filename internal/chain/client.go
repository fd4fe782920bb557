package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/wnt/rewardsync/internal/config"
)

// Client wraps the Solana RPC connection, the reward program and the signer
// used to register reward batches on-chain.
type Client struct {
	rpcClient *rpc.Client
	endpoint  string
	signer    solana.PrivateKey
	programID solana.PublicKey
	registry  *solana.PublicKey
	pollEvery time.Duration
}

// Diagnostics summarizes the chain-side state for reporting. Read-only.
type Diagnostics struct {
	Endpoint        string `json:"endpoint"`
	Signer          string `json:"signer"`
	BalanceLamports uint64 `json:"balance_lamports"`
	NodeVersion     string `json:"node_version"`
	GenesisHash     string `json:"genesis_hash"`
	BlockHeight     uint64 `json:"block_height"`
}

var (
	ErrMissingRPCURL    = errors.New("RPC_URL environment variable is not set")
	ErrMissingSignerKey = errors.New("SIGNER_KEY environment variable is not set")
	ErrMissingProgramID = errors.New("REWARD_PROGRAM_ID environment variable is not set")
)

// NewClient validates the chain configuration and creates a client. It does
// not contact the endpoint; reachability is checked by Ping so a transient
// RPC outage at boot is not mistaken for bad configuration.
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, ErrMissingRPCURL
	}
	if cfg.SignerKey == "" {
		return nil, ErrMissingSignerKey
	}
	if cfg.RewardProgramID == "" {
		return nil, ErrMissingProgramID
	}

	signer, err := solana.PrivateKeyFromBase58(cfg.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNER_KEY: %w", err)
	}

	programID, err := solana.PublicKeyFromBase58(cfg.RewardProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid REWARD_PROGRAM_ID: %w", err)
	}

	client := &Client{
		rpcClient: rpc.New(cfg.RPCURL),
		endpoint:  cfg.RPCURL,
		signer:    signer,
		programID: programID,
		pollEvery: 2 * time.Second,
	}

	if cfg.RewardRegistry != "" {
		registry, err := solana.PublicKeyFromBase58(cfg.RewardRegistry)
		if err != nil {
			return nil, fmt.Errorf("invalid REWARD_REGISTRY: %w", err)
		}
		client.registry = &registry
	}

	return client, nil
}

// SignerAddress returns the base58 address paying for batch transactions.
func (c *Client) SignerAddress() string {
	return c.signer.PublicKey().String()
}

// Ping checks that the RPC endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.rpcClient.GetBlockHeight(ctx, rpc.CommitmentFinalized); err != nil {
		return fmt.Errorf("failed to reach Solana RPC: %w", err)
	}
	return nil
}

// SubmitRewardBatch registers one batch of rewards in a single transaction.
// The three slices must be aligned index-for-index; the caller guarantees
// this via the batch builder.
func (c *Client) SubmitRewardBatch(ctx context.Context, codes []string, rates []uint64, amounts []uint64) (solana.Signature, error) {
	data, err := encodeRegisterBatch(codes, rates, amounts)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to encode batch instruction: %w", err)
	}

	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.signer.PublicKey(), true, true),
	}
	if c.registry != nil {
		accounts = append(accounts, solana.NewAccountMeta(*c.registry, true, false))
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			solana.NewInstruction(c.programID, accounts, data),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.signer.PublicKey()) {
			return &c.signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return sig, nil
}

// WaitForConfirmation polls signature status until the transaction reaches
// confirmed or finalized commitment. The caller bounds the wait through ctx;
// on deadline the batch is treated as failed and its members stay eligible.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation wait aborted for %s: %w", sig, ctx.Err())
		case <-ticker.C:
			out, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				// Transient status-poll failure; keep waiting until the deadline.
				continue
			}
			if len(out.Value) == 0 || out.Value[0] == nil {
				continue
			}
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s reverted on-chain: %v", sig, status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
	}
}

// Diagnostics gathers signer balance and network identity. Used only by the
// report and health endpoints.
func (c *Client) Diagnostics(ctx context.Context) (Diagnostics, error) {
	diag := Diagnostics{Endpoint: c.endpoint, Signer: c.SignerAddress()}

	balance, err := c.rpcClient.GetBalance(ctx, c.signer.PublicKey(), rpc.CommitmentFinalized)
	if err != nil {
		return diag, fmt.Errorf("failed to get signer balance: %w", err)
	}
	diag.BalanceLamports = balance.Value

	version, err := c.rpcClient.GetVersion(ctx)
	if err != nil {
		return diag, fmt.Errorf("failed to get node version: %w", err)
	}
	diag.NodeVersion = version.SolanaCore

	genesis, err := c.rpcClient.GetGenesisHash(ctx)
	if err != nil {
		return diag, fmt.Errorf("failed to get genesis hash: %w", err)
	}
	diag.GenesisHash = genesis.String()

	height, err := c.rpcClient.GetBlockHeight(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return diag, fmt.Errorf("failed to get block height: %w", err)
	}
	diag.BlockHeight = height

	return diag, nil
}
