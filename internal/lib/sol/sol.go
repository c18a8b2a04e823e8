package sol

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/ssgreg/repeat"

	"github.com/soltide/poolmgr/internal/lib/misc"
)

// defaultSlotTime is what we assume a slot takes when the cluster has no
// performance samples for us yet.
const defaultSlotTime = 400 * time.Millisecond

func GetRPCClient(log *slog.Logger, config NetworkConfig) (*rpc.Client, error) {
	apiURL := strings.TrimRight(config.NodeURL, "/")
	serverAddr, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url:%v, error:%w", apiURL, err)
	}
	misc.Infof(log, "Connecting to Solana RPC node at:%s", serverAddr.String())

	// Override the default transport so we can properly support multiple parallel connections to same
	// host (and allow connection reuse)
	customTransport := http.DefaultTransport.(*http.Transport).Clone()
	customTransport.MaxIdleConns = 100
	customTransport.MaxConnsPerHost = 100
	customTransport.MaxIdleConnsPerHost = 100

	client := rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(serverAddr.String(), &jsonrpc.RPCClientOpts{
		HTTPClient:    &http.Client{Transport: customTransport},
		CustomHeaders: config.NodeHeaders,
	}))
	// Immediately hit server to verify connectivity
	if _, err = client.GetVersion(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to get version from RPC node (url:%s), error:%w", serverAddr.String(), err)
	}
	return client, nil
}

// LatestBlockhash fetches a recent blockhash to anchor a transaction on.
// The RPC node owes us an answer here, so keep trying until it gives one.
func LatestBlockhash(ctx context.Context, logger *slog.Logger, client *rpc.Client) solana.Hash {
	var (
		blockhash solana.Hash
		err       error
	)
	err = repeat.Repeat(
		repeat.Fn(func() error {
			var result *rpc.GetLatestBlockhashResult
			result, err = client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
			if err != nil {
				return repeat.HintTemporary(err)
			}
			blockhash = result.Value.Blockhash
			return nil
		}),
		repeat.StopOnSuccess(),
		repeat.FnOnError(func(err error) error {
			misc.Infof(logger, "retrying latest blockhash call, error:%s", err.Error())
			return err
		}),
		repeat.WithDelay(repeat.ExponentialBackoff(1*time.Second).Set()),
	)
	return blockhash
}

// GetAccountBalance returns an account's lamport balance, zero for an
// account that does not exist.
func GetAccountBalance(ctx context.Context, client *rpc.Client, account solana.PublicKey) (Lamports, error) {
	result, err := client.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("error fetching balance of %s: %w", account.String(), err)
	}
	return Lamports(result.Value), nil
}

func GetVersionString(ctx context.Context, client *rpc.Client) (string, error) {
	vers, err := client.GetVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("error fetching version from RPC node: %w", err)
	}
	return fmt.Sprintf("solana-core %s [feature set %d]", vers.SolanaCore, vers.FeatureSet), nil
}

// CalcSlotTime derives the cluster's average slot duration from recent
// performance samples.
func CalcSlotTime(ctx context.Context, client *rpc.Client) (time.Duration, error) {
	limit := uint(30)
	samples, err := client.GetRecentPerformanceSamples(ctx, &limit)
	if err != nil {
		return 0, fmt.Errorf("unable to fetch recent performance samples: %w", err)
	}
	var (
		totalSlots uint64
		totalSecs  uint64
	)
	for _, sample := range samples {
		if sample == nil {
			continue
		}
		totalSlots += uint64(sample.NumSlots)
		totalSecs += uint64(sample.SamplePeriodSecs)
	}
	if totalSlots == 0 {
		return defaultSlotTime, nil
	}
	return time.Duration(totalSecs) * time.Second / time.Duration(totalSlots), nil
}
