/*
 * Copyright (c) 2024. SolTide Labs.
 * All Rights reserved.
 */

package sol

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/ed25519"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/poolmgr/internal/lib/misc"
)

// MultipleKeySigner holds signing keys for any number of accounts and hands
// them out by public key, the shape solana transaction signing wants.
type MultipleKeySigner interface {
	HasAccount(account solana.PublicKey) bool
	PrivateKeyFor(account solana.PublicKey) *solana.PrivateKey
	Accounts() []solana.PublicKey
}

func NewLocalKeyStore(log *slog.Logger) MultipleKeySigner {
	keyStore := &localKeyStore{
		log:  log,
		keys: map[solana.PublicKey]solana.PrivateKey{},
	}
	keyStore.loadFromEnvironment()
	return keyStore
}

type localKeyStore struct {
	log *slog.Logger

	keys map[solana.PublicKey]solana.PrivateKey
}

func (lk *localKeyStore) HasAccount(account solana.PublicKey) bool {
	_, found := lk.keys[account]
	return found
}

func (lk *localKeyStore) PrivateKeyFor(account solana.PublicKey) *solana.PrivateKey {
	key, found := lk.keys[account]
	if !found {
		return nil
	}
	return &key
}

func (lk *localKeyStore) Accounts() []solana.PublicKey {
	accounts := make([]solana.PublicKey, 0, len(lk.keys))
	for account := range lk.keys {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].String() < accounts[j].String() })
	return accounts
}

// loadFromEnvironment loads keypairs from environment variables (can be in
// .env files as well) starting with "TIDE_KEYPAIR". Each value may be a
// base58 encoded 64-byte keypair, a 64 hex character seed, or a path to a
// solana-keygen style JSON file. If a key fails to load, a fatal error is
// logged and the application exits.
func (lk *localKeyStore) loadFromEnvironment() {
	var numKeys int
	for _, key := range misc.SecretKeys() {
		if !strings.HasPrefix(key, "TIDE_KEYPAIR") {
			continue
		}
		envKeypair := misc.GetSecret(key)
		if envKeypair == "" {
			continue
		}
		if err := lk.addKeypair(envKeypair); err != nil {
			lk.log.Error(fmt.Sprintf("fatal error in keypair load, env key:%s, err:%v", key, err))
			os.Exit(1)
		}
		numKeys++
	}
	misc.Infof(lk.log, "loaded %d keypairs", numKeys)
}

func (lk *localKeyStore) addKeypair(encoded string) error {
	privateKey, err := decodeKeypair(encoded)
	if err != nil {
		return fmt.Errorf("failed to add keypair: %w", err)
	}
	account := privateKey.PublicKey()
	lk.keys[account] = privateKey
	misc.Infof(lk.log, "Added key for account:%s", account.String())
	return nil
}

func decodeKeypair(encoded string) (solana.PrivateKey, error) {
	if _, err := os.Stat(encoded); err == nil {
		return solana.PrivateKeyFromSolanaKeygenFile(encoded)
	}
	if len(encoded) == 2*ed25519.SeedSize {
		seed, err := hex.DecodeString(encoded)
		if err == nil {
			return solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
		}
	}
	return solana.PrivateKeyFromBase58(encoded)
}
