package sol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ConfigProgramID owns the accounts validators publish metadata into.
	ConfigProgramID = solana.MustPublicKeyFromBase58("Config1111111111111111111111111111111111111")

	// validatorInfoTag is the well-known first key of every validator info
	// config account.
	validatorInfoTag = solana.MustPublicKeyFromBase58("Va1idator1nfo111111111111111111111111111111")
)

// ValidatorInfo is the self-published metadata of a validator operator.
type ValidatorInfo struct {
	Name            string `json:"name"`
	KeybaseUsername string `json:"keybaseUsername,omitempty"`
	Website         string `json:"website,omitempty"`
	Details         string `json:"details,omitempty"`
}

// SanitizedName returns the display name reduced to characters safe for
// metric labels and terminal output.
func (info ValidatorInfo) SanitizedName() string {
	var cleaned strings.Builder
	for _, r := range info.Name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" .-_/()", r) {
			cleaned.WriteRune(r)
		}
	}
	return strings.TrimSpace(cleaned.String())
}

// GetValidatorInfos fetches every validator info account from the config
// program and returns them keyed by validator identity.
func GetValidatorInfos(ctx context.Context, client *rpc.Client) (map[solana.PublicKey]ValidatorInfo, error) {
	accounts, err := client.GetProgramAccountsWithOpts(ctx, ConfigProgramID, &rpc.GetProgramAccountsOpts{
		Encoding: solana.EncodingBase64,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch config program accounts: %w", err)
	}
	infos := map[solana.PublicKey]ValidatorInfo{}
	for _, keyed := range accounts {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		identity, info, err := parseValidatorInfo(keyed.Account.Data.GetBinary())
		if err != nil {
			// The config program holds more than validator info, skip the rest.
			continue
		}
		infos[identity] = info
	}
	return infos, nil
}

// parseValidatorInfo decodes one config account: a short-vec of
// (pubkey, signer) pairs tagged with the validator info key, then a
// length-prefixed JSON string.
func parseValidatorInfo(data []byte) (solana.PublicKey, ValidatorInfo, error) {
	var (
		identity solana.PublicKey
		info     ValidatorInfo
	)
	decoder := bin.NewBinDecoder(data)
	numKeys, err := decodeShortVecLen(decoder)
	if err != nil {
		return identity, info, err
	}

	var tagged bool
	for i := uint64(0); i < numKeys; i++ {
		rawKey, err := decoder.ReadBytes(solana.PublicKeyLength)
		if err != nil {
			return identity, info, err
		}
		signer, err := decoder.ReadByte()
		if err != nil {
			return identity, info, err
		}
		var key solana.PublicKey
		copy(key[:], rawKey)
		if key.Equals(validatorInfoTag) {
			tagged = true
		}
		if signer != 0 && identity.IsZero() {
			identity = key
		}
	}
	if !tagged {
		return identity, info, errors.New("not a validator info account")
	}
	if identity.IsZero() {
		return identity, info, errors.New("validator info account without signer key")
	}

	jsonLen, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return identity, info, err
	}
	jsonBytes, err := decoder.ReadBytes(int(jsonLen))
	if err != nil {
		return identity, info, err
	}
	if err := json.Unmarshal(jsonBytes, &info); err != nil {
		return identity, info, fmt.Errorf("malformed validator info json: %w", err)
	}
	return identity, info, nil
}

// decodeShortVecLen reads the compact-u16 length prefix the short-vec
// serialization uses.
func decodeShortVecLen(decoder *bin.Decoder) (uint64, error) {
	var (
		out   uint64
		shift uint
	)
	for {
		b, err := decoder.ReadByte()
		if err != nil {
			return 0, err
		}
		out |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return out, nil
		}
		shift += 7
		if shift > 14 {
			return 0, errors.New("invalid short-vec length")
		}
	}
}
