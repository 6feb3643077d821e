package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidMainnetURL public API endpoint.
const HyperliquidMainnetURL = "https://api.hyperliquid.xyz"

type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
	canTrade    bool
}

// NewHyperliquidClient builds a client. Without a private key the client
// only reads: balances of accountAddr, prices and candles.
func NewHyperliquidClient(privateKeyHex, accountAddr, baseURL string) (*HyperliquidClient, error) {
	if baseURL == "" {
		baseURL = HyperliquidMainnetURL
	}

	privateKey, derived, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	if accountAddr == "" {
		accountAddr = derived
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr, canTrade: privateKey != nil}, nil
}

func (c *HyperliquidClient) Exchange() *hyperliquid.Exchange { return c.exchange }
func (c *HyperliquidClient) Info() *hyperliquid.Info         { return c.exchange.Info() }
func (c *HyperliquidClient) AccountAddress() string          { return c.accountAddr }

// CanTrade reports whether the client holds a signing key.
func (c *HyperliquidClient) CanTrade() bool { return c.canTrade }

// parsePrivateKey returns the key and its account address, or nils for an
// empty input.
func parsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, string, error) {
	key := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"), "0X")
	if key == "" {
		return nil, "", nil
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, "", fmt.Errorf("parse hyperliquid private key: %w", err)
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, "", fmt.Errorf("error casting public key to ECDSA")
	}
	return privateKey, crypto.PubkeyToAddress(*pub).Hex(), nil
}
