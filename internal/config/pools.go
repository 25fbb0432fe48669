package config

import "strings"

// PoolConfig describes one staking pool: its contract index, reward token and
// the per-venue ticker identifiers used to price that token.
type PoolConfig struct {
	Symbol        string
	PoolIndex     int
	TokenAddress  string
	Decimals      int
	Mintable      bool
	CoinGeckoID   string
	NBCEXSymbol   string
	GateIOSymbol  string
	OKXSymbol     string
	BinanceSymbol string
}

// DefaultPools is the registry of pools deployed on the NBC chain staking
// contract. Pool index 8 was retired and is intentionally absent.
var DefaultPools = []PoolConfig{
	{
		Symbol:        "BTC",
		PoolIndex:     1,
		TokenAddress:  "0xb225C29Da2CaB86991b7e0651c63f0fD5C16613C",
		Decimals:      8,
		CoinGeckoID:   "bitcoin",
		NBCEXSymbol:   "btcusdt",
		GateIOSymbol:  "BTC_USDT",
		OKXSymbol:     "BTC-USDT",
		BinanceSymbol: "BTCUSDT",
	},
	{
		Symbol:        "ETH",
		PoolIndex:     2,
		TokenAddress:  "0x1Feba2E24a6b7F1D07F55Aa7ba59a4a4bAF9f908",
		Decimals:      18,
		CoinGeckoID:   "ethereum",
		NBCEXSymbol:   "ethusdt",
		GateIOSymbol:  "ETH_USDT",
		OKXSymbol:     "ETH-USDT",
		BinanceSymbol: "ETHUSDT",
	},
	{
		Symbol:        "SOL",
		PoolIndex:     3,
		TokenAddress:  "0xd5eECCC885Ef850d90AE40E716c3dFCe5C3D4c81",
		Decimals:      18,
		CoinGeckoID:   "solana",
		NBCEXSymbol:   "solusdt",
		GateIOSymbol:  "SOL_USDT",
		OKXSymbol:     "SOL-USDT",
		BinanceSymbol: "SOLUSDT",
	},
	{
		Symbol:        "BNB",
		PoolIndex:     4,
		TokenAddress:  "0x9C43237490272BfdD2F1d1ca0B34f20b1A3C9f5c",
		Decimals:      18,
		CoinGeckoID:   "binancecoin",
		NBCEXSymbol:   "bnbusdt",
		GateIOSymbol:  "BNB_USDT",
		OKXSymbol:     "BNB-USDT",
		BinanceSymbol: "BNBUSDT",
	},
	{
		Symbol:        "XRP",
		PoolIndex:     5,
		TokenAddress:  "0x48e1772534fabBdcaDe9ca4005E5Ee8BF4190093",
		Decimals:      18,
		CoinGeckoID:   "ripple",
		NBCEXSymbol:   "xrpusdt",
		GateIOSymbol:  "XRP_USDT",
		OKXSymbol:     "XRP-USDT",
		BinanceSymbol: "XRPUSDT",
	},
	{
		Symbol:        "LTC",
		PoolIndex:     6,
		TokenAddress:  "0x8d22041C22d696fdfF0703852a706a40Ff65a7de",
		Decimals:      18,
		CoinGeckoID:   "litecoin",
		NBCEXSymbol:   "ltcusdt",
		GateIOSymbol:  "LTC_USDT",
		OKXSymbol:     "LTC-USDT",
		BinanceSymbol: "LTCUSDT",
	},
	{
		Symbol:        "DOGE",
		PoolIndex:     7,
		TokenAddress:  "0x8cEb9a93405CDdf3D76f72327F868Bd3E8755D89",
		Decimals:      18,
		Mintable:      true,
		CoinGeckoID:   "dogecoin",
		NBCEXSymbol:   "dogeusdt",
		GateIOSymbol:  "DOGE_USDT",
		OKXSymbol:     "DOGE-USDT",
		BinanceSymbol: "DOGEUSDT",
	},
	{
		Symbol:       "USDT",
		PoolIndex:    9,
		TokenAddress: "0xfd1508502696d0E1910eD850c6236d965cc4db11",
		Decimals:     6,
		CoinGeckoID:  "tether",
	},
	{
		Symbol:        "SUI",
		PoolIndex:     10,
		TokenAddress:  "0x9011191E84Ad832100Ddc891E360f8402457F55E",
		Decimals:      18,
		CoinGeckoID:   "sui",
		NBCEXSymbol:   "suiusdt",
		GateIOSymbol:  "SUI_USDT",
		OKXSymbol:     "SUI-USDT",
		BinanceSymbol: "SUIUSDT",
	},
}

// FindPool looks up a pool by its token symbol, ignoring case.
func FindPool(symbol string) (PoolConfig, bool) {
	for _, p := range DefaultPools {
		if strings.EqualFold(p.Symbol, symbol) {
			return p, true
		}
	}
	return PoolConfig{}, false
}

// PoolSymbols returns the symbols of all registered pools in declaration order.
func PoolSymbols() []string {
	symbols := make([]string, 0, len(DefaultPools))
	for _, p := range DefaultPools {
		symbols = append(symbols, p.Symbol)
	}
	return symbols
}
