// Package main is the entry point for rewardkeeper, the operational tool that
// keeps the NBC staking contract's reward rates aligned with market prices.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
