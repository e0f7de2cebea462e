package service

import (
	"fmt"
	"math/rand"
)

const cardSuffixSpace = 1_000_000_000_000

// CardNumberGenerator draws 16 digit card numbers: a fixed 4 digit issuer
// prefix followed by 12 random digits. It does not know which numbers are
// taken; AccountService.CreateAccount redraws on collision.
type CardNumberGenerator struct {
	prefix string
	int64n func(n int64) int64
}

func NewCardNumberGenerator(prefix string) *CardNumberGenerator {
	return &CardNumberGenerator{prefix: prefix, int64n: rand.Int63n}
}

func (g *CardNumberGenerator) Next() string {
	return fmt.Sprintf("%s%012d", g.prefix, g.int64n(cardSuffixSpace))
}
