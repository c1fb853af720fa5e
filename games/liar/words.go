/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package liar

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Seednode/partyroom/games/party"
)

//go:embed words.json
var defaultWords []byte

// Category is one themed word list.
type Category struct {
	Name  string   `json:"category"`
	Words []string `json:"words"`
}

// WordBank is the fixed category set secret words are drawn from.
type WordBank []Category

var errEmptyBank = errors.New("word bank is empty")

var defaultBank = sync.OnceValue(func() WordBank {
	bank, err := LoadWordBank(strings.NewReader(string(defaultWords)))
	if err != nil {
		panic("embedded word bank: " + err.Error())
	}
	return bank
})

// DefaultWordBank returns the embedded word bank.
func DefaultWordBank() WordBank {
	return defaultBank()
}

// LoadWordBank decodes a JSON word bank and validates it.
func LoadWordBank(r io.Reader) (WordBank, error) {
	var bank WordBank
	if err := json.NewDecoder(r).Decode(&bank); err != nil {
		return nil, fmt.Errorf("decode word bank: %w", err)
	}
	if err := bank.Validate(); err != nil {
		return nil, err
	}
	return bank, nil
}

// Validate rejects banks with no categories, or categories with no words.
func (b WordBank) Validate() error {
	if len(b) == 0 {
		return errEmptyBank
	}
	for i, c := range b {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("word bank category %d has no name", i)
		}
		if len(c.Words) == 0 {
			return fmt.Errorf("word bank category %q has no words", c.Name)
		}
	}
	return nil
}

// pick draws a category uniformly, then a word uniformly from it.
func (b WordBank) pick(rng party.Rand) (category, word string) {
	c := b[rng.IntN(len(b))]
	return c.Name, c.Words[rng.IntN(len(c.Words))]
}
