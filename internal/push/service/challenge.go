package service

import (
	"fmt"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	"github.com/aussiebroadwan/pushmfa/pkg/cryptox"
)

// GenerateChallenge builds the decision items for a transaction in the given
// matching mode, and reports which item counts as the correct selection.
//
// Accept/deny is a fixed pair with "accept" correct. Number matching draws ONE
// random fixed-length code and repeats it three times, so every displayed item
// is correct. That mirrors the upstream behaviour this service replaces; a
// future mode could generate distinct decoys instead.
func GenerateChallenge(mode domain.ItemMatchingMode) (items []string, correct string, err error) {
	switch mode {
	case domain.ItemMatchingAcceptDeny:
		return []string{"accept", "deny"}, "accept", nil

	case domain.ItemMatchingNumber2, domain.ItemMatchingNumber3:
		length := 2
		if mode == domain.ItemMatchingNumber3 {
			length = 3
		}
		code, err := cryptox.GenerateNumericCode(length)
		if err != nil {
			return nil, "", fmt.Errorf("generate challenge code: %w", err)
		}
		return []string{code, code, code}, code, nil

	default:
		return nil, "", fmt.Errorf("unknown item matching mode %q", mode)
	}
}
