package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransactionStatusDerivation(t *testing.T) {
	t.Parallel()

	str := func(s string) *string { return &s }

	tests := []struct {
		name     string
		selected *string
		correct  string
		want     TransactionStatus
	}{
		{"no selection is wait", nil, "42", StatusWait},
		{"empty selection is wait", str(""), "42", StatusWait},
		{"matching selection is accept", str("42"), "42", StatusAccept},
		{"mismatched selection is deny", str("17"), "42", StatusDeny},
		{"accept item matches accept", str("accept"), "accept", StatusAccept},
		{"deny item mismatches accept", str("deny"), "accept", StatusDeny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Transaction{CorrectItem: tt.correct, SelectedItem: tt.selected}
			require.Equal(t, tt.want, tx.Status())
		})
	}
}

func TestTransactionStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, StatusWait.Terminal())
	require.True(t, StatusAccept.Terminal())
	require.True(t, StatusDeny.Terminal())
}

func TestTransactionExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tx := Transaction{ExpiresAt: now.Add(time.Minute)}

	require.False(t, tx.Expired(now))
	require.False(t, tx.Expired(now.Add(time.Minute))) // boundary is inclusive
	require.True(t, tx.Expired(now.Add(time.Minute+time.Nanosecond)))
}

func TestItemMatchingModeValid(t *testing.T) {
	t.Parallel()

	for _, m := range []ItemMatchingMode{ItemMatchingAcceptDeny, ItemMatchingNumber2, ItemMatchingNumber3} {
		require.True(t, m.Valid())
	}
	require.False(t, ItemMatchingMode("number_matching_4").Valid())
	require.False(t, ItemMatchingMode("").Valid())
}
