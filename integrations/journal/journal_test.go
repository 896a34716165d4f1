package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"marginvault/core/types"
)

func TestAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(&types.Event{Type: "loan.created", Attributes: map[string]string{"borrower": "0x01"}}))
	require.NoError(t, j.Append(&types.Event{Type: "loan.repaid"}))

	count, err := j.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	recent, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "loan.repaid", recent[0].Type)
	require.Equal(t, "loan.created", recent[1].Type)
	require.Equal(t, "0x01", recent[1].Attributes["borrower"])
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(&types.Event{Type: "vault.deposited"}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	recent, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "vault.deposited", recent[0].Type)
}
