package store

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	require.Equal(t, "evt_123", computeDedupKey(body))
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	got := computeDedupKey([]byte(`{"notId":"x"}`))
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	require.NoError(t, err)
	require.Len(t, b, 8)
}

func TestRebind(t *testing.T) {
	pg := &SQL{d: postgresDialect}
	require.Equal(t, `UPDATE t SET a=$1 WHERE id=$2 AND s IN ($3,$4)`, pg.rebind(`UPDATE t SET a=? WHERE id=? AND s IN (?,?)`))
	lite := &SQL{d: sqliteDialect}
	require.Equal(t, `SELECT id FROM t WHERE id=?`, lite.rebind(`SELECT id FROM t WHERE id=?`))
}
