package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngestRun_JSONUsesSnakeCaseKeys(t *testing.T) {
	data, err := json.Marshal(&IngestRun{
		ID:         "r1",
		Document:   "biology.pdf",
		TotalPages: 12,
		LastError:  "",
		Status:     IngestRunStatusDone,
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"id", "document", "discipline", "grade", "publisher",
		"total_pages", "chunks", "points", "status", "last_error", "ctime", "mtime"} {
		require.Contains(t, decoded, key)
	}
	require.NotContains(t, decoded, "TotalPages")
	require.Equal(t, "done", decoded["status"])
}
