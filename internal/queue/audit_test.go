package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		entry   *audit.Entry
		wantKey func(e *audit.Entry) string
	}{
		{
			name: "keyed by document",
			entry: func() *audit.Entry {
				e := audit.NewEntry(audit.ActionEdit, audit.KindUpdate, "sam", at)
				e.DocumentID = "doc-1"
				return e
			}(),
			wantKey: func(*audit.Entry) string { return "doc-1" },
		},
		{
			name:    "keyed by entry without document",
			entry:   audit.NewEntry(audit.ActionUpload, audit.KindCreate, "sam", at),
			wantKey: func(e *audit.Entry) string { return e.ID.String() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Message("docflow.audit", tt.entry)
			require.NoError(t, err)

			assert.Equal(t, "docflow.audit", *msg.TopicPartition.Topic)
			assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
			assert.Equal(t, tt.wantKey(tt.entry), string(msg.Key))
			assert.Equal(t, string(tt.entry.Action), string(msg.Headers[0].Value))

			var decoded audit.Entry
			require.NoError(t, json.Unmarshal(msg.Value, &decoded))
			assert.Equal(t, tt.entry.ID, decoded.ID)
			assert.Equal(t, tt.entry.Actor, decoded.Actor)
		})
	}
}
