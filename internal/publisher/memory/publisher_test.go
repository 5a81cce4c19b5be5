package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/publisher"
)

func TestPublisherStoresSummaries(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), publisher.Summary{RunID: "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), publisher.Summary{RunID: "b"})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	got := pub.Summaries()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].RunID)

	got[0].RunID = "modified"
	require.Equal(t, "a", pub.Summaries()[0].RunID)
}
