package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "crawl-runs", crawler.RunEvent{RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "crawl-runs", msgs[0].Topic)
	require.Equal(t, "run-1", msgs[0].Payload.(crawler.RunEvent).RunID)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	p := New()
	p.FailWith(errors.New("unavailable"))
	_, err := p.Publish(context.Background(), "t", "x")
	require.ErrorContains(t, err, "unavailable")
	require.Empty(t, p.Messages())

	p.FailWith(nil)
	_, err = p.Publish(context.Background(), "t", "x")
	require.NoError(t, err)
}
