package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "pages")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })

	event := crawler.PageFetchedEvent{
		RunID:       "run-1",
		SiteID:      "worldjournal",
		URL:         "http://example.com/view/1",
		ContentHash: "abc",
		BlobName:    "worldjournal_abc.blob",
	}
	id, err := pub.Publish(ctx, "pages", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "worldjournal", msgs[0].Attributes["site_id"])

	var got crawler.PageFetchedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, event.URL, got.URL)
	require.Equal(t, event.ContentHash, got.ContentHash)
}

func TestPublishValidates(t *testing.T) {
	var nilPub *Publisher
	_, err := nilPub.Publish(context.Background(), "pages", "x")
	require.Error(t, err)

	client, _ := newTestClient(t)
	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = Dial(context.Background(), "")
	require.Error(t, err)
}
