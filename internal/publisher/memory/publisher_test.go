package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherEncodesPerTopic(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "outcomes", map[string]string{"outcome": "success"})
	require.NoError(t, err)
	require.Equal(t, "outcomes-1", id)
	_, err = pub.Publish(context.Background(), "audit", "other")
	require.NoError(t, err)
	id, err = pub.Publish(context.Background(), "outcomes", map[string]string{"outcome": "not_found"})
	require.NoError(t, err)
	require.Equal(t, "outcomes-2", id)

	msgs := pub.Messages("outcomes")
	require.Len(t, msgs, 2)
	require.JSONEq(t, `{"outcome":"success"}`, string(msgs[0].Data))

	var decoded map[string]string
	require.NoError(t, msgs[1].Decode(&decoded))
	require.Equal(t, "not_found", decoded["outcome"])
	require.Equal(t, 3, pub.Len())
}

func TestPublisherRejectsUnencodable(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "outcomes", make(chan int))
	require.Error(t, err)
	require.Zero(t, pub.Len())
}

func TestPublisherRejectsAfterClose(t *testing.T) {
	t.Parallel()

	pub := New()
	require.NoError(t, pub.Close())
	_, err := pub.Publish(context.Background(), "outcomes", "late")
	require.ErrorIs(t, err, ErrClosed)
	require.Zero(t, pub.Len())
}
