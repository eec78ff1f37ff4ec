package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"sentinel/diag", "sentinel/diag", true},
		{"sentinel/diag", "sentinel/health", false},
		{"sentinel/#", "sentinel/diag", true},
		{"sentinel/#", "sentinel/alert/node-1", true},
		{"sentinel/#", "other/diag", false},
		{"sentinel/+", "sentinel/diag", true},
		{"sentinel/+", "sentinel/alert/node-1", false},
		{"sentinel/alert/#", "sentinel/alert/node-1", true},
		{"sentinel/alert/#", "sentinel/diag", false},
		{"#", "anything/at/all", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, topicMatches(tc.filter, tc.topic),
			"filter %q topic %q", tc.filter, tc.topic)
	}
}

func TestLocalBrokerDelivery(t *testing.T) {
	b := NewLocal()

	var diag, all [][]byte
	require.NoError(t, b.Subscribe(TopicDiag, func(topic string, payload []byte) {
		diag = append(diag, payload)
	}))
	require.NoError(t, b.Subscribe(TopicAll, func(topic string, payload []byte) {
		all = append(all, payload)
	}))

	require.NoError(t, b.Publish(TopicDiag, []byte("d1")))
	require.NoError(t, b.Publish(TopicHealth, []byte("h1")))
	require.NoError(t, b.Publish(TopicAlerts+"/node-1", []byte("a1")))

	assert.Len(t, diag, 1)
	assert.Len(t, all, 3)
}
