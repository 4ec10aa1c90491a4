package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followsweep/pkg/channel/channeltest"
	errs "followsweep/pkg/errors"
)

func cell(data string) *channeltest.Node {
	return &channeltest.Node{Data: data}
}

func TestExtractComplete(t *testing.T) {
	n := cell(`{"url":"https://x.com/Bob","img":"https://pbs.twimg.com/a.jpg","username":"Bob ","account":"@bob","bio":"likes trains"}`)

	r, err := Extract(context.Background(), n, "Alice")
	require.NoError(t, err)

	assert.Equal(t, "bob", r.SourceID)
	assert.Equal(t, "alice", r.SubjectAccount)
	assert.Equal(t, "bob_alice", r.RecordKey)
	assert.Equal(t, "https://x.com/Bob", r.ProfileURL)
	assert.Equal(t, "https://pbs.twimg.com/a.jpg", r.AvatarURL)
	assert.Equal(t, "Bob", r.DisplayName)
	assert.Equal(t, "@bob", r.Handle)
	assert.Equal(t, "likes trains", r.Bio)
	assert.Equal(t, "Bob @bob likes trains", r.SearchableText)
}

func TestExtractMissingTextDefaultsEmpty(t *testing.T) {
	n := cell(`{"url":"https://x.com/carol","img":"https://pbs.twimg.com/c.jpg"}`)

	r, err := Extract(context.Background(), n, "alice")
	require.NoError(t, err)
	assert.Empty(t, r.DisplayName)
	assert.Empty(t, r.Handle)
	assert.Empty(t, r.Bio)
	assert.Equal(t, "carol_alice", r.RecordKey)
}

func TestExtractIncomplete(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no link", `{"url":"","img":"https://pbs.twimg.com/a.jpg"}`},
		{"no avatar", `{"url":"https://x.com/bob","img":""}`},
		{"blank link", `{"url":"   ","img":"https://pbs.twimg.com/a.jpg"}`},
		{"garbage", `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(context.Background(), cell(tt.data), "alice")
			assert.ErrorIs(t, err, errs.ErrExtractionIncomplete)
		})
	}
}

func TestExtractEvalFailure(t *testing.T) {
	n := &channeltest.Node{EvalErr: errors.New("node detached")}
	_, err := Extract(context.Background(), n, "alice")
	assert.ErrorIs(t, err, errs.ErrExtractionIncomplete)
}

func TestExtractBatchSkipsAndDedups(t *testing.T) {
	nodes := channeltest.Nodes(
		cell(`{"url":"https://x.com/bob","img":"i"}`),
		cell(`{"url":"","img":"i"}`),
		cell(`{"url":"https://x.com/Bob","img":"i2"}`),
		cell(`{"url":"https://x.com/carol","img":"i"}`),
	)

	b, err := ExtractBatch(context.Background(), nodes, "alice")
	require.NoError(t, err)
	require.Len(t, b.Records, 2)
	assert.Equal(t, "bob_alice", b.Records[0].RecordKey)
	assert.Equal(t, "carol_alice", b.Records[1].RecordKey)
	assert.Equal(t, 2, b.Skipped)
}

func TestExtractBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExtractBatch(ctx, channeltest.Nodes(cell(`{"url":"https://x.com/bob","img":"i"}`)), "alice")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseHeight(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12345px", 12345},
		{"812.5px", 812.5},
		{"", 0},
		{"auto", 0},
		{"0px", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseHeight(tt.in), tt.in)
	}
}
