package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"jellybot/config"
	"jellybot/model"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	records []model.ExtraContent
	fail    bool
}

func (f *fakeSink) Record(_ context.Context, typ model.ExtraContentType, channelID, title, content string) (*model.ExtraContent, error) {
	if f.fail {
		return nil, errors.New("disk full")
	}
	rec := model.ExtraContent{ID: "X1", Type: typ, ChannelID: channelID, Title: title, Content: content}
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeSink) Get(context.Context, string) (*model.ExtraContent, error) { return nil, nil }

func (f *fakeSink) URL(id string) string { return "https://bot/page/extra/" + id }

func (f *fakeSink) items(t *testing.T) []model.OverflowItem {
	t.Helper()
	require.Len(t, f.records, 1)
	var items []model.OverflowItem
	require.NoError(t, json.Unmarshal([]byte(f.records[0].Content), &items))
	return items
}

func newPartitioner(sink *fakeSink) *Partitioner {
	return NewPartitioner(map[model.Platform]config.PlatformLimits{
		model.PlatformLine: {MaxContentLength: 20, MaxResponses: 3, MaxContentLines: 2},
	}, sink)
}

func texts(ss ...string) []model.HandledMessage {
	out := make([]model.HandledMessage, len(ss))
	for i, s := range ss {
		out[i] = model.TextMessage(s)
	}
	return out
}

func TestPartitionAtLimit(t *testing.T) {
	sink := &fakeSink{}
	got := newPartitioner(sink).Partition(context.Background(), model.PlatformLine, "C1", texts("a", "b", "c"))

	want := []model.OutboundMessage{
		{Type: model.ContentText, Payload: "a"},
		{Type: model.ContentText, Payload: "b"},
		{Type: model.ContentText, Payload: "c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Partition() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, sink.records)
}

func TestPartitionOneOverLimit(t *testing.T) {
	sink := &fakeSink{}
	got := newPartitioner(sink).Partition(context.Background(), model.PlatformLine, "C1", texts("a", "b", "c", "d"))

	require.Len(t, got, 4)
	assert.Equal(t, "c", got[2].Payload)
	assert.Contains(t, got[3].Payload, "https://bot/page/extra/X1")

	want := []model.OverflowItem{{Reason: model.OverflowTooManyResponses, Content: "d"}}
	if diff := cmp.Diff(want, sink.items(t)); diff != "" {
		t.Errorf("overflow mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionReasons(t *testing.T) {
	sink := &fakeSink{}
	msgs := []model.HandledMessage{
		model.TextMessage(strings.Repeat("x", 21)),
		{Type: model.ContentText, Content: "forced", ForceExtra: true, BypassMultilineCheck: true},
		model.TextMessage("l1\nl2\nl3"),
		{Type: model.ContentText, Content: "b1\nb2\nb3", BypassMultilineCheck: true},
		{Type: model.ContentImage, Content: "https://img/a.png"},
		{Type: model.ContentText, Content: "6", LatexHTML: "<p>6</p>"},
	}
	got := newPartitioner(sink).Partition(context.Background(), model.PlatformLine, "C1", msgs)

	want := []model.OutboundMessage{
		{Type: model.ContentText, Payload: "b1\nb2\nb3"},
		{Type: model.ContentImage, Payload: "https://img/a.png"},
		{Type: model.ContentText, Payload: "6"},
	}
	if diff := cmp.Diff(want, got[:3]); diff != "" {
		t.Errorf("to send mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, got, 4)

	wantItems := []model.OverflowItem{
		{Reason: model.OverflowTooLong, Content: strings.Repeat("x", 21)},
		{Reason: model.OverflowForcedOnSite, Content: "forced"},
		{Reason: model.OverflowTooManyLines, Content: "l1\nl2\nl3"},
		{Reason: model.OverflowLatexAvailable, Content: "<p>6</p>"},
	}
	if diff := cmp.Diff(wantItems, sink.items(t)); diff != "" {
		t.Errorf("overflow mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "C1", sink.records[0].ChannelID)
}

func TestPartitionRecordFailure(t *testing.T) {
	sink := &fakeSink{fail: true}
	got := newPartitioner(sink).Partition(context.Background(), model.PlatformLine, "C1", texts("a", "b", "c", "d"))
	require.Len(t, got, 4)
	assert.Contains(t, got[3].Payload, "保存失败")
}
