package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layertune/api/internal/model"
)

// scriptedFetch returns the next scripted batch on each call, repeating the
// last one once the script is exhausted.
func scriptedFetch(script ...[]model.Clip) StatusFunc {
	i := 0
	return func(ctx context.Context, ids []string) ([]model.Clip, error) {
		batch := script[i]
		if i < len(script)-1 {
			i++
		}
		return batch, nil
	}
}

func fastOpts() Options {
	return Options{Interval: time.Millisecond, Timeout: time.Second}
}

func TestWaitForClipsReturnsWhenAllComplete(t *testing.T) {
	fetch := scriptedFetch(
		[]model.Clip{{ID: "a", Status: model.ClipStatusQueued}, {ID: "b", Status: model.ClipStatusQueued}},
		[]model.Clip{{ID: "a", Status: model.ClipStatusComplete, AudioURL: "https://cdn/a.mp3"}, {ID: "b", Status: model.ClipStatusStreaming}},
		[]model.Clip{{ID: "a", Status: model.ClipStatusComplete, AudioURL: "https://cdn/a.mp3"}, {ID: "b", Status: model.ClipStatusComplete, AudioURL: "https://cdn/b.mp3"}},
	)

	clips, err := WaitForClips(context.Background(), fetch, []string{"a", "b"}, fastOpts())
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Equal(t, model.ClipStatusComplete, clips[0].Status)
	assert.Equal(t, model.ClipStatusComplete, clips[1].Status)
}

func TestWaitForClipsAcceptsStreaming(t *testing.T) {
	fetch := scriptedFetch(
		[]model.Clip{{ID: "a", Status: model.ClipStatusStreaming}, {ID: "b", Status: model.ClipStatusComplete}},
	)

	opts := fastOpts()
	opts.AcceptStreaming = true
	clips, err := WaitForClips(context.Background(), fetch, []string{"a", "b"}, opts)
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Equal(t, model.ClipStatusStreaming, clips[0].Status)
}

func TestWaitForClipsFailsOnErrorClip(t *testing.T) {
	fetch := scriptedFetch(
		[]model.Clip{{ID: "a", Status: model.ClipStatusComplete}, {ID: "b", Status: model.ClipStatusError}},
	)

	_, err := WaitForClips(context.Background(), fetch, []string{"a", "b"}, fastOpts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clip b failed")
}

func TestWaitForClipsTimesOut(t *testing.T) {
	fetch := scriptedFetch([]model.Clip{{ID: "a", Status: model.ClipStatusQueued}})

	opts := Options{Interval: time.Millisecond, Timeout: 20 * time.Millisecond}
	start := time.Now()
	_, err := WaitForClips(context.Background(), fetch, []string{"a"}, opts)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	// must end within one interval past the configured timeout
	assert.GreaterOrEqual(t, elapsed, opts.Timeout)
	assert.Less(t, elapsed, opts.Timeout+100*time.Millisecond)
}

func TestWaitForClipsHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetch := scriptedFetch([]model.Clip{{ID: "a", Status: model.ClipStatusQueued}})

	_, err := WaitForClips(ctx, fetch, []string{"a"}, fastOpts())
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitProgressivelyDeliversEachItemOnce(t *testing.T) {
	done := func(id string) model.Clip {
		return model.Clip{ID: id, Status: model.ClipStatusComplete, AudioURL: "https://cdn/" + id + ".mp3"}
	}
	fetch := scriptedFetch(
		[]model.Clip{done("a"), {ID: "b", Status: model.ClipStatusQueued}},
		[]model.Clip{done("a"), {ID: "b", Status: model.ClipStatusQueued}},
		[]model.Clip{done("a"), done("b")},
	)

	calls := map[string]int{}
	clips, err := WaitProgressively(context.Background(), fetch, []string{"a", "b"}, func(c model.Clip) {
		calls[c.ID]++
	}, fastOpts())
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Equal(t, 1, calls["a"])
	assert.Equal(t, 1, calls["b"])
}

func TestWaitProgressivelySkipsCompleteWithoutAudio(t *testing.T) {
	fetch := scriptedFetch(
		[]model.Clip{{ID: "a", Status: model.ClipStatusComplete}},
		[]model.Clip{{ID: "a", Status: model.ClipStatusComplete, AudioURL: "https://cdn/a.mp3"}},
	)

	var got []string
	clips, err := WaitProgressively(context.Background(), fetch, []string{"a"}, func(c model.Clip) {
		got = append(got, c.AudioURL)
	}, fastOpts())
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, []string{"https://cdn/a.mp3"}, got)
}

func TestWaitProgressivelyContinuesPastItemError(t *testing.T) {
	fetch := scriptedFetch(
		[]model.Clip{
			{ID: "a", Status: model.ClipStatusError},
			{ID: "b", Status: model.ClipStatusComplete, AudioURL: "https://cdn/b.mp3"},
		},
	)

	var delivered int
	clips, err := WaitProgressively(context.Background(), fetch, []string{"a", "b"}, func(model.Clip) {
		delivered++
	}, fastOpts())
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, "b", clips[0].ID)
	assert.Equal(t, 1, delivered)
}

func TestWaitProgressivelyFailsWhenNothingDelivered(t *testing.T) {
	fetch := scriptedFetch(
		[]model.Clip{{ID: "a", Status: model.ClipStatusError}, {ID: "b", Status: model.ClipStatusError}},
	)

	_, err := WaitProgressively(context.Background(), fetch, []string{"a", "b"}, func(model.Clip) {
		t.Fatal("no delivery expected")
	}, fastOpts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 stem jobs failed")
}

func TestWaitForStemTypeReturnsTargetBeforeBatchFinishes(t *testing.T) {
	pending := make([]model.Clip, 0, 12)
	for _, title := range []string{
		"Song - Vocals", "Song - Backing Vocals", "Song - Drums", "Song - Bass",
		"Song - Guitar", "Song - Keyboard", "Song - Percussion", "Song - Strings",
		"Song - Synth", "Song - FX", "Song - Brass", "Song - Woodwinds",
	} {
		pending = append(pending, model.Clip{ID: title, Title: title, Status: model.ClipStatusQueued})
	}
	second := append([]model.Clip(nil), pending...)
	second[2] = model.Clip{ID: "Song - Drums", Title: "Song - Drums", Status: model.ClipStatusComplete, AudioURL: "https://cdn/drums.mp3"}

	fetch := scriptedFetch(pending, second)
	ids := make([]string, len(pending))
	for i, c := range pending {
		ids[i] = c.ID
	}

	clip, err := WaitForStemType(context.Background(), fetch, ids, model.StemDrums, fastOpts())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/drums.mp3", clip.AudioURL)
}

func TestWaitForStemTypeFailsFastWhenAllTerminalWithoutMatch(t *testing.T) {
	fetch := scriptedFetch([]model.Clip{
		{ID: "1", Title: "Song - Vocals", Status: model.ClipStatusComplete, AudioURL: "https://cdn/v.mp3"},
		{ID: "2", Title: "Song - Bass", Status: model.ClipStatusComplete, AudioURL: "https://cdn/b.mp3"},
	})

	start := time.Now()
	_, err := WaitForStemType(context.Background(), fetch, []string{"1", "2"}, model.StemDrums, fastOpts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available types were bass, vocals")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitForStemTypeIgnoresUnrelatedErrors(t *testing.T) {
	fetch := scriptedFetch(
		[]model.Clip{
			{ID: "1", Title: "Song - Vocals", Status: model.ClipStatusError},
			{ID: "2", Title: "Song - Drums", Status: model.ClipStatusQueued},
		},
		[]model.Clip{
			{ID: "1", Title: "Song - Vocals", Status: model.ClipStatusError},
			{ID: "2", Title: "Song - Drums", Status: model.ClipStatusComplete, AudioURL: "https://cdn/d.mp3"},
		},
	)

	clip, err := WaitForStemType(context.Background(), fetch, []string{"1", "2"}, model.StemDrums, fastOpts())
	require.NoError(t, err)
	assert.Equal(t, "2", clip.ID)
}

func TestWaitForStemTypeFailsWhenTargetErrors(t *testing.T) {
	fetch := scriptedFetch([]model.Clip{
		{ID: "1", Title: "Song - Drums", Status: model.ClipStatusError},
		{ID: "2", Title: "Song - Vocals", Status: model.ClipStatusQueued},
	})

	_, err := WaitForStemType(context.Background(), fetch, []string{"1", "2"}, model.StemDrums, fastOpts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drums stem job 1 failed")
}
