package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/extanim/internal/journal"
)

func testEvents() []journal.Event {
	now := time.Now()
	return []journal.Event{
		{
			ID:        "01HQ0000000000000000000001",
			Kind:      journal.KindForcedPass,
			TxnID:     "01HQTXN0000000000000000001",
			Display:   2,
			Outcome:   "timed_out",
			Elapsed:   1000 * time.Millisecond,
			Timestamp: now.Add(-5 * time.Minute).UnixMilli(),
		},
		{
			ID:        "01HQ0000000000000000000002",
			Kind:      journal.KindAnimating,
			Display:   1,
			Animating: true,
			Timestamp: now.Add(-2 * time.Hour).UnixMilli(),
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    FormatType
		wantErr bool
	}{
		{"", FormatPlain, false},
		{"text", FormatPlain, false},
		{"plain", FormatPlain, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlainFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPlainFormatter(DefaultFormatterOptions()).Format(&buf, testEvents()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	assert.Contains(t, lines[0], "5 minutes ago")
	assert.Contains(t, lines[0], "forced_pass")
	assert.Contains(t, lines[0], "outcome=timed_out")
	assert.Contains(t, lines[0], "elapsed=1s")
	assert.NotContains(t, lines[0], "txn=")

	assert.Contains(t, lines[1], "2 hours ago")
	assert.Contains(t, lines[1], "animating=true")
}

func TestPlainFormatter_ShowTxn(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatterOptions{ShowTxn: true}
	require.NoError(t, NewPlainFormatter(opts).Format(&buf, testEvents()[:1]))

	assert.Contains(t, buf.String(), "txn=01HQTXN0000000000000000001")
	assert.NotContains(t, buf.String(), "ago")
}

func TestPlainFormatter_Template(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatterOptions{Template: "{{.Index}} {{.Event.Kind}} {{elapsed .Event.Elapsed}}"}
	require.NoError(t, NewPlainFormatter(opts).Format(&buf, testEvents()))

	assert.Equal(t, "1 forced_pass 1s\n2 animating 0ms\n", buf.String())
}

func TestPlainFormatter_InvalidTemplateFallsBack(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatterOptions{Template: "{{.Broken"}
	require.NoError(t, NewPlainFormatter(opts).Format(&buf, testEvents()[:1]))

	assert.Contains(t, buf.String(), "forced_pass")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON, FormatterOptions{}).Format(&buf, testEvents()))

	var decoded []journal.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, testEvents()[0].TxnID, decoded[0].TxnID)
	assert.Len(t, decoded, 2)
}

func TestJSONFormatter_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON, FormatterOptions{}).Format(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatYAML, FormatterOptions{}).Format(&buf, testEvents()))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "forced_pass", decoded[0]["kind"])
	assert.Equal(t, true, decoded[1]["animating"])
}

func TestWriteValue_PlainRejected(t *testing.T) {
	assert.Error(t, WriteValue(&bytes.Buffer{}, FormatPlain, struct{}{}))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0ms", FormatElapsed(0))
	assert.Equal(t, "500µs", FormatElapsed(500*time.Microsecond))
	assert.Equal(t, "12ms", FormatElapsed(12345*time.Microsecond))
	assert.Equal(t, "1s", FormatElapsed(time.Second))
}
