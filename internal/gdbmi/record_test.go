package gdbmi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordStopped(t *testing.T) {
	line := `*stopped,reason="signal-received",signal-name="SIGSEGV",signal-meaning="Segmentation fault",` +
		`frame={addr="0x0000555555555131",func="main",args=[],file="a.c",line="3"},thread-id="2",stopped-threads="all",core="1"`

	rec, err := ParseRecord(line)
	require.NoError(t, err)
	assert.Equal(t, KindExec, rec.Kind)
	assert.Equal(t, "stopped", rec.Class)
	assert.Equal(t, "signal-received", rec.String("reason"))
	assert.Equal(t, "SIGSEGV", rec.String("signal-name"))
	assert.Equal(t, "2", rec.String("thread-id"))

	frame, ok := rec.Get("frame")
	require.True(t, ok)
	assert.Equal(t, ValueTuple, frame.Kind)
	fn, ok := frame.Field("func")
	require.True(t, ok)
	assert.Equal(t, "main", fn.String())

	args, ok := frame.Field("args")
	require.True(t, ok)
	assert.Equal(t, ValueList, args.Kind)
	assert.Empty(t, args.Items)
}

func TestParseRecordResultWithToken(t *testing.T) {
	rec, err := ParseRecord(`12^done,threads=[{id="2",target-id="Thread 0x7ffff7d8a640 (LWP 4242)",name="CPU thread",state="stopped"}],current-thread-id="2"`)
	require.NoError(t, err)
	assert.Equal(t, "12", rec.Token)
	assert.Equal(t, KindResult, rec.Kind)
	assert.Equal(t, "done", rec.Class)

	threads, ok := rec.Get("threads")
	require.True(t, ok)
	require.Len(t, threads.Items, 1)
	name, ok := threads.Items[0].Field("name")
	require.True(t, ok)
	assert.Equal(t, "CPU thread", name.String())
}

func TestParseRecordNamedList(t *testing.T) {
	rec, err := ParseRecord(`^done,stack=[frame={level="0"},frame={level="1"}]`)
	require.NoError(t, err)
	stack, ok := rec.Get("stack")
	require.True(t, ok)
	require.Len(t, stack.Results, 2)
	level, _ := stack.Results[1].Value.Field("level")
	assert.Equal(t, "1", level.String())
}

func TestParseRecordError(t *testing.T) {
	rec, err := ParseRecord(`3^error,msg="No symbol \"foo\" in current context."`)
	require.NoError(t, err)
	assert.Equal(t, "error", rec.Class)
	assert.Equal(t, `No symbol "foo" in current context.`, rec.String("msg"))
}

func TestParseRecordStreams(t *testing.T) {
	cases := []struct {
		line string
		kind RecordKind
		text string
	}{
		{`~"GNU gdb (GDB) 14.2\n"`, KindConsole, "GNU gdb (GDB) 14.2\n"},
		{`&"set logging on\n"`, KindLog, "set logging on\n"},
		{`@"\tout\033"`, KindTarget, "\tout\x1b"},
	}
	for _, tc := range cases {
		rec, err := ParseRecord(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.kind, rec.Kind, tc.line)
		assert.Equal(t, tc.text, rec.Text, tc.line)
	}
}

func TestParseRecordMisc(t *testing.T) {
	rec, err := ParseRecord("(gdb) ")
	require.NoError(t, err)
	assert.Equal(t, KindPrompt, rec.Kind)

	rec, err = ParseRecord(`=thread-group-added,id="i1"`)
	require.NoError(t, err)
	assert.Equal(t, KindNotify, rec.Kind)
	assert.True(t, rec.Kind.IsAsync())

	rec, err = ParseRecord("*running,thread-id=\"all\"\r")
	require.NoError(t, err)
	assert.Equal(t, "running", rec.Class)
	assert.Equal(t, "all", rec.String("thread-id"))
}

func TestParseRecordMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"12",
		"!oops",
		"^",
		`^done,`,
		`^done,x`,
		`^done,x="unterminated`,
		`*stopped,frame={a="1"`,
		`~"text" trailing`,
		`5~"tok"`,
	} {
		_, err := ParseRecord(line)
		require.Error(t, err, line)
		assert.True(t, errors.Is(err, ErrMalformedRecord), line)
	}
}

func TestQuoteCString(t *testing.T) {
	assert.Equal(t, `"set pagination off"`, QuoteCString("set pagination off"))
	assert.Equal(t, `"echo \"hi\"\\\n"`, QuoteCString("echo \"hi\"\\\n"))

	rec, err := ParseRecord(`~` + QuoteCString("a\"b\\c\td"))
	require.NoError(t, err)
	assert.Equal(t, "a\"b\\c\td", rec.Text)
}
