package assert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seelmesh/seel/internal/nvm"
)

func TestLogAddAndEntries(t *testing.T) {
	dev := nvm.NewMemory(32) // 8 entries
	l := NewLog(dev)

	require.True(t, l.Add(3, 120))
	require.True(t, l.Add(5, 900))

	entries := l.Entries()
	require.Equal(t, []Entry{{FileID: 3, Line: 120}, {FileID: 5, Line: 900}}, entries)
}

func TestLogAddRefusesWhenFull(t *testing.T) {
	dev := nvm.NewMemory(8) // 2 entries
	l := NewLog(dev)

	require.True(t, l.Add(1, 1))
	require.True(t, l.Add(2, 2))
	require.False(t, l.Add(3, 3), "the ring has no more room")
}

func TestLogInitAddClearInitRoundTrip(t *testing.T) {
	dev := nvm.NewMemory(32)
	l := NewLog(dev)

	require.True(t, l.Add(10, 42))
	require.True(t, l.Add(11, 43))
	require.Len(t, l.Entries(), 2)

	l.Clear()
	l.Init()

	require.Empty(t, l.Entries(), "the log must be empty aside from the dummy head")

	require.True(t, l.Add(12, 99), "subsequent adds must succeed from the new ring head")
	entries := l.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, Entry{FileID: 12, Line: 99}, entries[0])
}

func TestLogInitRecoversAcrossReopen(t *testing.T) {
	dev := nvm.NewMemory(32)
	l := NewLog(dev)
	l.Add(7, 77)

	reopened := NewLog(dev)
	require.Equal(t, []Entry{{FileID: 7, Line: 77}}, reopened.Entries())
}

func TestFailAndPrintFailsGlobal(t *testing.T) {
	dev := nvm.NewMemory(64)
	Init(dev, true)
	defer Init(nil, false)

	Fail("snode.go", 150)
	Fail("gnode.go", 88)

	lines := PrintFails()
	require.Equal(t, []string{"snode.go:150", "gnode.go:88"}, lines)
}

func TestFailNoOpWhenDisabled(t *testing.T) {
	dev := nvm.NewMemory(64)
	Init(dev, false)
	defer Init(nil, false)

	Fail("snode.go", 1)
	require.Empty(t, PrintFails())
}
