package allowlist

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	require.Zero(t, s.Len())
	require.False(t, s.Allowed("CN=alice"))

	require.False(t, s.Replace([]string{}), "empty list on empty store is not a change")

	require.True(t, s.Replace([]string{"CN=alice", "CN=bob"}))
	require.True(t, s.Allowed("CN=alice"))
	require.True(t, s.Allowed("CN=bob"))
	require.False(t, s.Allowed("cn=alice"), "match is case sensitive")
	require.False(t, s.Allowed(""))
	require.Equal(t, 2, s.Len())

	require.False(t, s.Replace([]string{"CN=alice", "CN=bob"}))
	require.True(t, s.Replace([]string{"CN=bob", "CN=alice"}), "order change counts as change")

	require.True(t, s.Replace([]string{"CN=carol"}))
	require.False(t, s.Allowed("CN=alice"))
	require.Equal(t, []string{"CN=carol"}, s.Snapshot())
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	input := []string{"CN=alice"}
	s := NewStore()
	s.Replace(input)
	input[0] = "CN=mallory"

	snap := s.Snapshot()
	snap[0] = "CN=eve"

	require.True(t, s.Allowed("CN=alice"))
	require.Equal(t, []string{"CN=alice"}, s.Snapshot())
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Replace([]string{fmt.Sprintf("CN=%d-%d", i, j)})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Allowed("CN=0-0")
				s.Len()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, s.Len())
}
