package shared

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReferenceFormat(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 4, 5, 0, time.FixedZone("WIB", 7*3600))
	gen := NewReferenceGenerator().
		WithClock(func() time.Time { return at }).
		WithEntropy(func() string { return "a1b2c3d4-0000-0000-0000-000000000000" })

	require.Equal(t, "TRF-240315020405-A1B2C3", gen.Next(PrefixTransfer))
}

func TestReferencesAreUniqueWithinOneSecond(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 4, 5, 0, time.UTC)
	gen := NewReferenceGenerator().WithClock(func() time.Time { return at })
	pattern := regexp.MustCompile(`^DAP-240315090405-[0-9A-F]{6}$`)

	var (
		mu   sync.Mutex
		seen = map[string]struct{}{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref := gen.Next(PrefixSupplyRequest)
			mu.Lock()
			seen[ref] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, 50)
	for ref := range seen {
		require.Regexp(t, pattern, ref)
	}
}
