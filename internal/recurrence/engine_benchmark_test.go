package recurrence

import (
	"testing"
	"time"
)

func BenchmarkEngineExpand(b *testing.B) {
	engine, cal := newTestEngine(b)
	first := date(b, "2024-05-06")
	until := date(b, "2024-07-19")
	baseStart := time.Date(2024, 5, 6, 9, 0, 0, 0, cal.Location())
	baseEnd := baseStart.Add(90 * time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dates, err := engine.Expand(first, []int{1, 2, 3, 4, 5}, until)
		if err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
		if len(engine.Windows(dates, baseStart, baseEnd)) == 0 {
			b.Fatal("expected occurrences to be generated")
		}
	}
}
