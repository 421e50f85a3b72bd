package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

func openTestStore(t *testing.T) *FillStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "fills.db")
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func sampleFill(execID string) router.Fill {
	return router.Fill{
		InstrumentID:    1,
		ExchangeOrderID: "EX-1",
		ExecID:          execID,
		Side:            ticks.Buy,
		Price:           ticks.Price(100 * ticks.Scale),
		Quantity:        ticks.Quantity(1 * ticks.Scale),
		TimestampUs:     time.Now().UnixMicro(),
	}
}

// Close drains the async write queue, so it's the deterministic point
// at which a just-appended fill is guaranteed visible to a query — the
// hot path (Append) never blocks on the write actually landing.
func TestAppendAndByInstrument(t *testing.T) {
	s := openTestStore(t)
	s.Append(sampleFill("EXEC-1"))
	s.Append(sampleFill("EXEC-2"))
	s.Close()

	records, err := s.ByInstrument(1, 10)
	if err != nil {
		t.Fatalf("ByInstrument: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ByInstrument returned %d records, want 2", len(records))
	}
}

func TestByDateFiltersToToday(t *testing.T) {
	s := openTestStore(t)
	s.Append(sampleFill("EXEC-TODAY"))
	s.Close()

	records, err := s.ByDate(time.Now().UTC())
	if err != nil {
		t.Fatalf("ByDate: %v", err)
	}
	if len(records) != 1 || records[0].ExecID != "EXEC-TODAY" {
		t.Fatalf("ByDate = %+v, want one EXEC-TODAY record", records)
	}
}

func TestUnknownInstrumentReturnsNoRows(t *testing.T) {
	s := openTestStore(t)
	s.Append(sampleFill("EXEC-1"))
	s.Close()

	records, err := s.ByInstrument(999, 10)
	if err != nil {
		t.Fatalf("ByInstrument: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("ByInstrument for unknown instrument = %+v, want none", records)
	}
}
