package instrument

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/pkg/ticks"
)

// expectedHeader is the instrument CSV header. instrument_id is
// optional and, when present, must be the last column.
var expectedHeader = []string{
	"market", "symbol", "type", "base_currency", "quote_currency",
	"minimum_price_variation", "lot_size", "contract_multiplier",
	"minimum_order_size",
}

// LoadCSV populates registry from the instrument CSV format. This is
// deliberately minimal — a one-shot catalog load at startup, not a live
// reconciliation path.
func LoadCSV(r io.Reader, registry *Registry) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("instrument: reading csv header: %w", err)
	}
	hasID, err := validateHeader(header)
	if err != nil {
		return err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("instrument: reading csv row: %w", err)
		}

		inst, err := parseRow(record, hasID)
		if err != nil {
			return err
		}
		registry.Add(inst)
	}
	return nil
}

func validateHeader(header []string) (hasID bool, err error) {
	if len(header) < len(expectedHeader) {
		return false, fmt.Errorf("instrument: csv header has %d columns, want at least %d", len(header), len(expectedHeader))
	}
	for i, col := range expectedHeader {
		if strings.TrimSpace(header[i]) != col {
			return false, fmt.Errorf("instrument: csv header column %d is %q, want %q", i, header[i], col)
		}
	}
	hasID = len(header) > len(expectedHeader) && strings.TrimSpace(header[len(expectedHeader)]) == "instrument_id"
	return hasID, nil
}

func parseRow(record []string, hasID bool) (Instrument, error) {
	if len(record) < len(expectedHeader) {
		return Instrument{}, fmt.Errorf("instrument: csv row has %d columns, want at least %d", len(record), len(expectedHeader))
	}

	kind, bitmex, err := parseKind(record[2], record[0])
	if err != nil {
		return Instrument{}, err
	}

	tickSize, err := parsePrice("minimum_price_variation", record[5])
	if err != nil {
		return Instrument{}, err
	}
	lotSize, err := parseQuantity("lot_size", record[6])
	if err != nil {
		return Instrument{}, err
	}
	multiplier, err := parseQuantity("contract_multiplier", record[7])
	if err != nil {
		return Instrument{}, err
	}
	minOrderSize, err := parseQuantity("minimum_order_size", record[8])
	if err != nil {
		return Instrument{}, err
	}

	inst := Instrument{
		Symbol:             record[1],
		SourceExchange:     record[0],
		Kind:               kind,
		BaseCurrency:       ticks.Intern(record[3]),
		QuoteCurrency:      ticks.Intern(record[4]),
		TickSize:           tickSize,
		LotSize:            lotSize,
		MinOrderSize:       minOrderSize,
		ContractMultiplier: multiplier,
		BitmexStyle:        bitmex,
	}

	if hasID && len(record) > len(expectedHeader) {
		id, err := strconv.Atoi(strings.TrimSpace(record[len(expectedHeader)]))
		if err != nil {
			return Instrument{}, fmt.Errorf("instrument: invalid instrument_id %q: %w", record[len(expectedHeader)], err)
		}
		inst.ID = ID(id)
	}

	return inst, nil
}

func parseKind(raw, exchange string) (Kind, bool, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SPOT":
		return Spot, false, nil
	case "LINEAR", "LINEAR_PERPETUAL", "PERPETUAL":
		return LinearPerpetual, false, nil
	case "INVERSE", "INVERSE_PERPETUAL":
		return InversePerpetual, strings.EqualFold(exchange, "BITMEX"), nil
	case "DATED_FUTURE", "FUTURE":
		return DatedFuture, false, nil
	default:
		return 0, false, fmt.Errorf("instrument: unknown type %q", raw)
	}
}

func parsePrice(field, raw string) (ticks.Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("instrument: invalid %s %q: %w", field, raw, err)
	}
	return ticks.FromDecimal(d), nil
}

func parseQuantity(field, raw string) (ticks.Quantity, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("instrument: invalid %s %q: %w", field, raw, err)
	}
	return ticks.QuantityFromDecimal(d), nil
}
