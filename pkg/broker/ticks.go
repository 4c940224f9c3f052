package broker

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// defaultTickHeader is the column layout used when a file has no header row
var defaultTickHeader = map[string]int{"time": 0, "symbol": 1, "bid": 2, "ask": 3}

// Tick is one recorded quote
type Tick struct {
	Time   time.Time
	Symbol string
	Bid    float64
	Ask    float64
}

// ReadTicksFile loads recorded quotes from a CSV file
func ReadTicksFile(path string) ([]Tick, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadTicks(file)
}

// ReadTicks parses CSV rows of time, symbol, bid and ask. A header row may reorder the columns.
// Times are unix seconds or RFC 3339. Ticks are returned in time order.
func ReadTicks(r io.Reader) ([]Tick, error) {
	lines, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	header, custom := parseTickHeader(lines[0])
	if custom {
		lines = lines[1:]
	}

	ticks := make([]Tick, 0, len(lines))
	for i, line := range lines {
		tick, err := parseTick(line, header)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		ticks = append(ticks, tick)
	}

	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].Time.Before(ticks[j].Time)
	})

	return ticks, nil
}

// Symbols returns the distinct symbols of the ticks in first seen order
func Symbols(ticks []Tick) []string {
	return lo.Uniq(lo.Map(ticks, func(tick Tick, _ int) string {
		return tick.Symbol
	}))
}

func parseTickHeader(row []string) (map[string]int, bool) {
	if _, err := parseTime(row[0]); err == nil {
		return defaultTickHeader, false
	}

	header := make(map[string]int, len(row))
	for i, column := range row {
		header[strings.ToLower(strings.TrimSpace(column))] = i
	}

	for column := range defaultTickHeader {
		if _, ok := header[column]; !ok {
			return defaultTickHeader, false
		}
	}
	return header, true
}

func parseTick(line []string, header map[string]int) (Tick, error) {
	field := func(name string) string {
		index := header[name]
		if index >= len(line) {
			return ""
		}
		return strings.TrimSpace(line[index])
	}

	at, err := parseTime(field("time"))
	if err != nil {
		return Tick{}, err
	}

	bid, err := strconv.ParseFloat(field("bid"), 64)
	if err != nil {
		return Tick{}, fmt.Errorf("invalid bid: %w", err)
	}

	ask, err := strconv.ParseFloat(field("ask"), 64)
	if err != nil {
		return Tick{}, fmt.Errorf("invalid ask: %w", err)
	}

	symbol := strings.ToUpper(field("symbol"))
	if symbol == "" {
		return Tick{}, fmt.Errorf("missing symbol")
	}

	return Tick{Time: at, Symbol: symbol, Bid: bid, Ask: ask}, nil
}

func parseTime(value string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}

	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", value)
	}
	return at, nil
}
