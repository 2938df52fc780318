//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/markkurossi/tabulate"
	"github.com/slaxman1978/fbpcs/align"
	"github.com/slaxman1978/fbpcs/env"
	"github.com/slaxman1978/fbpcs/exchange"
	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/p2p"
	"github.com/slaxman1978/fbpcs/pid"
)

var verbose = false

func main() {
	publisherFile := flag.String("publisher", "", "publisher input CSV")
	partnerFile := flag.String("partner", "", "partner input CSV")
	conversions := flag.Int("conversions", 4, "conversion slots per user")
	window := flag.Uint("window", env.DefaultAttributionWindow,
		"attribution window in seconds")
	reveal := flag.Bool("reveal", false,
		"recombine both parties' shares and print the aligned rows")
	timing := flag.Bool("timing", false, "print timing and I/O reports")
	fVerbose := flag.Bool("v", false, "verbose output")
	flag.Parse()

	verbose = *fVerbose

	if len(*publisherFile) == 0 || len(*partnerFile) == 0 {
		fmt.Printf("No input files\n")
		os.Exit(1)
	}

	pubRecords, err := loadPublisher(*publisherFile)
	if err != nil {
		log.Fatal(err)
	}
	partRecords, err := loadPartner(*partnerFile)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Publisher: %d rows\n", len(pubRecords))
	fmt.Printf("Partner  : %d rows\n", len(partRecords))

	pubConn, partConn := p2p.Pipe()

	var partnerData *lift.ProcessedData
	var partnerTiming *align.Timing
	done := make(chan error)

	go func() {
		var err error
		partnerData, partnerTiming, err = runParty(partConn, lift.Partner,
			*conversions, uint32(*window), partnerKeys(partRecords),
			func(u *pid.Union) (*lift.InputData, error) {
				return partnerInput(u, partRecords)
			})
		done <- err
	}()

	publisherData, publisherTiming, err := runParty(pubConn, lift.Publisher,
		*conversions, uint32(*window), publisherKeys(pubRecords),
		func(u *pid.Union) (*lift.InputData, error) {
			return publisherInput(u, pubRecords)
		})
	if err != nil {
		log.Fatalf("publisher: %s", err)
	}
	if err := <-done; err != nil {
		log.Fatalf("partner: %s", err)
	}
	fmt.Printf("Aligned  : %d rows\n", publisherData.NumRows)

	if *timing {
		fmt.Printf("Publisher:\n")
		publisherTiming.Print(os.Stdout, pubConn.Stats)
		fmt.Printf("Partner:\n")
		partnerTiming.Print(os.Stdout, partConn.Stats)
	}

	if *reveal {
		revealed, err := lift.Combine(publisherData, partnerData)
		if err != nil {
			log.Fatal(err)
		}
		printRevealed(revealed)
	}
}

// runParty runs one party's side of the pipeline: identity match
// first, then the oblivious alignment over the same connection.
func runParty(conn *p2p.Conn, role lift.Role, conversions int, window uint32,
	keys []string, build func(*pid.Union) (*lift.InputData, error)) (
	*lift.ProcessedData, *align.Timing, error) {

	config := &env.Config{
		ConversionsPerUser: conversions,
		AttributionWindow:  window,
		Verbose:            verbose,
	}
	union, err := pid.Match(config, role, conn, keys)
	if err != nil {
		return nil, nil, err
	}
	in, err := build(union)
	if err != nil {
		return nil, nil, err
	}
	party, err := exchange.NewParty(config, role, conn)
	if err != nil {
		return nil, nil, err
	}
	proc, err := align.NewInputProcessor(config, role, in, party, party)
	if err != nil {
		return nil, nil, err
	}
	data, err := proc.Run()
	if err != nil {
		return nil, nil, err
	}
	return data, proc.Timing, nil
}

type publisherRecord struct {
	id          string
	breakdown   bool
	control     bool
	test        bool
	impressions int64
	timestamp   uint32
}

type partnerRecord struct {
	id      string
	cohort  uint32
	ts      []uint32
	values  []int64
	squared []int64
}

func publisherKeys(records []publisherRecord) []string {
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = rec.id
	}
	return keys
}

func partnerKeys(records []partnerRecord) []string {
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = rec.id
	}
	return keys
}

// publisherInput arranges the publisher records into the union row
// order, with zero values on the rows held only by the partner.
func publisherInput(union *pid.Union, records []publisherRecord) (
	*lift.InputData, error) {

	cols := lift.PublisherColumns{
		BreakdownIDs:          make([]bool, union.Rows),
		ControlPopulation:     make([]bool, union.Rows),
		TestPopulation:        make([]bool, union.Rows),
		NumImpressions:        make([]int64, union.Rows),
		OpportunityTimestamps: make([]uint32, union.Rows),
	}
	for r, pos := range union.Positions {
		if pos == pid.Unknown {
			continue
		}
		rec := records[pos]
		cols.BreakdownIDs[r] = rec.breakdown
		cols.ControlPopulation[r] = rec.control
		cols.TestPopulation[r] = rec.test
		cols.NumImpressions[r] = rec.impressions
		cols.OpportunityTimestamps[r] = rec.timestamp
	}
	return lift.NewPublisherInput(union.Rows, union.DummyRows(), cols)
}

// partnerInput arranges the partner records into the union row order.
func partnerInput(union *pid.Union, records []partnerRecord) (
	*lift.InputData, error) {

	cols := lift.PartnerColumns{
		CohortGroupIDs:        make([]uint32, union.Rows),
		PurchaseTimestamps:    make([][]uint32, union.Rows),
		PurchaseValues:        make([][]int64, union.Rows),
		PurchaseValuesSquared: make([][]int64, union.Rows),
	}
	for r, pos := range union.Positions {
		if pos == pid.Unknown {
			continue
		}
		rec := records[pos]
		cols.CohortGroupIDs[r] = rec.cohort
		cols.PurchaseTimestamps[r] = rec.ts
		cols.PurchaseValues[r] = rec.values
		cols.PurchaseValuesSquared[r] = rec.squared
	}
	return lift.NewPartnerInput(union.Rows, union.DummyRows(), cols)
}

// loadPublisher reads the publisher dataset. The file has a header
// row and the columns id, breakdown_id, control, test, impressions,
// opportunity_timestamp.
func loadPublisher(file string) ([]publisherRecord, error) {
	records, err := readCSV(file, 6)
	if err != nil {
		return nil, err
	}
	result := make([]publisherRecord, 0, len(records))
	for i, record := range records {
		row := i + 2

		rec := publisherRecord{
			id: record[0],
		}
		rec.breakdown, err = parseBool(file, row, "breakdown_id", record[1])
		if err != nil {
			return nil, err
		}
		rec.control, err = parseBool(file, row, "control", record[2])
		if err != nil {
			return nil, err
		}
		rec.test, err = parseBool(file, row, "test", record[3])
		if err != nil {
			return nil, err
		}
		rec.impressions, err = parseInt64(file, row, "impressions",
			record[4])
		if err != nil {
			return nil, err
		}
		rec.timestamp, err = parseUint32(file, row, "opportunity_timestamp",
			record[5])
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// loadPartner reads the partner dataset. The file has a header row
// and the columns id, cohort_id, purchase_timestamps, purchase_values,
// purchase_values_squared. The per-conversion columns hold
// semicolon-separated lists of equal lengths.
func loadPartner(file string) ([]partnerRecord, error) {
	records, err := readCSV(file, 5)
	if err != nil {
		return nil, err
	}
	result := make([]partnerRecord, 0, len(records))
	for i, record := range records {
		row := i + 2

		rec := partnerRecord{
			id: record[0],
		}
		rec.cohort, err = parseUint32(file, row, "cohort_id", record[1])
		if err != nil {
			return nil, err
		}
		rec.ts, err = parseUint32List(file, row, "purchase_timestamps",
			record[2])
		if err != nil {
			return nil, err
		}
		rec.values, err = parseInt64List(file, row, "purchase_values",
			record[3])
		if err != nil {
			return nil, err
		}
		rec.squared, err = parseInt64List(file, row,
			"purchase_values_squared", record[4])
		if err != nil {
			return nil, err
		}
		if len(rec.values) != len(rec.ts) ||
			len(rec.squared) != len(rec.ts) {
			return nil, fmt.Errorf(
				"%s: row %d: %d timestamps, %d values, %d squares",
				file, row, len(rec.ts), len(rec.values), len(rec.squared))
		}
		result = append(result, rec)
	}
	return result, nil
}

func readCSV(file string, columns int) ([][]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Header row.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("%s: %s", file, err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %s", file, err)
	}
	for i, record := range records {
		if len(record) != columns {
			return nil, fmt.Errorf("%s: row %d: %d columns, expected %d",
				file, i+2, len(record), columns)
		}
	}
	return records, nil
}

func parseBool(file string, row int, field, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: row %d: invalid %s: %q",
			file, row, field, value)
	}
	return v, nil
}

func parseUint32(file string, row int, field, value string) (uint32, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: row %d: invalid %s: %q",
			file, row, field, value)
	}
	return uint32(v), nil
}

func parseInt64(file string, row int, field, value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: row %d: invalid %s: %q",
			file, row, field, value)
	}
	return v, nil
}

func parseUint32List(file string, row int, field, value string) (
	[]uint32, error) {

	if len(value) == 0 {
		return nil, nil
	}
	parts := strings.Split(value, ";")
	result := make([]uint32, 0, len(parts))
	for _, part := range parts {
		v, err := parseUint32(file, row, field, part)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func parseInt64List(file string, row int, field, value string) (
	[]int64, error) {

	if len(value) == 0 {
		return nil, nil
	}
	parts := strings.Split(value, ";")
	result := make([]int64, 0, len(parts))
	for _, part := range parts {
		v, err := parseInt64(file, row, field, part)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func printRevealed(data *lift.ProcessedData) {
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Row").SetAlign(tabulate.MR)
	tab.Header("Brk")
	tab.Header("Ctl")
	tab.Header("Valid")
	tab.Header("Reach")
	tab.Header("Opp TS").SetAlign(tabulate.MR)
	tab.Header("Any")
	tab.Header("Cohort").SetAlign(tabulate.MR)
	tab.Header("Conversions (ts thr val sq)").SetAlign(tabulate.ML)

	for i := 0; i < data.NumRows; i++ {
		row := tab.Row()
		row.Column(strconv.Itoa(i))
		row.Column(mark(data.BreakdownIDs[i]))
		row.Column(mark(data.ControlPopulation[i]))
		row.Column(mark(data.IsValidOpportunityTimestamp[i]))
		row.Column(mark(data.TestReach[i]))
		row.Column(strconv.FormatUint(uint64(data.OpportunityTimestamps[i]),
			10))
		row.Column(mark(data.AnyValidPurchaseTimestamp[i]))
		row.Column(strconv.FormatUint(uint64(data.CohortGroupIDs[i]), 10))

		var convs []string
		for j := range data.PurchaseTimestamps {
			ts := data.PurchaseTimestamps[j][i]
			thr := data.ThresholdTimestamps[j][i]
			val := data.PurchaseValues[j][i]
			sq := data.PurchaseValuesSquared[j][i]
			if ts == 0 && thr == 0 && val == 0 && sq == 0 {
				continue
			}
			convs = append(convs, fmt.Sprintf("%d %d %d %d",
				ts, thr, val, sq))
		}
		row.Column(strings.Join(convs, "; "))
	}
	tab.Print(os.Stdout)
}

func mark(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
