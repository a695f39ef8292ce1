package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/output"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Send raw events to the server",
	Long: `Send raw events to the server. Input is a JSON object, a JSON array of
objects, or newline-delimited JSON. A single object is posted to the
single-event endpoint; anything else is posted in batches.`,
	Example: `  centrallog ingest --json '{"tenant":"acme","source":"api","event_type":"login_failed","user":"bob","ip":"10.0.0.1"}'
  centrallog ingest --file events.ndjson --batch-size 1000
  cat events.json | centrallog ingest --file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		events, err := eventsFromFlags(cmd)
		if err != nil {
			return err
		}
		c := clientFor(cmd)

		if len(events) == 1 {
			ev, err := c.Ingest(cmd.Context(), events[0])
			if err != nil {
				return fmt.Errorf("failed to ingest event: %w", err)
			}
			if p.Structured() {
				return p.Data(ev)
			}
			p.Success("Stored event %d (%s/%s, tenant %s)", ev.ID, ev.Source, ev.EventType, ev.Tenant)
			return nil
		}

		size, _ := cmd.Flags().GetInt("batch-size")
		if size < 1 {
			return fmt.Errorf("--batch-size must be at least 1")
		}
		total := &ingest.BatchResult{}
		for start := 0; start < len(events); start += size {
			chunk := events[start:min(start+size, len(events))]
			res, err := c.IngestBatch(cmd.Context(), chunk)
			if err != nil {
				return fmt.Errorf("failed to ingest batch at offset %d: %w", start, err)
			}
			mergeBatch(total, res, start)
		}

		if p.Structured() {
			return p.Data(total)
		}
		printBatch(p, total)
		if total.Failed > 0 {
			return fmt.Errorf("%d of %d events rejected", total.Failed, total.Total)
		}
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Show how the server would normalize an event without storing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		events, err := eventsFromFlags(cmd)
		if err != nil {
			return err
		}
		if len(events) != 1 {
			return fmt.Errorf("normalize takes exactly one event, got %d", len(events))
		}

		rec, err := clientFor(cmd).Normalize(cmd.Context(), events[0])
		if err != nil {
			return fmt.Errorf("failed to normalize event: %w", err)
		}
		// A normalized record reads best as a document, even in table mode.
		if !p.Structured() {
			p.Format = output.FormatJSON
		}
		return p.Data(rec)
	},
}

func eventsFromFlags(cmd *cobra.Command) ([]map[string]any, error) {
	file, _ := cmd.Flags().GetString("file")
	inline, _ := cmd.Flags().GetString("json")

	switch {
	case inline != "" && file != "":
		return nil, errors.New("use either --json or --file, not both")
	case inline != "":
		return readEvents(strings.NewReader(inline))
	case file == "-":
		return readEvents(cmd.InOrStdin())
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		return readEvents(f)
	}
	return nil, errors.New("either --json or --file is required")
}

// readEvents accepts one object, an array of objects or a stream of
// objects (NDJSON). Numbers are kept as json.Number.
func readEvents(r io.Reader) ([]map[string]any, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, errors.New("no events in input")
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		var events []map[string]any
		if err := dec.Decode(&events); err != nil {
			return nil, fmt.Errorf("failed to parse event array: %w", err)
		}
		if len(events) == 0 {
			return nil, errors.New("no events in input")
		}
		return events, nil
	}

	var events []map[string]any
	for {
		var ev map[string]any
		err := dec.Decode(&ev)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse event %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsRune([]byte(" \t\r\n"), rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

// mergeBatch folds res into total, shifting item indexes by offset so they
// refer to positions in the whole input.
func mergeBatch(total, res *ingest.BatchResult, offset int) {
	total.Total += res.Total
	total.Succeeded += res.Succeeded
	total.Failed += res.Failed
	for _, r := range res.Results {
		r.Index += offset
		total.Results = append(total.Results, r)
	}
	for _, e := range res.Errors {
		e.Index += offset
		total.Errors = append(total.Errors, e)
	}
}

func printBatch(p *output.Printer, res *ingest.BatchResult) {
	if res.Failed == 0 {
		p.Success("Stored %d events", res.Succeeded)
		return
	}
	p.Warn("Stored %d of %d events", res.Succeeded, res.Total)
	t := output.NewTable("Index", "Kind", "Error")
	for _, e := range res.Errors {
		t.AddRow(strconv.Itoa(e.Index), e.Kind, e.Error)
	}
	p.Table(t)
}

func init() {
	rootCmd.AddCommand(ingestCmd, normalizeCmd)
	for _, c := range []*cobra.Command{ingestCmd, normalizeCmd} {
		c.Flags().StringP("file", "f", "", "read events from a file, - for stdin")
		c.Flags().String("json", "", "inline JSON event")
	}
	ingestCmd.Flags().Int("batch-size", 500, "events per batch request")
}
