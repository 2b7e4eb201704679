package commands

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/log"
)

// RunExport writes the log file in format ("jsonl" or "csv") to output,
// or to stdout when output is empty.
func RunExport(path, format, output string, stdout io.Writer) error {
	if format != "jsonl" && format != "csv" {
		return errors.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	defer reader.Close()

	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read event")
		}
		if err := encoder.Encode(event); err != nil {
			return errors.Wrap(err, "failed to encode event")
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "remote_addr", "type", "seq", "size"}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to read event")
		}

		var seq, size string
		switch {
		case event.Frame != nil:
			size = strconv.Itoa(event.Frame.Size)
		case event.Record != nil:
			seq = strconv.FormatUint(event.Record.Seq, 10)
			size = strconv.Itoa(event.Record.Length)
		case event.Handshake != nil:
			seq = strconv.Itoa(int(event.Handshake.MessageSeq))
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.RemoteAddr,
			typeLabel(event),
			seq,
			size,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "failed to write row")
		}
	}
	cw.Flush()
	return cw.Error()
}
