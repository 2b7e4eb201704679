package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/log"
)

// FilterOptions holds the selection flags shared by view and filter.
// Empty fields match everything.
type FilterOptions struct {
	ConnID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// Build parses the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{ConnectionID: o.ConnID}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, errors.Wrap(err, "invalid time-start format")
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, errors.Wrap(err, "invalid time-end format")
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := parseLayer(o.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// RunFilter copies the events of path matching filter to a new log file
// at output and reports the count on w.
func RunFilter(path, output string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return errors.Wrap(err, "failed to create output logger")
	}

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = logger.Close()
			return errors.Wrap(err, "failed to read event")
		}
		logger.Log(event)
		count++
	}

	failed := logger.Failed()
	if err := logger.Close(); err != nil {
		return errors.Wrap(err, "failed to close output")
	}
	if failed > 0 {
		return errors.Errorf("%d events could not be written to %s", failed, output)
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
