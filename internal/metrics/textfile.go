package metrics

import (
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes every metric to the configured textfile in the
// Prometheus text format, replacing the file atomically.
func (c *Collector) WriteTextfile() error {
	if c.textfile == "" {
		return errors.New("no metrics textfile configured")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return prometheus.WriteToTextfile(c.textfile, c.registry)
}

// RemoveTextfile deletes the textfile so stale values are not scraped after
// the master is gone.
func (c *Collector) RemoveTextfile() error {
	if c.textfile == "" {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := os.Remove(c.textfile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
