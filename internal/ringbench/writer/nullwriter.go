package writer

import "time"

// NopWriter discards every row. Used when CSV export is disabled.
type NopWriter struct{}

func (NopWriter) WriteRow(chainLen int, rssi int8, trial int, result string, elapsed time.Duration, hopCount int) error {
	return nil
}

func (NopWriter) Flush() error { return nil }
func (NopWriter) Close() error { return nil }
