package history

// MultiWriter fans out rows to several sinks. Write errors from individual
// sinks do not stop the others; the last error is returned.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter combines writers into one sink. Nil entries are skipped.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write sends the row to all sinks.
func (m *MultiWriter) Write(row Row) error {
	var last error
	for _, w := range m.writers {
		if err := w.Write(row); err != nil {
			last = err
		}
	}
	return last
}

// WriteBatch sends the rows to all sinks, using batch mode where supported.
func (m *MultiWriter) WriteBatch(rows []Row) error {
	var last error
	for _, w := range m.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				last = err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				last = err
			}
		}
	}
	return last
}
