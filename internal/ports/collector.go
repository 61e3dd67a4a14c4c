package ports

// Collector streams newline-delimited text from an acquisition source
// (serial device, simulator, file replay) into the pipeline. Implementations
// own the connection and must close out when the stream terminates.
type Collector interface {
	Start(out chan<- string) error
	Stop() error
}
