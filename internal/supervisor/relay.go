package supervisor

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Merge reads stdout and stderr line by line and delivers both on one
// channel. Order is preserved within each stream; interleaving between the
// two follows arrival. The channel closes once both readers hit EOF.
func Merge(stdout, stderr io.Reader) <-chan OutputEvent {
	events := make(chan OutputEvent, 64)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLines(stdout, Stdout, events)
	}()
	go func() {
		defer wg.Done()
		readLines(stderr, Stderr, events)
	}()
	go func() {
		wg.Wait()
		close(events)
	}()

	return events
}

// readLines emits one event per line read from r, including a trailing
// partial line at EOF
func readLines(r io.Reader, stream Stream, out chan<- OutputEvent) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			out <- OutputEvent{Stream: stream, Line: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			return
		}
	}
}

// Relay writes every event to sink as one line, without any stream marker,
// until events is closed. observe, if set, sees each event before it is
// written.
func Relay(events <-chan OutputEvent, sink io.Writer, observe func(OutputEvent)) {
	for ev := range events {
		if observe != nil {
			observe(ev)
		}
		io.WriteString(sink, ev.Line+"\n")
	}
}
