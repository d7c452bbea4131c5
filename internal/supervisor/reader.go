package supervisor

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/Dave93/velos/internal/logring"
)

const maxLineSize = 1 << 20

// readStream scans one pipe line by line into the process ring, classifying
// severity per line, and mirrors raw lines to the file writer when one is
// configured. It runs until the pipe closes.
func readStream(ring *logring.Ring, stream logring.Stream, r io.ReadCloser, mirror io.Writer, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		if ring != nil {
			ring.Append(logring.Entry{
				Time:    time.Now(),
				Level:   logring.Classify(line),
				Stream:  stream,
				Message: line,
			})
		}
		if mirror != nil {
			_, _ = io.WriteString(mirror, line+"\n")
		}
	}
}
