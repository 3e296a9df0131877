package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// errStreamDone is returned once the server sends the [DONE] marker.
var errStreamDone = errors.New("stream done")

// eventDecoder reads server-sent events. Only data lines are kept; a blank
// line ends an event.
type eventDecoder struct {
	r *bufio.Reader
}

func newEventDecoder(r io.Reader) *eventDecoder {
	return &eventDecoder{r: bufio.NewReader(r)}
}

// Next returns the data of the next event. It returns errStreamDone on the
// end marker and io.EOF if the body ends without one.
func (d *eventDecoder) Next() ([]byte, error) {
	var data []byte
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				return data, nil
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(data) > 0 {
				return data, nil
			}
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			// event:, id:, retry: and ":" comments carry nothing we use
			continue
		}
		chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if chunk == "[DONE]" {
			return nil, errStreamDone
		}
		if len(data) > 0 {
			data = append(data, '\n')
		}
		data = append(data, chunk...)
	}
}
