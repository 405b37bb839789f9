package jsdrv

// Contain the ClientUpdater object, which publishes JSON-encoded messages
// giving the latest driver state.

import (
	"encoding/json"
	"fmt"
	"log"

	zmq "github.com/pebbe/zmq4"
)

// ClientUpdate carries the messages to be published on the status port.
type ClientUpdate struct {
	tag   string
	state interface{}
}

// clientMessageChan is the package-wide channel on which status updates are
// queued for publication.
var clientMessageChan = make(chan ClientUpdate, 10)

// RunClientUpdater publishes messages from clientMessageChan on the ZMQ
// status port until abort is closed. Each message is a 2-frame packet: the
// update tag, then the JSON-encoded state.
func RunClientUpdater(portstatus int, abort <-chan struct{}) {
	hostname := fmt.Sprintf("tcp://*:%d", portstatus)
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		log.Printf("could not create status socket: %v", err)
		return
	}
	defer pubSocket.Close()
	if err := pubSocket.Bind(hostname); err != nil {
		log.Printf("could not bind status socket to %s: %v", hostname, err)
		return
	}

	for {
		select {
		case <-abort:
			return
		case update := <-clientMessageChan:
			message, err := json.Marshal(update.state)
			if err != nil {
				ProblemLogger.Printf("could not JSON-encode status update %q: %v", update.tag, err)
				continue
			}
			UpdateLogger.Printf("%s: %s", update.tag, message)
			if _, err := pubSocket.SendBytes([]byte(update.tag), zmq.SNDMORE); err != nil {
				ProblemLogger.Printf("could not send status tag frame: %v", err)
				continue
			}
			if _, err := pubSocket.SendBytes(message, 0); err != nil {
				ProblemLogger.Printf("could not send status message frame: %v", err)
			}
		}
	}
}
