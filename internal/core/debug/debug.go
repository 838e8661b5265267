package debug

import (
	"encoding/hex"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/packets"
)

var packetDumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// StartPprofServer starts the default pprof HTTP server that can be accessed via
// localhost to get runtime information about the server.
// See https://golang.org/pkg/net/http/pprof/
func StartPprofServer(logger logrus.FieldLogger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Errorf("error starting pprof server: %s", err)
		}
	}()
}

// PrintFrame writes a hex dump of a raw frame received from addr.
func PrintFrame(logger logrus.FieldLogger, addr string, frame *packets.Frame) {
	logger.WithFields(logrus.Fields{
		"peer":   addr,
		"id":     fmt.Sprintf("0x%02x", frame.ID),
		"length": frame.Length,
	}).Debugf("frame from client:\n%s", hex.Dump(frame.Payload))
}

// PrintPacket writes the decoded contents of a packet exchanged with addr.
func PrintPacket(logger logrus.FieldLogger, addr string, fromClient bool, pkt interface{}) {
	direction := "server -> client"
	if fromClient {
		direction = "client -> server"
	}

	logger.WithField("peer", addr).Debugf("%s %s", direction, packetDumper.Sdump(pkt))
}
