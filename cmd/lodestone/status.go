package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcrodman/lodestone/internal/core/client"
	"github.com/dcrodman/lodestone/internal/packets"
)

const (
	defaultStatusTimeout   = 5 * time.Second
	defaultProtocolVersion = packets.ProtocolVersion
)

var (
	TimeoutFlag  time.Duration
	ProtocolFlag int32
)

var statusCmd = &cobra.Command{
	Use:   "status <host[:port]>",
	Short: "Pings a server the way the multiplayer server list does",
	Args:  cobra.ExactArgs(1),
	RunE:  StatusCommand,
}

func StatusCommand(_ *cobra.Command, args []string) error {
	host, port, err := splitAddress(args[0])
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))), TimeoutFlag)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", args[0], err)
	}
	if err := conn.SetDeadline(time.Now().Add(TimeoutFlag)); err != nil {
		return err
	}
	server := client.NewClient(conn)
	defer server.Close()

	if err := server.Send(&packets.Handshake{
		ProtocolVersion: ProtocolFlag,
		ServerAddress:   host,
		ServerPort:      port,
		NextState:       packets.StateStatus,
	}); err != nil {
		return err
	}
	if err := server.Send(&packets.StatusRequest{}); err != nil {
		return err
	}

	var resp packets.StatusResponse
	if err := server.ReadPacket(packets.StatusResponseType, &resp); err != nil {
		return fmt.Errorf("error reading status response: %w", err)
	}

	sent := time.Now()
	ping := &packets.Ping{Payload: rand.Int63()}
	if err := server.Send(ping); err != nil {
		return err
	}
	var pong packets.Pong
	if err := server.ReadPacket(packets.PongType, &pong); err != nil {
		return fmt.Errorf("error reading pong: %w", err)
	}
	if pong.Payload != ping.Payload {
		return fmt.Errorf("pong payload %d does not match ping %d", pong.Payload, ping.Payload)
	}

	out, err := json.MarshalIndent(&resp.Status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	fmt.Printf("latency: %v\n", time.Since(sent).Round(time.Millisecond))
	return nil
}

// splitAddress parses host[:port], defaulting to the standard game port.
func splitAddress(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		return addr, 25565, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, uint16(port), nil
}
