package rcon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"
)

const (
	packetIDBadAuth       = -1
	payloadMaxSize        = 1460
	serverdataAuth        = 3
	serverdataExeccommand = 2

	dialTimeout = 10 * time.Second
)

// ErrAuthFailed is returned when the server rejects the RCON password.
var ErrAuthFailed = errors.New("rcon: authentication unsuccessful")

type payload struct {
	packetID   int32  // 4 bytes
	packetType int32  // 4 bytes
	packetBody []byte // varies
}

// Both requests and responses are TCP packets with this layout:
// Size     32-bit little-endian signed integer
// ID       32-bit little-endian signed integer
// Type     32-bit little-endian signed integer
// Body     null-terminated ASCII string
// 2-byte pad
func (p *payload) size() int32 {
	return int32(len(p.packetBody) + 4 + 4 + 2)
}

// Client speaks the Valve Source RCON protocol against a running game
// server. See https://developer.valvesoftware.com/wiki/Source_RCON_Protocol
type Client struct {
	conn net.Conn
}

// Dial opens a connection to the server's RCON port and authenticates with
// the given password. One Client carries one authenticated session.
func Dial(host string, port int, password string) (*Client, error) {
	address := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("rcon: dial %s: %w", address, err)
	}

	c := &Client{conn: conn}
	if _, err := c.roundTrip(newPayload(serverdataAuth, password)); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Run issues one administrative command over the authenticated session and
// returns the server's textual response.
func (c *Client) Run(command string) (string, error) {
	response, err := c.roundTrip(newPayload(serverdataExeccommand, command))
	if err != nil {
		return "", err
	}
	body := bytes.Trim(response.packetBody, "\x00")
	return strings.TrimSpace(string(body)), nil
}

// Close tears down the session.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SetDeadline bounds all subsequent reads and writes on the session.
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Client) roundTrip(request *payload) (*payload, error) {
	packet, err := encodePacket(request)
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(packet); err != nil {
		return nil, fmt.Errorf("rcon: write packet: %w", err)
	}
	response, err := decodePacket(c.conn)
	if err != nil {
		return nil, err
	}
	if response.packetID == packetIDBadAuth {
		return nil, ErrAuthFailed
	}
	return response, nil
}

func newPayload(packetType int, body string) *payload {
	return &payload{
		packetID:   rand.Int31(),
		packetType: int32(packetType),
		packetBody: []byte(body),
	}
}

func encodePacket(p *payload) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range []interface{}{
		p.size(),
		p.packetID,
		p.packetType,
		p.packetBody,
		[]byte{0, 0}, // pad
	} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("rcon: encode packet: %w", err)
		}
	}
	if buf.Len() >= payloadMaxSize {
		return nil, fmt.Errorf("rcon: payload exceeded maximum allowed size of %d", payloadMaxSize)
	}
	return buf.Bytes(), nil
}

func decodePacket(r io.Reader) (*payload, error) {
	var packetLength int32
	if err := binary.Read(r, binary.LittleEndian, &packetLength); err != nil {
		return nil, fmt.Errorf("rcon: read packet length: %w", err)
	}
	if packetLength < 4+4+2 {
		return nil, errors.New("rcon: packet too short")
	}
	buf := make([]byte, packetLength)
	if err := binary.Read(r, binary.LittleEndian, &buf); err != nil {
		return nil, fmt.Errorf("rcon: read packet body: %w", err)
	}
	p := new(payload)
	p.packetID = int32(binary.LittleEndian.Uint32(buf[:4]))
	p.packetType = int32(binary.LittleEndian.Uint32(buf[4:8]))
	p.packetBody = buf[8 : packetLength-2]
	return p, nil
}
