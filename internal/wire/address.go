package wire

import (
	"fmt"
	"net"

	"github.com/shurlinet/radnode/internal/codec"
)

// AddressType distinguishes the four host-name shapes a gossip address can
// carry.
type AddressType uint8

const (
	AddressIPv4  AddressType = 1
	AddressIPv6  AddressType = 2
	AddressDNS   AddressType = 3
	AddressOnion AddressType = 4
)

// Address is a gossip-encoded network address: a 1-byte type, type-specific
// bytes, then a 2-byte big-endian port.
type Address struct {
	Type AddressType
	Host string // dotted IPv4 / colon IPv6 / DNS name / onion service id
	Port uint16
}

// AddressFromHostPort classifies host (an IP literal, DNS name, or
// ".onion" address) into the matching gossip Address.
func AddressFromHostPort(host string, port uint16) (Address, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return Address{Type: AddressIPv4, Host: ip.String(), Port: port}, nil
		}
		return Address{Type: AddressIPv6, Host: ip.String(), Port: port}, nil
	}
	if isOnionHost(host) {
		return Address{Type: AddressOnion, Host: host, Port: port}, nil
	}
	return Address{Type: AddressDNS, Host: host, Port: port}, nil
}

func isOnionHost(host string) bool {
	const suffix = ".onion"
	return len(host) > len(suffix) && host[len(host)-len(suffix):] == suffix
}

func (a Address) encode(w *codec.Writer) {
	w.WriteUint8(uint8(a.Type))
	switch a.Type {
	case AddressIPv4:
		ip := net.ParseIP(a.Host).To4()
		w.WriteRawBytes(ip)
	case AddressIPv6:
		ip := net.ParseIP(a.Host).To16()
		w.WriteRawBytes(ip)
	case AddressDNS, AddressOnion:
		_ = w.WriteString(a.Host)
	}
	w.WriteUint16(a.Port)
}

func decodeAddress(r *codec.Reader) (Address, error) {
	typ, err := r.ReadUint8()
	if err != nil {
		return Address{}, err
	}
	a := Address{Type: AddressType(typ)}
	switch a.Type {
	case AddressIPv4:
		b := make([]byte, 4)
		for i := range b {
			v, err := r.ReadUint8()
			if err != nil {
				return Address{}, err
			}
			b[i] = v
		}
		a.Host = net.IP(b).String()
	case AddressIPv6:
		b := make([]byte, 16)
		for i := range b {
			v, err := r.ReadUint8()
			if err != nil {
				return Address{}, err
			}
			b[i] = v
		}
		a.Host = net.IP(b).String()
	case AddressDNS, AddressOnion:
		s, err := r.ReadString()
		if err != nil {
			return Address{}, err
		}
		a.Host = s
	default:
		return Address{}, fmt.Errorf("wire: unknown address type %d", typ)
	}
	port, err := r.ReadUint16()
	if err != nil {
		return Address{}, err
	}
	a.Port = port
	return a, nil
}
