// Package handshake implements the MariaDB/MySQL client connection phase:
// greeting parsing, capability negotiation, the optional TLS upgrade, and
// mysql_native_password challenge-response authentication (§4.2).
package handshake

// Client/server capability flags (§6). Only the bits this client negotiates
// or inspects are named; the rest of the 64-bit capability space is passed
// through untouched.
const (
	ClientLongPassword               = uint64(1) << 0
	ClientMySQL                      = uint64(1) << 0
	ClientConnectWithDB              = uint64(1) << 3
	ClientSSL                        = uint64(1) << 11
	ClientProtocol41                 = uint64(1) << 9
	ClientSecureConnection           = uint64(1) << 13
	ClientPluginAuth                 = uint64(1) << 19
	ClientConnectAttrs               = uint64(1) << 20
	ClientPluginAuthLenencClientData = uint64(1) << 21
)

// requiredClientCaps are the bits this client always advertises (§6).
const requiredClientCaps = ClientLongPassword | ClientProtocol41 | ClientSecureConnection | ClientPluginAuth

// MaxPacketSize is the login-packet max-packet-size field value (§4.2).
const MaxPacketSize = 1<<24 - 1
