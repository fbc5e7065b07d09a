package config

import (
	"crypto/tls"
	"net"

	"github.com/skymond-software/mariadb-client/internal/handshake"
	"github.com/skymond-software/mariadb-client/internal/mariadb"
)

// DatabaseConfig resolves c into the mariadb.Config NewDatabase needs:
// parses the §6 host syntax, decides whether to attempt a TLS upgrade, and
// carries over every pool/credential knob.
func (c Config) DatabaseConfig() (mariadb.Config, error) {
	address, useTLS, err := ParseAddress(c.Address)
	if err != nil {
		return mariadb.Config{}, err
	}

	login := handshake.Config{
		Username: c.Username,
		Password: c.Password,
		HashKind: c.ResolvedHashKind(),
		Database: c.Database,
	}
	if useTLS {
		serverName, _, splitErr := net.SplitHostPort(address)
		if splitErr != nil {
			serverName = address
		}
		login.TLSConfig = &tls.Config{ServerName: serverName}
	}

	return mariadb.Config{
		Address:        address,
		DialTimeout:    c.Pool.DialTimeout,
		Login:          login,
		MinSessions:    c.Pool.MinSessions,
		MaxSessions:    c.Pool.MaxSessions,
		IdleTimeout:    c.Pool.IdleTimeout,
		MaxLifetime:    c.Pool.MaxLifetime,
		AcquireTimeout: c.Pool.AcquireTimeout,
		InstanceSuffix: c.InstanceSuffix,
	}, nil
}
