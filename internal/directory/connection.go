/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package directory implements the object model and connection handling for
// the two directory trees that the sync engine mediates between: the internal
// OpenLDAP tree (POSIX/inetOrgPerson schema) and the external AD-compatible
// LDB tree.
package directory

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/sapcc/go-bits/logg"
)

// Conn is an abstract interface for a privileged connection to one directory
// server. In tests, this interface's real implementation can be swapped for a
// double.
type Conn interface {
	Search(goldap.SearchRequest) (*goldap.SearchResult, error)
	Add(goldap.AddRequest) error
	Modify(goldap.ModifyRequest) error
	ModifyDN(goldap.ModifyDNRequest) error
	Delete(goldap.DelRequest) error
	Close() error
}

// ConnectionOptions contains all configuration values that we need to connect
// to one directory server.
type ConnectionOptions struct {
	// URL of the server, e.g. "ldap://localhost:390". Used with a simple bind
	// as BindDN/BindPassword. Ignored if SocketPath is set.
	URL          string
	BindDN       string
	BindPassword string

	// SocketPath is the filesystem path of a local ldapi socket. The bind is
	// SASL EXTERNAL; no credentials are needed. This is how the external LDB
	// tree is reached.
	SocketPath string

	// MaxAttempts bounds the initial connection-retry loop (default 300).
	// The backing directory service may still be starting up, so acquisition
	// blocks and retries with a fixed RetryDelay (default 500ms) between
	// attempts before giving up for good.
	MaxAttempts int
	RetryDelay  time.Duration
}

func (opts ConnectionOptions) serverName() string {
	if opts.SocketPath != "" {
		return "ldapi://" + opts.SocketPath
	}
	return opts.URL
}

// DialFunc produces a connection from a single dial attempt. The package
// provides Dial as the real implementation; tests substitute their own.
type DialFunc func(ConnectionOptions) (Conn, error)

// Dial performs a single connection attempt.
func Dial(opts ConnectionOptions) (Conn, error) {
	var addr string
	if opts.SocketPath != "" {
		addr = "ldapi://" + url.PathEscape(opts.SocketPath)
	} else {
		addr = opts.URL
	}

	conn, err := goldap.DialURL(addr)
	if err != nil {
		return nil, classify("dial", opts.serverName(), err)
	}

	if opts.SocketPath != "" {
		err = conn.ExternalBind()
	} else {
		err = conn.Bind(opts.BindDN, opts.BindPassword)
	}
	if err != nil {
		conn.Close()
		return nil, classify("bind", opts.serverName(), err)
	}
	return connectionImpl{conn}, nil
}

// connectionImpl implements the Conn interface on a live go-ldap connection.
type connectionImpl struct {
	conn *goldap.Conn
}

// Search implements the Conn interface.
func (c connectionImpl) Search(req goldap.SearchRequest) (*goldap.SearchResult, error) {
	return c.conn.Search(&req)
}

// Add implements the Conn interface.
func (c connectionImpl) Add(req goldap.AddRequest) error {
	err := c.conn.Add(&req)
	if err == nil {
		logg.Info("directory object %s created", req.DN)
	}
	return err
}

// Modify implements the Conn interface.
func (c connectionImpl) Modify(req goldap.ModifyRequest) error {
	err := c.conn.Modify(&req)
	if err == nil {
		logg.Info("directory object %s updated", req.DN)
	}
	return err
}

// ModifyDN implements the Conn interface.
func (c connectionImpl) ModifyDN(req goldap.ModifyDNRequest) error {
	err := c.conn.ModifyDN(&req)
	if err == nil {
		logg.Info("directory object %s renamed to %s", req.DN, req.NewRDN)
	}
	return err
}

// Delete implements the Conn interface.
func (c connectionImpl) Delete(req goldap.DelRequest) error {
	err := c.conn.Del(&req)
	if err == nil {
		logg.Info("directory object %s deleted", req.DN)
	}
	return err
}

// Close implements the Conn interface.
func (c connectionImpl) Close() error {
	return c.conn.Close()
}

// Provider owns the process-wide connection to one directory server. The
// connection is established lazily and rechecked before use; a connection
// that fails its health check is discarded and transparently re-established,
// so callers never observe a dead connection, only the bounded retry below.
type Provider struct {
	opts    ConnectionOptions
	dial    DialFunc
	mutex   sync.Mutex
	current Conn
}

// NewProvider builds a Provider. A nil dial uses the real Dial.
func NewProvider(opts ConnectionOptions, dial DialFunc) *Provider {
	if dial == nil {
		dial = Dial
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 300
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &Provider{opts: opts, dial: dial}
}

// Conn returns a healthy connection, dialing or re-dialing as necessary.
// Acquisition blocks for up to MaxAttempts dial attempts with a fixed delay
// in between (the backing service may still be starting up); after that it
// fails with ConnectionExhausted, which is fatal and must propagate.
func (p *Provider) Conn() (Conn, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.connLocked()
}

func (p *Provider) connLocked() (Conn, error) {
	if p.current != nil {
		if p.isHealthy(p.current) {
			return p.current, nil
		}
		logg.Info("connection to %s failed its health check, reconnecting", p.opts.serverName())
		p.discardLocked()
	}

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		conn, err := p.dial(p.opts)
		if err == nil {
			logg.Info("connected to %s", p.opts.serverName())
			p.current = conn
			return conn, nil
		}
		logg.Info("cannot connect to %s (attempt %d/%d): %s",
			p.opts.serverName(), attempt, p.opts.MaxAttempts, err.Error())
		if attempt < p.opts.MaxAttempts {
			time.Sleep(p.opts.RetryDelay)
		}
	}

	return nil, makeError(ConnectionExhausted, "connect", p.opts.serverName(),
		fmt.Errorf("giving up after %d connection attempts", p.opts.MaxAttempts))
}

// The health check is a RootDSE search, the cheapest request that exercises
// the full round trip.
func (p *Provider) isHealthy(conn Conn) bool {
	req := goldap.SearchRequest{
		BaseDN:     "",
		Scope:      goldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"supportedLDAPVersion"},
	}
	_, err := conn.Search(req)
	return err == nil
}

// Recycle discards the current connection so that the next operation dials a
// fresh one.
func (p *Provider) Recycle() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.discardLocked()
}

func (p *Provider) discardLocked() {
	if p.current != nil {
		p.current.Close()
		p.current = nil
	}
}

// Do runs the operation on a healthy connection. A ConnectionFailure triggers
// exactly one reconnect-and-retry cycle; every other error (and a failure of
// the retry itself) is returned as-is.
func (p *Provider) Do(op func(Conn) error) error {
	conn, err := p.Conn()
	if err != nil {
		return err
	}
	err = op(conn)
	if !IsKind(err, ConnectionFailure) {
		return err
	}

	logg.Info("retrying operation against %s after connection failure", p.opts.serverName())
	p.Recycle()
	conn, connErr := p.Conn()
	if connErr != nil {
		return connErr
	}
	return op(conn)
}
