package rpc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

var errCookieMalformed = errors.New("rpc: cookie file is not in user:password form")

// Credentials holds transient RPC secrets. The byte slices are overwritten by
// Zero once the basic-auth header has been derived, so the plaintext password
// does not outlive client construction.
type Credentials struct {
	user []byte
	pass []byte
}

// NewCredentials builds credentials from a username/password pair.
func NewCredentials(user, pass string) *Credentials {
	return &Credentials{user: []byte(user), pass: []byte(pass)}
}

// CredentialsFromCookie reads a bitcoind cookie file (written as
// "__cookie__:<random>") and returns the contained credentials. The raw file
// contents are zeroed before returning.
func CredentialsFromCookie(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rpc: read cookie file: %w", err)
	}
	defer zeroBytes(raw)

	line := bytes.TrimRight(raw, "\r\n")
	idx := bytes.IndexByte(line, ':')
	if idx <= 0 || idx == len(line)-1 {
		return nil, errCookieMalformed
	}
	creds := &Credentials{
		user: append([]byte(nil), line[:idx]...),
		pass: append([]byte(nil), line[idx+1:]...),
	}
	return creds, nil
}

// User returns the username. Valid only before Zero is called.
func (c *Credentials) User() string {
	if c == nil {
		return ""
	}
	return string(c.user)
}

// basicAuthHeader derives the Authorization header value.
func (c *Credentials) basicAuthHeader() string {
	if c == nil || (len(c.user) == 0 && len(c.pass) == 0) {
		return ""
	}
	pair := make([]byte, 0, len(c.user)+1+len(c.pass))
	pair = append(pair, c.user...)
	pair = append(pair, ':')
	pair = append(pair, c.pass...)
	defer zeroBytes(pair)
	return "Basic " + base64.StdEncoding.EncodeToString(pair)
}

// Zero overwrites the stored secrets. Safe to call repeatedly.
func (c *Credentials) Zero() {
	if c == nil {
		return
	}
	zeroBytes(c.user)
	zeroBytes(c.pass)
	c.user = nil
	c.pass = nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// redactHost strips userinfo from a host string before it reaches logs.
func redactHost(host string) string {
	if at := strings.LastIndexByte(host, '@'); at >= 0 {
		return host[at+1:]
	}
	return host
}
