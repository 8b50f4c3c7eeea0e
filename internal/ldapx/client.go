// Package ldapx wraps the go-ldap client behind the narrow surface the
// scrapers need: connect, bind, paged search, base detection.
package ldapx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
)

const (
	// AttrUnknown is substituted for attributes missing from an entry.
	AttrUnknown = "UNKNOWN"

	defaultURI      = "ldap://localhost"
	defaultPageSize = 999
)

// Bind holds simple-bind credentials.
type Bind struct {
	DN       string `mapstructure:"dn" validate:"required"`
	Password string `mapstructure:"pass" validate:"required"`
}

// Config describes how to reach one directory server.
type Config struct {
	URI         string `mapstructure:"ldap_uri"`
	VerifyCerts *bool  `mapstructure:"verify_certs"`
	PageSize    uint32 `mapstructure:"page_size"`
	DefaultBase string `mapstructure:"default_query_base"`
	Bind        *Bind  `mapstructure:"bind"`
}

func (c Config) uri() string {
	if c.URI == "" {
		return defaultURI
	}
	return c.URI
}

func (c Config) pageSize() uint32 {
	if c.PageSize == 0 {
		return defaultPageSize
	}
	return c.PageSize
}

func (c Config) verifyCerts() bool {
	return c.VerifyCerts == nil || *c.VerifyCerts
}

// Entry is one directory entry: a DN and attribute name to ordered values.
type Entry struct {
	DN    string
	Attrs map[string][]string
}

// GetAttr returns the first value of attr, or AttrUnknown when absent.
func GetAttr(e Entry, attr string) string {
	if vals := e.Attrs[attr]; len(vals) > 0 {
		return vals[0]
	}
	return AttrUnknown
}

// Client is a bound connection to one directory server.
type Client struct {
	conn     *ldap.Conn
	pageSize uint32
}

// Connect dials the configured URI and performs a simple bind when
// credentials are present. The context deadline, if any, becomes the
// per-operation network timeout.
func (c Config) Connect(ctx context.Context) (*Client, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: !c.verifyCerts()} // #nosec G402 -- operator opt-in
	conn, err := ldap.DialURL(c.uri(), ldap.DialWithTLSConfig(tlsCfg))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.uri(), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			conn.SetTimeout(remaining)
		}
	}

	if c.Bind != nil {
		if err := conn.Bind(c.Bind.DN, c.Bind.Password); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind as %s: %w", c.Bind.DN, err)
		}
	}

	return &Client{conn: conn, pageSize: c.pageSize()}, nil
}

// Close terminates the connection. Safe on a nil client.
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
	}
}

func convertEntries(in []*ldap.Entry) []Entry {
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		attrs := make(map[string][]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.Name] = a.Values
		}
		out = append(out, Entry{DN: e.DN, Attrs: attrs})
	}
	return out
}

// Search runs a search, paging subtree scans so unbounded result sets stream
// in pages instead of hitting the server-side size limit.
func (c *Client) Search(ctx context.Context, base string, scope int, filter string, attrs []string) ([]Entry, error) {
	entries, _, err := c.SearchLimited(ctx, base, scope, filter, attrs, 0)
	return entries, err
}

// SearchLimited is Search with an optional server-side size limit (0 means
// unlimited) for capped custom queries. The second return is the protocol
// result code of the search, so a capped read reports size-limit-exceeded
// even though the partial page comes back without an error.
func (c *Client) SearchLimited(ctx context.Context, base string, scope int, filter string, attrs []string, sizeLimit int) ([]Entry, uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, ldap.LDAPResultOther, err
	}

	req := ldap.NewSearchRequest(
		base, scope, ldap.NeverDerefAliases, sizeLimit, 0, false,
		filter, attrs, nil,
	)

	var (
		res *ldap.SearchResult
		err error
	)
	if scope == ldap.ScopeWholeSubtree && sizeLimit == 0 && c.pageSize > 0 {
		res, err = c.conn.SearchWithPaging(req, c.pageSize)
	} else {
		res, err = c.conn.Search(req)
	}
	return finishSearch(res, err, base, filter)
}

// finishSearch folds a raw search outcome into entries plus result code. A
// size-limit hit still carries the partial page; it is reported as a
// successful capped read with its own result code.
func finishSearch(res *ldap.SearchResult, err error, base, filter string) ([]Entry, uint16, error) {
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && res != nil {
			return convertEntries(res.Entries), uint16(ldap.LDAPResultSizeLimitExceeded), nil
		}
		return nil, ResultCode(err), fmt.Errorf("search %q under %q: %w", filter, base, err)
	}
	return convertEntries(res.Entries), ldap.LDAPResultSuccess, nil
}

// ResultCode extracts the protocol result code from a search error, or 0 for
// success / non-protocol failures.
func ResultCode(err error) uint16 {
	if err == nil {
		return ldap.LDAPResultSuccess
	}
	var lerr *ldap.Error
	if errors.As(err, &lerr) {
		return uint16(lerr.ResultCode)
	}
	return ldap.LDAPResultOther
}

// DetectBase reads the first namingContexts value from the root DSE. Used at
// startup when no default base is configured.
func DetectBase(ctx context.Context, cfg Config) (string, error) {
	client, err := cfg.Connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	entries, err := client.Search(ctx, "", ldap.ScopeBaseObject, "(objectClass=*)", []string{"namingContexts"})
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot retrieve naming contexts")
	}
	contexts := entries[0].Attrs["namingContexts"]
	if len(contexts) == 0 {
		return "", fmt.Errorf("no namingContexts attribute on the root DSE")
	}
	return contexts[0], nil
}
