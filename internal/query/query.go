// Package query executes operator-defined directory searches and derives
// volume, timing and content-integrity figures from the results.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dirsrv-monitor/internal/ldapx"
)

// Query is one operator-defined search. The connection fields override the
// process-wide directory config so a single catalog can span hosts.
type Query struct {
	Name       string   `mapstructure:"name" validate:"required"`
	Filter     string   `mapstructure:"filter" validate:"required"`
	Attrs      []string `mapstructure:"attrs"`
	MaxEntries int      `mapstructure:"max_entries" validate:"gte=0"`

	URI         string      `mapstructure:"uri"`
	PageSize    uint32      `mapstructure:"page_size"`
	DefaultBase string      `mapstructure:"default_base"`
	Bind        *ldapx.Bind `mapstructure:"bind"`
	VerifyCerts *bool       `mapstructure:"verify_certs"`
}

// Result is the outcome of one query execution. Never mutated after
// construction.
type Result struct {
	// ObjectCount is the number of returned entries.
	ObjectCount uint64
	// AttrCount is the number of distinct (entry, attribute) pairs.
	AttrCount uint64
	// Bytes is the total size of all returned attribute values.
	Bytes uint64
	// Elapsed is the wall time of the search.
	Elapsed time.Duration
	// LDAPCode is the final protocol result code.
	LDAPCode uint16
	// Checksum is the order-independent content digest.
	Checksum string
}

// config resolves the effective connection settings for this query.
func (q Query) config(base ldapx.Config) ldapx.Config {
	if q.URI != "" {
		base.URI = q.URI
	}
	if q.PageSize != 0 {
		base.PageSize = q.PageSize
	}
	if q.DefaultBase != "" {
		base.DefaultBase = q.DefaultBase
	}
	if q.Bind != nil {
		base.Bind = q.Bind
	}
	if q.VerifyCerts != nil {
		base.VerifyCerts = q.VerifyCerts
	}
	return base
}

// checksumEntries digests entries independent of the order the server
// returned them: each attribute's values are sorted, attributes are sorted
// by name within an entry, and entries are sorted by DN before hashing.
func checksumEntries(entries []ldapx.Entry) (string, error) {
	type dnBlob struct {
		dn   string
		blob []byte
	}

	blobs := make([]dnBlob, 0, len(entries))
	for _, entry := range entries {
		names := make([]string, 0, len(entry.Attrs))
		for name := range entry.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)

		pairs := make([][]any, 0, len(names))
		for _, name := range names {
			values := append([]string(nil), entry.Attrs[name]...)
			sort.Strings(values)
			pairs = append(pairs, []any{name, values})
		}

		blob, err := json.Marshal(pairs)
		if err != nil {
			return "", fmt.Errorf("serializing entry %s: %w", entry.DN, err)
		}
		blobs = append(blobs, dnBlob{dn: entry.DN, blob: blob})
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].dn < blobs[j].dn })

	hasher := sha256.New()
	for _, b := range blobs {
		hasher.Write(b.blob)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Execute runs the query against the resolved host and computes its Result.
func (q Query) Execute(ctx context.Context, base ldapx.Config) (*Result, error) {
	cfg := q.config(base)

	client, err := cfg.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	start := time.Now()
	entries, code, err := client.SearchLimited(ctx, cfg.DefaultBase, ldap.ScopeWholeSubtree, q.Filter, q.Attrs, q.MaxEntries)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ObjectCount: uint64(len(entries)),
		Elapsed:     elapsed,
		LDAPCode:    code,
	}
	for _, entry := range entries {
		result.AttrCount += uint64(len(entry.Attrs))
		for _, values := range entry.Attrs {
			for _, v := range values {
				result.Bytes += uint64(len(v))
			}
		}
	}

	checksum, err := checksumEntries(entries)
	if err != nil {
		return nil, err
	}
	result.Checksum = checksum

	return result, nil
}

// Checks selects which dimensions of an integrity comparison count as
// failures. Each dimension toggles independently.
type Checks struct {
	Checksum    bool
	ObjectCount bool
	AttrCount   bool
	Bytes       bool
}

// Diff reports, per dimension, whether two hosts disagreed.
type Diff struct {
	Local, Remote *Result

	ChecksumMismatch    bool
	ObjectCountMismatch bool
	AttrCountMismatch   bool
	BytesMismatch       bool
}

// Failed reports whether any enabled dimension mismatched.
func (d Diff) Failed(checks Checks) bool {
	return (checks.Checksum && d.ChecksumMismatch) ||
		(checks.ObjectCount && d.ObjectCountMismatch) ||
		(checks.AttrCount && d.AttrCountMismatch) ||
		(checks.Bytes && d.BytesMismatch)
}

// CompareHosts runs the same query against the configured host and
// remoteURI concurrently and diffs the results dimension by dimension.
func CompareHosts(ctx context.Context, q Query, base ldapx.Config, remoteURI string) (*Diff, error) {
	remoteCfg := base
	remoteCfg.URI = remoteURI

	var local, remote *Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = q.Execute(gctx, base)
		return err
	})
	g.Go(func() error {
		var err error
		remote, err = q.Execute(gctx, remoteCfg)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Diff{
		Local:               local,
		Remote:              remote,
		ChecksumMismatch:    local.Checksum != remote.Checksum,
		ObjectCountMismatch: local.ObjectCount != remote.ObjectCount,
		AttrCountMismatch:   local.AttrCount != remote.AttrCount,
		BytesMismatch:       local.Bytes != remote.Bytes,
	}, nil
}
