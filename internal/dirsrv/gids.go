package dirsrv

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dirsrv-monitor/internal/ldapx"
)

const (
	attrUID       = "uid"
	attrGIDNumber = "gidNumber"
)

type posixAccount struct {
	dn        string
	uid       string
	gidNumber int64
}

func loadAccounts(ctx context.Context, cfg ldapx.Config) ([]posixAccount, error) {
	client, err := cfg.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	entries, err := client.Search(ctx, cfg.DefaultBase, ldap.ScopeWholeSubtree,
		"(objectClass=posixAccount)", []string{attrGIDNumber, attrUID})
	if err != nil {
		return nil, err
	}

	accounts := make([]posixAccount, 0, len(entries))
	for _, entry := range entries {
		gid, err := strconv.ParseInt(ldapx.GetAttr(entry, attrGIDNumber), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("account %s: gidNumber: %w", entry.DN, err)
		}
		accounts = append(accounts, posixAccount{
			dn:        entry.DN,
			uid:       ldapx.GetAttr(entry, attrUID),
			gidNumber: gid,
		})
	}
	return accounts, nil
}

func loadGroupGids(ctx context.Context, cfg ldapx.Config) (map[int64]struct{}, error) {
	client, err := cfg.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	entries, err := client.Search(ctx, cfg.DefaultBase, ldap.ScopeWholeSubtree,
		"(objectClass=posixGroup)", []string{attrGIDNumber})
	if err != nil {
		return nil, err
	}

	gids := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		gid, err := strconv.ParseInt(ldapx.GetAttr(entry, attrGIDNumber), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("group %s: gidNumber: %w", entry.DN, err)
		}
		gids[gid] = struct{}{}
	}
	return gids, nil
}

// MissingGids maps each primary gid with no matching posixGroup to the
// number of accounts referencing it. Accounts and groups load concurrently
// over separate connections.
func MissingGids(ctx context.Context, cfg ldapx.Config) (map[int64]uint64, error) {
	var (
		accounts []posixAccount
		groups   map[int64]struct{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = loadAccounts(gctx, cfg)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = loadGroupGids(gctx, cfg)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	missing := make(map[int64]uint64)
	for _, account := range accounts {
		if _, ok := groups[account.gidNumber]; !ok {
			missing[account.gidNumber]++
		}
	}
	return missing, nil
}
