package filestore

import (
	"maps"

	"github.com/tutu-network/econ/internal/domain"
)

// tx overlays writes on top of the committed snapshot.
type tx struct {
	base     *snapshot
	accounts map[string]domain.Account
	clans    map[string]domain.Clan
	deleted  map[string]bool
	records  []domain.TransactionRecord
	requests map[string]domain.RequestRecord
}

func newTx(base *snapshot) *tx {
	return &tx{
		base:     base,
		accounts: make(map[string]domain.Account),
		clans:    make(map[string]domain.Clan),
		deleted:  make(map[string]bool),
		requests: make(map[string]domain.RequestRecord),
	}
}

func (t *tx) Account(userID string) (domain.Account, error) {
	if a, ok := t.accounts[userID]; ok {
		return a.Clone(), nil
	}
	if a, ok := t.base.Accounts[userID]; ok {
		return a.Clone(), nil
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

func (t *tx) PutAccount(acct domain.Account) error {
	cur, err := t.Account(acct.UserID)
	switch {
	case err == nil && cur.Version != acct.Version:
		return domain.ErrConflict
	case err != nil && acct.Version != 0:
		return domain.ErrConflict
	}
	stored := acct.Clone()
	stored.Version = acct.Version + 1
	t.accounts[acct.UserID] = stored
	return nil
}

func (t *tx) AppendRecord(rec domain.TransactionRecord) error {
	t.records = append(t.records, rec)
	return nil
}

func (t *tx) ClanByID(id string) (domain.Clan, error) {
	if t.deleted[id] {
		return domain.Clan{}, domain.ErrClanNotFound
	}
	if c, ok := t.clans[id]; ok {
		return c.Clone(), nil
	}
	if c, ok := t.base.Clans[id]; ok {
		return c.Clone(), nil
	}
	return domain.Clan{}, domain.ErrClanNotFound
}

func (t *tx) ClanByName(name string) (domain.Clan, error) {
	key := domain.ClanKey(name)
	for id := range t.clanIDs() {
		c, err := t.ClanByID(id)
		if err == nil && domain.ClanKey(c.Name) == key {
			return c, nil
		}
	}
	return domain.Clan{}, domain.ErrClanNotFound
}

func (t *tx) clanIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(t.base.Clans)+len(t.clans))
	for id := range t.base.Clans {
		ids[id] = struct{}{}
	}
	for id := range t.clans {
		ids[id] = struct{}{}
	}
	return ids
}

func (t *tx) PutClan(clan domain.Clan) error {
	if other, err := t.ClanByName(clan.Name); err == nil && other.ID != clan.ID {
		return domain.ErrDuplicateName
	}
	cur, err := t.ClanByID(clan.ID)
	switch {
	case err == nil && cur.Version != clan.Version:
		return domain.ErrConflict
	case err != nil && clan.Version != 0:
		return domain.ErrConflict
	}
	stored := clan.Clone()
	stored.Version = clan.Version + 1
	t.clans[clan.ID] = stored
	delete(t.deleted, clan.ID)
	return nil
}

func (t *tx) DeleteClan(id string) error {
	if _, err := t.ClanByID(id); err != nil {
		return err
	}
	delete(t.clans, id)
	t.deleted[id] = true
	return nil
}

func (t *tx) Request(id string) (domain.RequestRecord, bool, error) {
	if r, ok := t.requests[id]; ok {
		return r, true, nil
	}
	r, ok := t.base.Requests[id]
	return r, ok, nil
}

func (t *tx) PutRequest(rec domain.RequestRecord) error {
	t.requests[rec.ID] = rec
	return nil
}

// merge builds the next committed snapshot. The base is left untouched so a
// failed file write keeps the old state.
func (t *tx) merge() *snapshot {
	next := &snapshot{
		Accounts: maps.Clone(t.base.Accounts),
		Clans:    maps.Clone(t.base.Clans),
		Requests: maps.Clone(t.base.Requests),
	}
	maps.Copy(next.Accounts, t.accounts)
	maps.Copy(next.Clans, t.clans)
	for id := range t.deleted {
		delete(next.Clans, id)
	}
	maps.Copy(next.Requests, t.requests)
	next.Records = make([]domain.TransactionRecord, 0, len(t.base.Records)+len(t.records))
	next.Records = append(next.Records, t.base.Records...)
	next.Records = append(next.Records, t.records...)
	return next
}
