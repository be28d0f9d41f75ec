package store

import (
	"errors"
	"sort"

	"github.com/atmx/arena-escrow/internal/model"
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func sortPools(ps []model.Pool) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].MatchID < ps[j].MatchID })
}

func sortReceipts(rs []model.Receipt) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Participant < rs[j].Participant })
}
