package pairing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Result is the output of one discovery run.
type Result struct {
	Pairs  []domain.MarketPair
	Errors []error
}

// Builder matches listings from both venues into complementary pairs.
// Matching is exact on a canonical event key; anything that does not
// resolve to exactly one listing per venue is reported and dropped.
type Builder struct {
	mapping    *TeamMapping
	kalshiOnly bool
}

// NewBuilder creates a Builder. In kalshiOnly mode each Kalshi market is
// paired with itself (YES + NO) and the mapping is not consulted.
func NewBuilder(mapping *TeamMapping, kalshiOnly bool) *Builder {
	if mapping == nil {
		mapping = NewTeamMapping(nil)
	}
	return &Builder{mapping: mapping, kalshiOnly: kalshiOnly}
}

// Build produces a deterministic pair set: the same listings in any order
// yield the same pairs in the same order.
func (b *Builder) Build(listings []domain.Listing) Result {
	sorted := make([]domain.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Venue != sorted[j].Venue {
			return sorted[i].Venue < sorted[j].Venue
		}
		return sorted[i].MarketID < sorted[j].MarketID
	})

	var res Result
	used := make(map[domain.InstrumentKey]bool)
	add := func(p domain.MarketPair) bool {
		if used[p.LegA.Key()] || used[p.LegB.Key()] {
			return false
		}
		used[p.LegA.Key()] = true
		used[p.LegB.Key()] = true
		res.Pairs = append(res.Pairs, p)
		return true
	}

	if b.kalshiOnly {
		for _, l := range sorted {
			if l.Venue != domain.VenueKalshi {
				continue
			}
			if err := validListing(l); err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			add(domain.MarketPair{
				ID:          domain.PairID(l.Yes, l.No),
				MarketKey:   l.MarketID,
				Description: l.Description,
				ArbType:     domain.ArbTypeKalshiYesNo,
				LegA:        l.Yes,
				LegB:        l.No,
			})
		}
		sortPairs(res.Pairs)
		return res
	}

	groups := make(map[string]map[domain.Venue][]domain.Listing)
	for _, l := range sorted {
		if err := validListing(l); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		key, err := b.eventKey(l)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if groups[key] == nil {
			groups[key] = make(map[domain.Venue][]domain.Listing)
		}
		groups[key][l.Venue] = append(groups[key][l.Venue], l)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		g := groups[key]
		ks, ps := g[domain.VenueKalshi], g[domain.VenuePolymarket]
		switch {
		case len(ks) > 1 || len(ps) > 1:
			res.Errors = append(res.Errors, fmt.Errorf("pairing: %s: %d kalshi / %d polymarket listings: %w",
				key, len(ks), len(ps), domain.ErrAmbiguous))
			continue
		case len(ks) == 0 || len(ps) == 0:
			only := firstOf(ks, ps)
			res.Errors = append(res.Errors, fmt.Errorf("pairing: %s %s (%s): %w",
				only.Venue, only.MarketID, only.Description, domain.ErrUnmatched))
			continue
		}

		k, p := ks[0], ps[0]
		desc := k.Description
		if desc == "" {
			desc = p.Description
		}
		add(domain.MarketPair{
			ID:          domain.PairID(p.Yes, k.No),
			MarketKey:   key,
			Description: desc,
			ArbType:     domain.ArbTypePolyYesKalshiNo,
			LegA:        p.Yes,
			LegB:        k.No,
		})
		add(domain.MarketPair{
			ID:          domain.PairID(k.Yes, p.No),
			MarketKey:   key,
			Description: desc,
			ArbType:     domain.ArbTypeKalshiYesPolyNo,
			LegA:        k.Yes,
			LegB:        p.No,
		})
	}

	sortPairs(res.Pairs)
	return res
}

// eventKey builds league|type|date|teams|subject|line from canonical names.
func (b *Builder) eventKey(l domain.Listing) (string, error) {
	if len(l.Teams) == 0 || l.Subject == "" {
		return "", fmt.Errorf("pairing: %s %s: no teams or subject: %w", l.Venue, l.MarketID, domain.ErrUnmatched)
	}
	teams := make([]string, 0, len(l.Teams))
	for _, code := range l.Teams {
		c, ok := b.mapping.Canonical(l.League, l.Venue, code)
		if !ok {
			return "", fmt.Errorf("pairing: %s %s: unknown team code %q: %w", l.Venue, l.MarketID, code, domain.ErrUnmatched)
		}
		teams = append(teams, c)
	}
	sort.Strings(teams)
	subject, ok := b.mapping.Canonical(l.League, l.Venue, l.Subject)
	if !ok {
		return "", fmt.Errorf("pairing: %s %s: unknown subject %q: %w", l.Venue, l.MarketID, l.Subject, domain.ErrUnmatched)
	}
	return strings.Join([]string{
		strings.ToLower(l.League),
		strings.ToLower(l.MarketType),
		l.Date,
		strings.Join(teams, "-"),
		subject,
		l.Line,
	}, "|"), nil
}

func validListing(l domain.Listing) error {
	if l.Yes.ID == "" || l.No.ID == "" {
		return fmt.Errorf("pairing: %s %s: missing instrument id: %w", l.Venue, l.MarketID, domain.ErrUnmatched)
	}
	if l.Yes.Outcome != domain.OutcomeYes || l.No.Outcome != domain.OutcomeNo {
		return fmt.Errorf("pairing: %s %s: outcomes not complementary: %w", l.Venue, l.MarketID, domain.ErrUnmatched)
	}
	if l.Yes.Venue != l.Venue || l.No.Venue != l.Venue {
		return fmt.Errorf("pairing: %s %s: instrument venue mismatch: %w", l.Venue, l.MarketID, domain.ErrUnmatched)
	}
	return nil
}

func firstOf(ks, ps []domain.Listing) domain.Listing {
	if len(ks) > 0 {
		return ks[0]
	}
	return ps[0]
}

func sortPairs(pairs []domain.MarketPair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
}
